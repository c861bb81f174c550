package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulate(t *testing.T) {
	png := filepath.Join(t.TempDir(), "memmap.png")
	require.NoError(t, simulate(options{config: "machine.yaml", png: png}))

	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	assert.Error(t, simulate(options{config: filepath.Join(t.TempDir(), "missing.yaml")}))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema_version: 1.0.0\n"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, path, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// writes to other files in the directory are ignored; keep touching
	// the watched file until the watcher is up and reports the change
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), nil, 0o644))

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-changed:
			break wait
		case <-ticker.C:
			require.NoError(t, os.WriteFile(path, []byte("schema_version: 1.0.1\n"), 0o644))
		case <-ctx.Done():
			t.Fatal("timed out waiting for change notification")
		}
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
