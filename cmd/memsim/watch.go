package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the bursts of events editors produce when saving.
const settleDelay = 100 * time.Millisecond

// watch invokes onChange every time the file at path is written or
// replaced. The parent directory is watched so that editors which save by
// renaming a temporary file are picked up. watch returns when ctx is done.
func watch(ctx context.Context, path string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err = w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	log := slog.With("src", "watch", "path", abs)
	log.Info("watching for changes")

	var (
		timer   = time.NewTimer(settleDelay)
		pending bool
	)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			log.Debug("change detected", "op", ev.Op.String())
			pending = true
			timer.Reset(settleDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher", "err", err)
		case <-timer.C:
			if pending {
				pending = false
				onChange()
			}
		}
	}
}
