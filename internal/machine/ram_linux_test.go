package machine

import (
	"errors"
	"testing"

	"etheros/kernel/mm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAM(t *testing.T) {
	ram, err := NewRAM(4 * uint64(mm.PageSize))
	require.NoError(t, err)
	defer func() { require.NoError(t, ram.Close()) }()

	assert.Equal(t, uint64(4), ram.Frames())
	assert.Zero(t, ram.ReadUint64(0x3ff8), "fresh RAM must be zeroed")

	ram.WriteUint64(0x1008, 0x0123456789abcdef)
	assert.Equal(t, uint64(0x0123456789abcdef), ram.ReadUint64(0x1008))
	assert.Equal(t, byte(0xef), ram.Frame(1)[8], "words are stored little-endian")

	ram.ZeroFrame(1)
	assert.Zero(t, ram.ReadUint64(0x1008))

	assert.True(t, ram.Contains(0x3ff8, 8))
	assert.False(t, ram.Contains(0x3ffc, 8))
	assert.False(t, ram.Contains(0x4000, 1))
}

func TestRAMBusFault(t *testing.T) {
	ram, err := NewRAM(uint64(mm.PageSize))
	require.NoError(t, err)
	defer ram.Close()

	specs := []func(){
		func() { ram.ReadUint64(0x1000) },
		func() { ram.WriteUint64(0xffc, 1) },
		func() { ram.ZeroFrame(1) },
	}

	for specIndex, spec := range specs {
		err := catchPanic(spec)
		assert.True(t, errors.Is(err, ErrBusFault), "[spec %d] expected a bus fault; got %v", specIndex, err)
	}
}

func TestNewRAMInvalidSize(t *testing.T) {
	for _, size := range []uint64{0, 100, uint64(mm.PageSize) + 1} {
		_, err := NewRAM(size)
		assert.Error(t, err, "size %d", size)
	}
}

func catchPanic(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}
