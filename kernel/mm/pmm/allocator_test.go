package pmm

import (
	"testing"

	"etheros/kernel/boot"
	"etheros/kernel/mm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordMemory is a sparse PhysMemory backed by a map.
type wordMemory map[mm.PhysAddr]uint64

func (m wordMemory) ReadUint64(addr mm.PhysAddr) uint64         { return m[addr] }
func (m wordMemory) WriteUint64(addr mm.PhysAddr, value uint64) { m[addr] = value }
func (m wordMemory) ZeroFrame(frame mm.Frame) {
	for off := uintptr(0); off < mm.PageSize; off += 8 {
		delete(m, frame.Address()+mm.PhysAddr(off))
	}
}

var testRegions = []boot.MemoryRegion{
	{Start: 0x0, End: 0x1000, Type: boot.RegionFrameZero},
	{Start: 0x100000, End: 0x103000, Type: boot.RegionUsable},
}

func TestAllocatorBump(t *testing.T) {
	var alloc Allocator
	alloc.Init(KindBump, testRegions, nil)
	assert.Equal(t, KindBump, alloc.Kind())

	frame, err := alloc.AllocFrame()
	require.Nil(t, err)
	assert.Equal(t, mm.PhysAddr(0x100000), frame.Address())

	assert.Equal(t, errFreeUnsupported, alloc.FreeFrame(frame))

	// the rejected frame is never handed out again
	for _, exp := range []mm.PhysAddr{0x101000, 0x102000} {
		next, err := alloc.AllocFrame()
		require.Nil(t, err)
		assert.Equal(t, exp, next.Address())
	}

	_, err = alloc.AllocFrame()
	assert.Equal(t, ErrOutOfMemory, err)

	drawn, free := alloc.Stats()
	assert.Equal(t, uint64(3), drawn)
	assert.Equal(t, uint64(0), free)
}

func TestAllocatorFreeList(t *testing.T) {
	var (
		alloc Allocator
		mem   = make(wordMemory)
	)
	alloc.Init(KindFreeList, testRegions, mem)
	assert.Equal(t, "free-list", alloc.Kind().String())

	var frames []mm.Frame
	for {
		frame, err := alloc.AllocFrame()
		if err != nil {
			require.Equal(t, ErrOutOfMemory, err)
			break
		}
		frames = append(frames, frame)
	}
	require.Len(t, frames, 3)

	assert.Equal(t, errFreeInvalid, alloc.FreeFrame(mm.InvalidFrame))

	// released frames are reused in LIFO order
	require.Nil(t, alloc.FreeFrame(frames[0]))
	require.Nil(t, alloc.FreeFrame(frames[2]))

	drawn, free := alloc.Stats()
	assert.Equal(t, uint64(3), drawn)
	assert.Equal(t, uint64(2), free)

	for _, exp := range []mm.Frame{frames[2], frames[0]} {
		frame, err := alloc.AllocFrame()
		require.Nil(t, err)
		assert.Equal(t, exp, frame)
	}

	_, err := alloc.AllocFrame()
	assert.Equal(t, ErrOutOfMemory, err)

	_, free = alloc.Stats()
	assert.Equal(t, uint64(0), free)
}

func TestAllocatorImplementsFrameAllocator(t *testing.T) {
	var (
		alloc Allocator
		fa    mm.FrameAllocator = &alloc
	)
	alloc.Init(KindBump, testRegions, nil)

	frame, err := fa.AllocFrame()
	require.Nil(t, err)
	assert.True(t, frame.Valid())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "bump", KindBump.String())
	assert.Equal(t, "free-list", KindFreeList.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
