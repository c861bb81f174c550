package pmm

import (
	"etheros/kernel"
	"etheros/kernel/boot"
	"etheros/kernel/mm"
)

// Kind selects the allocation strategy of an Allocator.
type Kind uint8

const (
	// KindBump hands out frames strictly forward and never reuses them.
	KindBump Kind = iota

	// KindFreeList behaves like KindBump but also accepts released frames
	// and hands them out again before touching unused memory.
	KindFreeList
)

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	switch k {
	case KindBump:
		return "bump"
	case KindFreeList:
		return "free-list"
	default:
		return "unknown"
	}
}

var (
	errFreeUnsupported = &kernel.Error{Module: "pmm", Message: "allocator does not support releasing frames"}
	errFreeInvalid     = &kernel.Error{Module: "pmm", Message: "attempt to release an invalid frame"}
)

// Allocator is the frame allocator used by the kernel. Its strategy is
// fixed when Init is called; page-table code only sees the mm.FrameAllocator
// interface and is unaffected by the choice.
//
// The free-list variant keeps released frames in a singly linked list that
// is threaded through the frames themselves: the first word of every free
// frame holds the frame number of the next free frame. Accessing the frames
// requires a mm.PhysMemory implementation.
type Allocator struct {
	kind Kind
	bump BootMemAllocator

	mem      mm.PhysMemory
	freeHead mm.Frame
	freeLen  uint64
}

// Init sets up the allocator to draw frames from the supplied regions using
// the selected strategy. mem is only used by KindFreeList and may be nil for
// KindBump.
func (alloc *Allocator) Init(kind Kind, regions []boot.MemoryRegion, mem mm.PhysMemory) {
	alloc.kind = kind
	alloc.bump.Init(regions)
	alloc.mem = mem
	alloc.freeHead = mm.InvalidFrame
	alloc.freeLen = 0
}

// Kind returns the allocation strategy selected by Init.
func (alloc *Allocator) Kind() Kind {
	return alloc.kind
}

// AllocFrame implements mm.FrameAllocator.
func (alloc *Allocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.kind == KindFreeList && alloc.freeHead.Valid() {
		frame := alloc.freeHead
		alloc.freeHead = mm.Frame(alloc.mem.ReadUint64(frame.Address()))
		alloc.freeLen--
		return frame, nil
	}

	return alloc.bump.AllocFrame()
}

// FreeFrame returns a frame previously obtained from AllocFrame to the
// allocator. Only KindFreeList supports this operation. The caller must
// guarantee that the frame is no longer referenced by any mapping.
func (alloc *Allocator) FreeFrame(frame mm.Frame) *kernel.Error {
	if alloc.kind != KindFreeList {
		return errFreeUnsupported
	}

	if !frame.Valid() {
		return errFreeInvalid
	}

	alloc.mem.WriteUint64(frame.Address(), uint64(alloc.freeHead))
	alloc.freeHead = frame
	alloc.freeLen++
	return nil
}

// Stats returns the number of frames drawn from the memory map and the
// number of released frames waiting to be reused.
func (alloc *Allocator) Stats() (drawn, free uint64) {
	return alloc.bump.AllocCount(), alloc.freeLen
}
