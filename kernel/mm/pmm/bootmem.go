// Package pmm contains the physical frame allocators.
package pmm

import (
	"etheros/kernel"
	"etheros/kernel/boot"
	"etheros/kernel/mm"

	"github.com/negrel/assert"
)

var (
	// ErrOutOfMemory is returned once every usable frame has been handed out.
	ErrOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// BootMemAllocator implements a rudimentary physical memory allocator which
// is used to bootstrap the kernel.
//
// The allocator walks the memory regions reported by the boot stage in order
// and returns the page-aligned frames of each usable region one at a time.
// Region bounds that are not page-aligned are shrunk to the nearest page
// boundaries so that a frame never straddles a region edge; a usable region
// smaller than a page contributes no frames.
//
// Allocations only move forward. It is not possible to free a frame and no
// frame is ever returned twice.
type BootMemAllocator struct {
	regions []boot.MemoryRegion

	// nextRegion is the index of the next region to draw frames from once
	// the current one is drained.
	nextRegion int

	// nextFrame and endFrame describe the unconsumed frames [nextFrame,
	// endFrame) of the current region.
	nextFrame, endFrame mm.Frame

	allocCount uint64
}

// Init resets the allocator to draw frames from the supplied regions. The
// regions must not overlap and are not copied.
func (alloc *BootMemAllocator) Init(regions []boot.MemoryRegion) {
	alloc.regions = regions
	alloc.nextRegion = 0
	alloc.nextFrame, alloc.endFrame = 0, 0
	alloc.allocCount = 0
}

// AllocFrame reserves the next available free frame. It returns
// mm.InvalidFrame and ErrOutOfMemory once all usable regions are drained.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for alloc.nextFrame >= alloc.endFrame {
		if !alloc.advanceRegion() {
			return mm.InvalidFrame, ErrOutOfMemory
		}
	}

	frame := alloc.nextFrame
	alloc.nextFrame++
	alloc.allocCount++

	assert.Equal(uintptr(frame.Address())&(mm.PageSize-1), uintptr(0), "allocated frame is not page-aligned")
	return frame, nil
}

// AllocCount returns the number of frames handed out since Init.
func (alloc *BootMemAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// advanceRegion moves the cursor to the next usable region. It returns false
// if no regions remain.
func (alloc *BootMemAllocator) advanceRegion() bool {
	for alloc.nextRegion < len(alloc.regions) {
		region := &alloc.regions[alloc.nextRegion]
		alloc.nextRegion++
		if region.Type != boot.RegionUsable {
			continue
		}

		alloc.nextFrame, alloc.endFrame = usableFrames(region)
		return true
	}

	// Stay exhausted on subsequent calls.
	alloc.nextFrame, alloc.endFrame = 0, 0
	return false
}

// usableFrames returns the range of whole frames [first, end) contained in
// the region.
func usableFrames(region *boot.MemoryRegion) (first, end mm.Frame) {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	start := (region.Start + pageSizeMinus1) &^ pageSizeMinus1
	limit := region.End &^ pageSizeMinus1
	if region.End < region.Start || limit <= start {
		return 0, 0
	}

	return mm.Frame(start >> mm.PageShift), mm.Frame(limit >> mm.PageShift)
}
