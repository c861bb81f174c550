// Package vmm implements the page table translator: lookups, mapping and
// unmapping of 4K pages in the amd64 4-level page table hierarchy.
//
// Page tables are reached through a mm.PhysMemory implementation. In the
// kernel this is a mm.OffsetMemory that relies on the boot stage having
// mapped all of physical memory at a fixed virtual offset.
package vmm

import (
	"etheros/kernel"
	"etheros/kernel/cpu"
	"etheros/kernel/mm"
)

var (
	// activePDTFn is used by tests to override calls to activePDT which
	// will cause a fault if called in user-mode.
	activePDTFn = cpu.ActivePDT

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// kernelMemory provides access to physical memory for the page table
	// returned by Init. It is a package-level variable so that Init works
	// before a heap exists.
	kernelMemory mm.OffsetMemory

	// ErrInvalidPhysOffset is returned by Init when the physical memory
	// offset is not a canonical, page-aligned virtual address.
	ErrInvalidPhysOffset = &kernel.Error{Module: "vmm", Message: "physical memory offset is not a canonical page-aligned address"}

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrHugePage is returned when a walk reaches an entry that maps a huge
	// page. Huge pages are never created by this package and are not
	// interpreted when encountered.
	ErrHugePage = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

	// ErrPageAlreadyMapped is returned by MapPage when the page already has
	// a present leaf entry.
	ErrPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped"}
)

// PageTable provides access to a 4-level page table hierarchy rooted at a
// physical frame.
//
// PageTable is not safe for concurrent use; the kernel runs on a single core
// and callers must not mutate the hierarchy from interrupt handlers.
type PageTable struct {
	mem     mm.PhysMemory
	root    mm.Frame
	flushFn func(mm.VirtAddr)
}

// Init returns a PageTable for the hierarchy that is currently loaded in
// CR3. physMemOffset is the virtual address at which the boot stage mapped
// the whole of physical memory; the caller guarantees that this mapping
// exists and covers every frame that page tables may live in.
func Init(physMemOffset uintptr) (PageTable, *kernel.Error) {
	offset, err := mm.NewVirtAddr(uint64(physMemOffset))
	if err != nil || !offset.IsPageAligned() {
		return PageTable{}, ErrInvalidPhysOffset
	}

	kernelMemory.Offset = offset
	root := mm.FrameFromAddress(mm.PhysAddr(activePDTFn() & ptePhysPageMask))

	return New(&kernelMemory, root, flushTLBEntry), nil
}

// New returns a PageTable for the hierarchy rooted at the root frame using
// mem to access the table contents. flushFn is invoked with the address of
// every page whose leaf entry changes.
func New(mem mm.PhysMemory, root mm.Frame, flushFn func(mm.VirtAddr)) PageTable {
	return PageTable{mem: mem, root: root, flushFn: flushFn}
}

// Root returns the frame that holds the top-most table of the hierarchy.
func (pt *PageTable) Root() mm.Frame {
	return pt.root
}

func flushTLBEntry(virtAddr mm.VirtAddr) {
	flushTLBEntryFn(uintptr(virtAddr))
}
