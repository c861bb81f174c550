package vmm

import (
	"etheros/kernel/mm"

	"github.com/negrel/assert"
)

// entryRef locates a single entry inside a page table frame. Entries are
// only ever accessed through the PhysMemory implementation of the table.
type entryRef struct {
	mem   mm.PhysMemory
	table mm.Frame
	index uintptr
}

func (ref entryRef) addr() mm.PhysAddr {
	return ref.table.Address() + mm.PhysAddr(ref.index<<mm.PointerShift)
}

func (ref entryRef) load() pageTableEntry {
	return pageTableEntry(ref.mem.ReadUint64(ref.addr()))
}

func (ref entryRef) store(pte pageTableEntry) {
	ref.mem.WriteUint64(ref.addr(), uint64(pte))
}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level (0 for the top-most table) and a
// reference to the entry selected by the virtual address at that level. The
// walker returns false to abort the walk.
type pageTableWalker func(pteLevel uint8, ref entryRef) bool

// walk performs a page table walk for the given virtual address starting at
// the root table. At each level the walker is invoked and, as long as it
// returns true, the walk descends into the table referenced by the entry. The
// walker is responsible for checking that the entry is present before
// letting the walk continue. Callers reject non-canonical addresses first.
func (pt *PageTable) walk(virtAddr mm.VirtAddr, walkFn pageTableWalker) {
	ref := entryRef{mem: pt.mem, table: pt.root}

	for level := uint8(0); level < pageLevels; level++ {
		ref.index = virtAddr.TableIndex(pageLevels - level)
		assert.Less(ref.index, uintptr(entriesPerTable), "page table index out of range")

		if !walkFn(level, ref) {
			return
		}

		// Entries read after the walker returns observe any update it made.
		ref.table = ref.load().Frame()
	}
}
