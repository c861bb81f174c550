package vmm

import (
	"etheros/kernel"
	"etheros/kernel/mm"
)

// MapPage establishes a mapping between a virtual page and a physical memory
// frame. Missing intermediate tables are allocated from alloc, cleared and
// only then linked into their parent with FlagPresent|FlagRW (plus
// FlagUserAccessible if flags requests it). The leaf entry is installed with
// the requested flags and FlagPresent, after which the TLB entry for the page
// is flushed.
//
// MapPage fails with ErrPageAlreadyMapped if the page already has a present
// leaf entry, with ErrHugePage if the walk reaches a huge page entry and with
// the allocator's error if a table frame cannot be obtained. On failure, any
// tables linked before the error remain valid, empty tables. Pages whose
// address is not canonical are rejected with mm.ErrNonCanonicalAddress.
func (pt *PageTable) MapPage(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	if !mm.IsCanonical(uint64(page.Address())) {
		return mm.ErrNonCanonicalAddress
	}

	var (
		err         *kernel.Error
		parentFlags = FlagPresent | FlagRW | (flags & FlagUserAccessible)
	)

	pt.walk(page.Address(), func(pteLevel uint8, ref entryRef) bool {
		pte := ref.load()

		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = ErrPageAlreadyMapped
				return false
			}

			pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags | FlagPresent)
			ref.store(pte)
			pt.flushFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagPresent) {
			if pte.HasFlags(FlagHugePage) {
				err = ErrHugePage
				return false
			}

			// A user-accessible leaf requires every table above it to
			// allow user access too.
			if !pte.HasFlags(parentFlags) {
				pte.SetFlags(parentFlags)
				ref.store(pte)
			}
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents before it
		// becomes reachable.
		var newTableFrame mm.Frame
		if newTableFrame, err = alloc.AllocFrame(); err != nil {
			return false
		}
		pt.mem.ZeroFrame(newTableFrame)

		pte = 0
		pte.SetFrame(newTableFrame)
		pte.SetFlags(parentFlags)
		ref.store(pte)
		return true
	})

	return err
}

// Unmap removes the mapping for the given page and returns the frame it
// pointed to. The TLB entry for the page is flushed. Tables that become empty
// are not released.
func (pt *PageTable) Unmap(page mm.Page) (mm.Frame, *kernel.Error) {
	if !mm.IsCanonical(uint64(page.Address())) {
		return mm.InvalidFrame, mm.ErrNonCanonicalAddress
	}

	var (
		err   *kernel.Error
		frame = mm.InvalidFrame
	)

	pt.walk(page.Address(), func(pteLevel uint8, ref entryRef) bool {
		pte := ref.load()

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel < pageLevels-1 {
			if pte.HasFlags(FlagHugePage) {
				err = ErrHugePage
				return false
			}
			return true
		}

		frame = pte.Frame()
		ref.store(0)
		pt.flushFn(page.Address())
		return false
	})

	return frame, err
}
