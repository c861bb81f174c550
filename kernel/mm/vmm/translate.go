package vmm

import (
	"etheros/kernel"
	"etheros/kernel/mm"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address. It returns mm.ErrNonCanonicalAddress if the address is
// not in canonical form, ErrInvalidMapping if an entry along the walk is not
// present and ErrHugePage if the address is covered by a huge page.
func (pt *PageTable) Translate(virtAddr mm.VirtAddr) (mm.PhysAddr, *kernel.Error) {
	if !mm.IsCanonical(uint64(virtAddr)) {
		return 0, mm.ErrNonCanonicalAddress
	}

	var (
		err   *kernel.Error
		frame mm.Frame
	)

	pt.walk(virtAddr, func(pteLevel uint8, ref entryRef) bool {
		pte := ref.load()

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pteLevel < pageLevels-1 && pte.HasFlags(FlagHugePage) {
			err = ErrHugePage
			return false
		}

		frame = pte.Frame()
		return true
	})

	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return frame.Address() + mm.PhysAddr(virtAddr.PageOffset()), nil
}
