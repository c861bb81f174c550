package mm

import "etheros/kernel"

var (
	// ErrNonCanonicalAddress is returned when constructing a VirtAddr whose
	// bits 48-63 are not a sign extension of bit 47.
	ErrNonCanonicalAddress = &kernel.Error{Module: "mm", Message: "virtual address is not in canonical form"}

	// ErrPhysAddressTooWide is returned when constructing a PhysAddr that
	// uses any of the bits 52-63.
	ErrPhysAddressTooWide = &kernel.Error{Module: "mm", Message: "physical address exceeds 52 bits"}
)

// VirtAddr is a canonical virtual address. Only the low 48 bits are
// significant; bits 48-63 always replicate bit 47.
//
// Non-canonical values are rejected by NewVirtAddr and never normalized.
// Code that converts an arbitrary integer with a plain type conversion is
// responsible for guaranteeing the canonical form itself.
type VirtAddr uintptr

// NewVirtAddr returns addr as a VirtAddr or ErrNonCanonicalAddress if addr
// is not in canonical form.
func NewVirtAddr(addr uint64) (VirtAddr, *kernel.Error) {
	if !IsCanonical(addr) {
		return 0, ErrNonCanonicalAddress
	}

	return VirtAddr(addr), nil
}

// IsCanonical returns true if bits 48-63 of addr are a sign extension of bit 47.
func IsCanonical(addr uint64) bool {
	upper := addr >> (virtAddrBits - 1)
	return upper == 0 || upper == (1<<(64-virtAddrBits+1))-1
}

// PageOffset returns the offset of the address within its 4K page. These
// bits are preserved verbatim by address translation.
func (a VirtAddr) PageOffset() uintptr {
	return uintptr(a) & (PageSize - 1)
}

// TableIndex returns the 9-bit page table index that the address selects at
// the given paging level. Level 4 is the top-most table and level 1 the
// table that holds the page entries.
func (a VirtAddr) TableIndex(level uint8) uintptr {
	return (uintptr(a) >> (PageShift + tableIndexBits*uintptr(level-1))) & (1<<tableIndexBits - 1)
}

// IsPageAligned returns true if the address is a multiple of PageSize.
func (a VirtAddr) IsPageAligned() bool {
	return a.PageOffset() == 0
}

// Add returns a+offset. The caller must ensure that the result is canonical.
func (a VirtAddr) Add(offset uintptr) VirtAddr {
	return a + VirtAddr(offset)
}

// PhysAddr is a physical memory address. Only the low 52 bits are
// architecturally significant.
type PhysAddr uintptr

// NewPhysAddr returns addr as a PhysAddr or ErrPhysAddressTooWide if addr
// does not fit in 52 bits.
func NewPhysAddr(addr uint64) (PhysAddr, *kernel.Error) {
	if addr>>physAddrBits != 0 {
		return 0, ErrPhysAddressTooWide
	}

	return PhysAddr(addr), nil
}

// IsPageAligned returns true if the address is a multiple of PageSize.
func (a PhysAddr) IsPageAligned() bool {
	return uintptr(a)&(PageSize-1) == 0
}
