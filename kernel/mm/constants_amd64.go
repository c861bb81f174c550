package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// tableIndexBits is the number of virtual address bits used to index
	// the table at each paging level.
	tableIndexBits = uintptr(9)

	// virtAddrBits is the number of significant bits in a virtual address
	// when using 4-level paging.
	virtAddrBits = 48

	// physAddrBits is the architectural limit for physical addresses.
	physAddrBits = 52
)
