// Package boot provides access to the handoff block that the boot stage
// leaves in memory before jumping to the kernel entrypoint. The block
// carries the physical memory offset chosen by the boot stage and the
// physical memory map.
package boot

import "unsafe"

// MaxRegions is the capacity of the memory map inside the handoff block.
const MaxRegions = 64

// RegionType describes the usability of a physical memory region.
type RegionType uint32

const (
	// RegionUsable indicates free memory that the kernel may allocate.
	RegionUsable RegionType = iota + 1

	// RegionInUse indicates memory used by the boot stage that stays live.
	RegionInUse

	// RegionReserved indicates memory that is not available for use.
	RegionReserved

	// RegionAcpiReclaimable indicates ACPI tables that can be reused once
	// they have been parsed.
	RegionAcpiReclaimable

	// RegionAcpiNvs indicates memory that must be preserved when hibernating.
	RegionAcpiNvs

	// RegionBadMemory indicates memory that failed detection checks.
	RegionBadMemory

	// RegionKernel holds the loaded kernel image.
	RegionKernel

	// RegionKernelStack holds the stack used by the kernel entrypoint.
	RegionKernelStack

	// RegionPageTable holds page tables created by the boot stage.
	RegionPageTable

	// RegionBootloader holds the boot stage code and data.
	RegionBootloader

	// RegionFrameZero marks the first physical frame, which is never handed
	// out so that physical address zero stays invalid.
	RegionFrameZero

	// RegionBootInfo holds the handoff block itself.
	RegionBootInfo

	// Any value >= regionUnknown is reported as RegionReserved.
	regionUnknown
)

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	switch t {
	case RegionUsable:
		return "usable"
	case RegionInUse:
		return "in use"
	case RegionReserved:
		return "reserved"
	case RegionAcpiReclaimable:
		return "ACPI (reclaimable)"
	case RegionAcpiNvs:
		return "ACPI NVS"
	case RegionBadMemory:
		return "bad memory"
	case RegionKernel:
		return "kernel"
	case RegionKernelStack:
		return "kernel stack"
	case RegionPageTable:
		return "page table"
	case RegionBootloader:
		return "bootloader"
	case RegionFrameZero:
		return "frame zero"
	case RegionBootInfo:
		return "boot info"
	default:
		return "unknown"
	}
}

// ParseRegionType maps the name returned by RegionType.String back to its
// RegionType. It returns false if name does not match any known type.
func ParseRegionType(name string) (RegionType, bool) {
	for t := RegionUsable; t < regionUnknown; t++ {
		if t.String() == name {
			return t, true
		}
	}

	return 0, false
}

// MemoryRegion describes the half-open physical address range [Start, End)
// and its type.
type MemoryRegion struct {
	Start uint64
	End   uint64
	Type  RegionType

	_ uint32
}

// Length returns the size of the region in bytes.
func (r MemoryRegion) Length() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Info mirrors the layout of the handoff block. The boot stage fills in
// Regions[0:RegionCount]; the remaining slots are ignored.
type Info struct {
	Regions     [MaxRegions]MemoryRegion
	RegionCount uint64

	// PhysMemOffset is the virtual address at which the boot stage mapped
	// the complete physical address space.
	PhysMemOffset uint64
}

var (
	infoData uintptr
)

// SetInfoPtr updates the internal handoff block pointer to the given value.
// This function must be invoked before invoking any other function exported
// by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// PhysicalMemoryOffset returns the virtual address at which the boot stage
// mapped all of physical memory.
func PhysicalMemoryOffset() uintptr {
	return uintptr(info().PhysMemOffset)
}

// MemoryRegions returns the memory map supplied by the boot stage. The
// returned slice aliases the handoff block and must be treated as read-only.
// Unknown region types are reported as RegionReserved.
func MemoryRegions() []MemoryRegion {
	bi := info()
	count := bi.RegionCount
	if count > MaxRegions {
		count = MaxRegions
	}

	regions := bi.Regions[:count:count]
	for i := range regions {
		if regions[i].Type == 0 || regions[i].Type >= regionUnknown {
			regions[i].Type = RegionReserved
		}
	}

	return regions
}

// VisitMemRegions invokes visitor for each memory region in the handoff
// block. The visitor must return true to continue or false to abort the scan.
func VisitMemRegions(visitor func(region *MemoryRegion) bool) {
	regions := MemoryRegions()
	for i := range regions {
		if !visitor(&regions[i]) {
			return
		}
	}
}

func info() *Info {
	return (*Info)(unsafe.Pointer(infoData))
}
