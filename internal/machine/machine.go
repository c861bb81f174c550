// Package machine simulates the parts of an amd64 machine that the memory
// management code interacts with: physical memory, the CR3 register and a
// TLB. It allows the kernel's frame allocator and page table translator to
// run unmodified inside an ordinary process.
package machine

import (
	"errors"
	"fmt"
	"log/slog"

	"etheros/kernel"
	"etheros/kernel/boot"
	"etheros/kernel/mm"
	"etheros/kernel/mm/pmm"
	"etheros/kernel/mm/vmm"

	"github.com/cespare/xxhash"
)

// ErrUnmapped is returned by Load64 and Store64 when the address has no
// mapping.
var ErrUnmapped = errors.New("page fault")

// Machine is a simulated machine. The simulated boot stage maps all of RAM
// at the description's physical memory offset, just like the handoff that
// the kernel receives on real hardware.
//
// Machine is not safe for concurrent use.
type Machine struct {
	log *slog.Logger

	desc    *Description
	ram     *RAM
	regions []boot.MemoryRegion

	alloc pmm.Allocator
	pt    vmm.PageTable

	// cr3 holds the root frame of the active hierarchy.
	cr3 mm.Frame

	// tlb caches page translations until they are flushed. Load64 and
	// Store64 use it before walking the tables, so a mapping change that
	// is not followed by a flush is observable.
	tlb map[mm.Page]mm.Frame

	tableFrames map[mm.Frame]struct{}

	// mappedFrames counts the pages mapped to each frame through MapPage.
	mappedFrames map[mm.Frame]int
	flushCount   int
}

// New boots a machine from a validated description.
func New(desc *Description) (*Machine, error) {
	kind, err := desc.AllocatorKind()
	if err != nil {
		return nil, err
	}

	ram, err := NewRAM(uint64(desc.RAMSize))
	if err != nil {
		return nil, err
	}

	m := &Machine{
		log:          slog.With("src", "machine"),
		desc:         desc,
		ram:          ram,
		regions:      desc.MemoryRegions(),
		tlb:          make(map[mm.Page]mm.Frame),
		tableFrames:  make(map[mm.Frame]struct{}),
		mappedFrames: make(map[mm.Frame]int),
	}
	m.alloc.Init(kind, m.regions, ram)

	if err = m.boot(); err != nil {
		_ = ram.Close()
		return nil, err
	}
	return m, nil
}

// boot allocates an empty root table, loads it into CR3 and maps all of RAM
// at the physical memory offset.
func (m *Machine) boot() error {
	root, kerr := m.AllocFrame()
	if kerr != nil {
		return fmt.Errorf("allocate root table: %w", kerr)
	}
	m.ram.ZeroFrame(root)
	m.cr3 = root
	m.pt = vmm.New(m.ram, root, m.FlushTLBEntry)

	offset := mm.VirtAddr(m.desc.PhysicalMemoryOffset)
	for frame := mm.Frame(0); uint64(frame) < m.ram.Frames(); frame++ {
		page := mm.PageFromAddress(offset.Add(uintptr(frame.Address())))
		if kerr = m.pt.MapPage(page, frame, vmm.FlagRW|vmm.FlagNoExecute, m); kerr != nil {
			return fmt.Errorf("map physical memory at 0x%x: %w", uintptr(page.Address()), kerr)
		}
	}

	drawn, _ := m.alloc.Stats()
	m.log.Debug("booted",
		"ram", m.ram.Size(),
		"cr3", fmt.Sprintf("0x%x", uintptr(root.Address())),
		"offset", fmt.Sprintf("0x%x", uintptr(offset)),
		"tables", drawn,
	)
	return nil
}

// Close releases the machine's RAM.
func (m *Machine) Close() error {
	return m.ram.Close()
}

// AllocFrame implements mm.FrameAllocator. Frames handed out by the machine
// allocator hold page tables.
func (m *Machine) AllocFrame() (mm.Frame, *kernel.Error) {
	frame, err := m.alloc.AllocFrame()
	if err == nil {
		m.tableFrames[frame] = struct{}{}
	}
	return frame, err
}

// FlushTLBEntry drops the cached translation for the page containing
// virtAddr.
func (m *Machine) FlushTLBEntry(virtAddr mm.VirtAddr) {
	m.flushCount++
	delete(m.tlb, mm.PageFromAddress(virtAddr))
}

// MapPage maps page to frame in the active hierarchy.
func (m *Machine) MapPage(page mm.Page, frame mm.Frame, flags vmm.PageTableEntryFlag) error {
	if !m.ram.Contains(frame.Address(), uint64(mm.PageSize)) {
		return fmt.Errorf("%w: frame 0x%x", ErrBusFault, uintptr(frame.Address()))
	}

	if kerr := m.pt.MapPage(page, frame, flags, m); kerr != nil {
		return fmt.Errorf("map 0x%x: %w", uintptr(page.Address()), kerr)
	}
	m.mappedFrames[frame]++
	return nil
}

// Unmap removes the mapping for page and returns the frame it pointed to.
func (m *Machine) Unmap(page mm.Page) (mm.Frame, error) {
	frame, kerr := m.pt.Unmap(page)
	if kerr != nil {
		return mm.InvalidFrame, fmt.Errorf("unmap 0x%x: %w", uintptr(page.Address()), kerr)
	}

	m.mappedFrames[frame]--
	if m.mappedFrames[frame] <= 0 {
		delete(m.mappedFrames, frame)
	}
	return frame, nil
}

// Release unmaps page and returns the frame that backed it to the frame
// allocator.
func (m *Machine) Release(page mm.Page) error {
	frame, err := m.Unmap(page)
	if err != nil {
		return err
	}

	if kerr := m.alloc.FreeFrame(frame); kerr != nil {
		return fmt.Errorf("release frame 0x%x: %w", uintptr(frame.Address()), kerr)
	}
	m.log.Debug("released frame", "page", fmt.Sprintf("0x%x", uintptr(page.Address())), "frame", fmt.Sprintf("0x%x", uintptr(frame.Address())))
	return nil
}

// Translate resolves virtAddr using the TLB and falls back to a table walk
// on a miss.
func (m *Machine) Translate(virtAddr mm.VirtAddr) (mm.PhysAddr, error) {
	page := mm.PageFromAddress(virtAddr)
	if frame, ok := m.tlb[page]; ok {
		return frame.Address() + mm.PhysAddr(virtAddr.PageOffset()), nil
	}

	physAddr, kerr := m.pt.Translate(virtAddr)
	if kerr != nil {
		if kerr == vmm.ErrInvalidMapping {
			return 0, fmt.Errorf("%w at 0x%x", ErrUnmapped, uintptr(virtAddr))
		}
		return 0, fmt.Errorf("translate 0x%x: %w", uintptr(virtAddr), kerr)
	}

	m.tlb[page] = mm.FrameFromAddress(physAddr)
	return physAddr, nil
}

// Load64 reads the 8-byte aligned word at virtAddr.
func (m *Machine) Load64(virtAddr mm.VirtAddr) (uint64, error) {
	physAddr, err := m.physFor(virtAddr)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadUint64(physAddr), nil
}

// Store64 writes value to the 8-byte aligned word at virtAddr. Page
// protection flags are not enforced.
func (m *Machine) Store64(virtAddr mm.VirtAddr, value uint64) error {
	physAddr, err := m.physFor(virtAddr)
	if err != nil {
		return err
	}
	m.ram.WriteUint64(physAddr, value)
	return nil
}

func (m *Machine) physFor(virtAddr mm.VirtAddr) (mm.PhysAddr, error) {
	if uintptr(virtAddr)&7 != 0 {
		return 0, fmt.Errorf("unaligned access at 0x%x", uintptr(virtAddr))
	}

	physAddr, err := m.Translate(virtAddr)
	if err != nil {
		return 0, err
	}

	if !m.ram.Contains(physAddr, 8) {
		return 0, fmt.Errorf("%w: 0x%x translates to 0x%x", ErrBusFault, uintptr(virtAddr), uintptr(physAddr))
	}
	return physAddr, nil
}

// FrameChecksum returns the xxhash of the frame contents.
func (m *Machine) FrameChecksum(frame mm.Frame) uint64 {
	return xxhash.Sum64(m.ram.Frame(frame))
}

// CR3 returns the root frame of the active hierarchy.
func (m *Machine) CR3() mm.Frame {
	return m.cr3
}

// PageTable returns the translator for the active hierarchy.
func (m *Machine) PageTable() *vmm.PageTable {
	return &m.pt
}

// Allocator returns the machine's frame allocator.
func (m *Machine) Allocator() *pmm.Allocator {
	return &m.alloc
}

// RAM returns the machine's physical memory.
func (m *Machine) RAM() *RAM {
	return m.ram
}

// Regions returns the memory map handed to the kernel.
func (m *Machine) Regions() []boot.MemoryRegion {
	return m.regions
}

// IsMappedFrame returns true if at least one page mapped through MapPage
// points to the frame.
func (m *Machine) IsMappedFrame(frame mm.Frame) bool {
	return m.mappedFrames[frame] > 0
}

// IsTableFrame returns true if the frame holds a page table.
func (m *Machine) IsTableFrame(frame mm.Frame) bool {
	_, ok := m.tableFrames[frame]
	return ok
}
