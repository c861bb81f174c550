package machine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"etheros/kernel"
	"etheros/kernel/kfmt"
	"etheros/kernel/mm"
	"etheros/kernel/mm/pmm"
	"etheros/kernel/mm/vmm"

	"github.com/cespare/xxhash"
)

// ErrChecksumMismatch is returned when the contents of a frame do not match
// what was written through its mapping.
var ErrChecksumMismatch = errors.New("frame checksum mismatch")

// patternWord returns the value written at offset off of page by the
// mapping self-check.
func patternWord(page mm.Page, off uintptr) uint64 {
	return (uint64(page.Address()) | uint64(off)) * 0x9e3779b97f4a7c15
}

// Run boots a machine from desc, installs the requested mappings, verifies
// each one by writing through the virtual page and comparing checksums of
// the backing frame, and finally prints a translation line for every probe.
// Diagnostic output is written to w. The caller owns the returned machine.
func Run(desc *Description, w io.Writer) (*Machine, error) {
	m, err := New(desc)
	if err != nil {
		return nil, err
	}

	pmm.PrintMemoryMap(w, m.Regions())

	for i := range desc.Mappings {
		if err = m.applyMapping(&desc.Mappings[i]); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
	}

	for _, probe := range desc.Probes {
		virtAddr := mm.VirtAddr(probe)
		physAddr, kerr := m.pt.Translate(virtAddr)
		switch {
		case kerr == vmm.ErrInvalidMapping:
			kfmt.Fprintf(w, "[vmm] 0x%16x -> unmapped\n", uintptr(virtAddr))
		case kerr != nil:
			kfmt.Fprintf(w, "[vmm] 0x%16x -> %s\n", uintptr(virtAddr), kerr.Message)
		default:
			kfmt.Fprintf(w, "[vmm] 0x%16x -> 0x%16x\n", uintptr(virtAddr), uintptr(physAddr))
		}
	}

	drawn, free := m.alloc.Stats()
	kfmt.Fprintf(w, "[pmm] %s allocator: %d frame(s) drawn, %d free, %d TLB flush(es)\n", m.alloc.Kind().String(), drawn, free, m.flushCount)
	return m, nil
}

func (m *Machine) applyMapping(mapping *Mapping) error {
	var (
		page  = mm.PageFromAddress(mm.VirtAddr(mapping.Page))
		frame = mm.FrameFromAddress(mm.PhysAddr(mapping.Frame))
		flags vmm.PageTableEntryFlag
	)

	if mapping.Scratch {
		var kerr *kernel.Error
		if frame, kerr = m.alloc.AllocFrame(); kerr != nil {
			return fmt.Errorf("allocate scratch frame: %w", kerr)
		}
	}

	if mapping.Writable {
		flags |= vmm.FlagRW
	}
	if mapping.User {
		flags |= vmm.FlagUserAccessible
	}

	if err := m.MapPage(page, frame, flags); err != nil {
		return err
	}

	verifyFn := m.verifyReadOnly
	if mapping.Writable {
		verifyFn = m.verifyWritable
	}
	if err := verifyFn(page, frame); err != nil {
		return err
	}

	m.log.Debug("verified mapping", "page", fmt.Sprintf("0x%x", uintptr(page.Address())), "frame", fmt.Sprintf("0x%x", uintptr(frame.Address())))

	if mapping.Release {
		return m.Release(page)
	}
	return nil
}

// verifyWritable writes a pattern through the page and checks that the
// frame holds it.
func (m *Machine) verifyWritable(page mm.Page, frame mm.Frame) error {
	expected := make([]byte, mm.PageSize)
	for off := uintptr(0); off < mm.PageSize; off += 8 {
		value := patternWord(page, off)
		if err := m.Store64(page.Address().Add(off), value); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(expected[off:], value)
	}

	if got, exp := m.FrameChecksum(frame), xxhash.Sum64(expected); got != exp {
		return fmt.Errorf("%w: frame 0x%x has checksum %016x; expected %016x", ErrChecksumMismatch, uintptr(frame.Address()), got, exp)
	}
	return nil
}

// verifyReadOnly checks that reading through the page yields the frame
// contents.
func (m *Machine) verifyReadOnly(page mm.Page, frame mm.Frame) error {
	view := make([]byte, mm.PageSize)
	for off := uintptr(0); off < mm.PageSize; off += 8 {
		value, err := m.Load64(page.Address().Add(off))
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(view[off:], value)
	}

	if got, exp := xxhash.Sum64(view), m.FrameChecksum(frame); got != exp {
		return fmt.Errorf("%w: page 0x%x reads checksum %016x; frame has %016x", ErrChecksumMismatch, uintptr(page.Address()), got, exp)
	}
	return nil
}
