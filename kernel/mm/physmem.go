package mm

import (
	"unsafe"

	"github.com/negrel/assert"
)

// PhysMemory provides word-level access to physical memory. It is the only
// path through which page tables and other frame contents are read or
// written; raw pointer arithmetic stays inside its implementations.
type PhysMemory interface {
	// ReadUint64 returns the 8-byte value stored at the given physical
	// address which must be 8-byte aligned.
	ReadUint64(addr PhysAddr) uint64

	// WriteUint64 stores value at the given 8-byte aligned physical address.
	WriteUint64(addr PhysAddr, value uint64)

	// ZeroFrame clears the contents of a physical frame.
	ZeroFrame(frame Frame)
}

// OffsetMemory implements PhysMemory for a kernel running with all of
// physical memory mapped at a fixed virtual offset: physical address P is
// accessible at virtual address Offset+P.
//
// The caller that sets Offset guarantees that the mapping exists for every
// physical address that will be accessed.
type OffsetMemory struct {
	Offset VirtAddr
}

// VirtAddrFor returns the virtual address through which the physical
// address can be accessed.
func (m *OffsetMemory) VirtAddrFor(addr PhysAddr) VirtAddr {
	return m.Offset + VirtAddr(addr)
}

// ReadUint64 implements PhysMemory.
func (m *OffsetMemory) ReadUint64(addr PhysAddr) uint64 {
	assert.Equal(uintptr(addr)&7, uintptr(0), "unaligned physical memory read")
	return *(*uint64)(m.ptr(addr))
}

// WriteUint64 implements PhysMemory.
func (m *OffsetMemory) WriteUint64(addr PhysAddr, value uint64) {
	assert.Equal(uintptr(addr)&7, uintptr(0), "unaligned physical memory write")
	*(*uint64)(m.ptr(addr)) = value
}

// ZeroFrame implements PhysMemory.
func (m *OffsetMemory) ZeroFrame(frame Frame) {
	clear(unsafe.Slice((*byte)(m.ptr(frame.Address())), PageSize))
}

func (m *OffsetMemory) ptr(addr PhysAddr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(m.VirtAddrFor(addr)))
}
