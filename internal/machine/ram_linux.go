package machine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"etheros/kernel/mm"

	"golang.org/x/sys/unix"
)

// ErrBusFault is reported when an access falls outside the simulated RAM.
var ErrBusFault = errors.New("bus fault")

const (
	ramProt = unix.PROT_READ | unix.PROT_WRITE
	ramMode = unix.MAP_ANON | unix.MAP_PRIVATE
)

// RAM is the physical memory of a simulated machine. It is backed by an
// anonymous private mapping so its contents start out zeroed and page
// aligned. RAM implements mm.PhysMemory; accesses outside its bounds panic
// with an error wrapping ErrBusFault.
type RAM struct {
	mem []byte
}

// NewRAM maps size bytes of simulated physical memory. size must be a
// non-zero multiple of the page size.
func NewRAM(size uint64) (*RAM, error) {
	if size == 0 || size%uint64(mm.PageSize) != 0 {
		return nil, fmt.Errorf("ram size 0x%x is not a non-zero multiple of the page size", size)
	}

	raw, err := unix.Mmap(-1, 0, int(size), ramProt, ramMode)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	return &RAM{mem: raw}, nil
}

// Close releases the backing mapping. The RAM must not be used afterwards.
func (r *RAM) Close() error {
	if r.mem == nil {
		return nil
	}

	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

// Size returns the size of the RAM in bytes.
func (r *RAM) Size() uint64 {
	return uint64(len(r.mem))
}

// Frames returns the number of frames in the RAM.
func (r *RAM) Frames() uint64 {
	return r.Size() >> mm.PageShift
}

// Contains returns true if the size bytes starting at addr are inside the
// RAM.
func (r *RAM) Contains(addr mm.PhysAddr, size uint64) bool {
	return uint64(addr) < r.Size() && size <= r.Size()-uint64(addr)
}

// ReadUint64 implements mm.PhysMemory.
func (r *RAM) ReadUint64(addr mm.PhysAddr) uint64 {
	r.mustContain(addr, 8)
	return binary.LittleEndian.Uint64(r.mem[addr:])
}

// WriteUint64 implements mm.PhysMemory.
func (r *RAM) WriteUint64(addr mm.PhysAddr, value uint64) {
	r.mustContain(addr, 8)
	binary.LittleEndian.PutUint64(r.mem[addr:], value)
}

// ZeroFrame implements mm.PhysMemory.
func (r *RAM) ZeroFrame(frame mm.Frame) {
	clear(r.Frame(frame))
}

// Frame returns the contents of a frame. The returned slice aliases the RAM.
func (r *RAM) Frame(frame mm.Frame) []byte {
	addr := frame.Address()
	r.mustContain(addr, uint64(mm.PageSize))
	return r.mem[addr : uintptr(addr)+mm.PageSize]
}

func (r *RAM) mustContain(addr mm.PhysAddr, size uint64) {
	if !r.Contains(addr, size) {
		panic(fmt.Errorf("%w: access to 0x%x (%d bytes) outside %d bytes of RAM", ErrBusFault, uintptr(addr), size, r.Size()))
	}
}
