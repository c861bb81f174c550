package mm

import (
	"testing"
	"unsafe"

	"etheros/kernel"

	"github.com/stretchr/testify/assert"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := PhysAddr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}

		if !frame.Address().IsPageAligned() {
			t.Errorf("expected frame %d address to be page-aligned", frameIndex)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    PhysAddr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
		{0xb8000, Frame(0xb8)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestPageMethods(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := VirtAddr(pageIndex<<PageShift), page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   VirtAddr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
		{0xdeadbeaf123, Page(0xdeadbeaf)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}

	// higher-half addresses survive the round trip through a page index
	high := VirtAddr(0xffff800000201000)
	assert.Equal(t, high, PageFromAddress(high+0x10).Address())
	assert.True(t, IsCanonical(uint64(PageFromAddress(high).Address())))
}

func TestFrameAllocatorFn(t *testing.T) {
	var calls int
	var alloc FrameAllocator = FrameAllocatorFn(func() (Frame, *kernel.Error) {
		calls++
		return Frame(42), nil
	})

	frame, err := alloc.AllocFrame()
	assert.Nil(t, err)
	assert.Equal(t, Frame(42), frame)
	assert.Equal(t, 1, calls)
}

func TestOffsetMemory(t *testing.T) {
	// Use a Go buffer as "physical memory" mapped at the buffer address.
	buf := make([]uint64, 2*PageSize/8)
	mem := &OffsetMemory{Offset: VirtAddr(uintptr(unsafe.Pointer(&buf[0])))}

	mem.WriteUint64(PhysAddr(8), 0xdeadbeef)
	mem.WriteUint64(PhysAddr(PageSize+16), 0xcafebabe)
	assert.Equal(t, uint64(0xdeadbeef), buf[1])
	assert.Equal(t, uint64(0xdeadbeef), mem.ReadUint64(PhysAddr(8)))
	assert.Equal(t, uint64(0xcafebabe), mem.ReadUint64(PhysAddr(PageSize+16)))

	assert.Equal(t, mem.Offset+VirtAddr(PageSize), mem.VirtAddrFor(Frame(1).Address()))

	for i := range buf {
		buf[i] = ^uint64(0)
	}
	mem.ZeroFrame(Frame(1))
	for i := range buf {
		if i < len(buf)/2 {
			assert.Equal(t, ^uint64(0), buf[i], "frame 0 word %d should be untouched", i)
		} else {
			assert.Zero(t, buf[i], "frame 1 word %d should be cleared", i)
		}
	}
}
