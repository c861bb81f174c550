package vga

import (
	"testing"
	"unsafe"

	"etheros/kernel/kfmt"
	"etheros/kernel/mm"

	"github.com/stretchr/testify/assert"
)

func newTestConsole() (*Console, []uint16) {
	fb := make([]uint16, Width*Height)
	for i := range fb {
		fb[i] = 0xdead
	}

	var cons Console
	cons.Init(fb, Width, Height)
	return &cons, fb
}

func charAt(fb []uint16, x, y int) byte {
	return byte(fb[y*Width+x] & 0xff)
}

func TestConsoleInit(t *testing.T) {
	cons, fb := newTestConsole()

	if w, h := cons.Dimensions(); w != Width || h != Height {
		t.Fatalf("expected console dimensions after Init() to be (%d, %d); got (%d, %d)", Width, Height, w, h)
	}

	clearPat := uint16(LightGrey)<<8 | uint16(clearChar)
	for i, v := range fb {
		if v != clearPat {
			t.Fatalf("expected cell %d to be cleared; got %x", i, v)
		}
	}
}

func TestConsoleWrite(t *testing.T) {
	cons, fb := newTestConsole()

	n, err := cons.Write([]byte("12\n\t3\n4\r567"))
	assert.NoError(t, err)
	assert.Equal(t, 11, n)

	specs := []struct {
		x, y    int
		expChar byte
	}{
		{0, 0, '1'},
		{1, 0, '2'},
		// tab
		{0, 1, ' '},
		{3, 1, ' '},
		{4, 1, '3'},
		// CR returns to the start of the line
		{0, 2, '5'},
		{1, 2, '6'},
		{2, 2, '7'},
	}

	for specIndex, spec := range specs {
		if ch := charAt(fb, spec.x, spec.y); ch != spec.expChar {
			t.Errorf("[spec %d] expected char at (%d, %d) to be %c; got %c", specIndex, spec.x, spec.y, spec.expChar, ch)
		}
	}

	x, y := cons.Position()
	assert.Equal(t, uint16(3), x)
	assert.Equal(t, uint16(2), y)

	cons.SetColors(White, Red)
	_, _ = cons.Write([]byte("!"))
	assert.Equal(t, uint16(White|Red<<4)<<8|'!', fb[2*Width+3])
}

func TestConsoleWrapAndScroll(t *testing.T) {
	cons, fb := newTestConsole()

	// fill the first line exactly; the cursor wraps to the next line
	line := make([]byte, Width)
	for i := range line {
		line[i] = 'a'
	}
	_, _ = cons.Write(line)
	x, y := cons.Position()
	assert.Equal(t, uint16(0), x)
	assert.Equal(t, uint16(1), y)

	// move to the last line and write past it
	for i := 1; i < Height-1; i++ {
		_, _ = cons.Write([]byte("\n"))
	}
	_, _ = cons.Write([]byte("last\nnext"))

	// the first line scrolled off, "last" moved up one line
	assert.Equal(t, byte(' '), charAt(fb, 0, 0))
	assert.Equal(t, byte('l'), charAt(fb, 0, Height-2))
	assert.Equal(t, byte('n'), charAt(fb, 0, Height-1))
	assert.Equal(t, byte(' '), charAt(fb, 4, Height-1))

	_, y = cons.Position()
	assert.Equal(t, uint16(Height-1), y)
}

func TestConsoleAsOutputSink(t *testing.T) {
	defer kfmt.SetOutputSink(nil)

	// output produced before the console is attached is replayed to it
	kfmt.Printf("early\n")

	cons, fb := newTestConsole()
	kfmt.SetOutputSink(cons)
	kfmt.Printf("[vmm] 0x%x\n", 0xb8000)

	assert.Equal(t, byte('e'), charAt(fb, 0, 0))
	assert.Equal(t, byte('['), charAt(fb, 0, 1))
	assert.Equal(t, byte('b'), charAt(fb, 8, 1))
}

func TestFramebuffer(t *testing.T) {
	fb := Framebuffer(mm.VirtAddr(0x10000000000))
	assert.Len(t, fb, Width*Height)
	assert.Equal(t, uintptr(0x100000b8000), uintptr(unsafe.Pointer(unsafe.SliceData(fb))))
}
