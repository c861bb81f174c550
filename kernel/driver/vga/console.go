// Package vga implements a text console on top of the VGA text mode buffer.
// It serves as the kfmt output sink once the kernel can reach the buffer.
package vga

import (
	"unsafe"

	"etheros/kernel/mm"
)

// Attr defines a color attribute.
type Attr uint16

// The set of attributes that can be used with SetColors.
const (
	Black Attr = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	Grey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

const (
	// TextBufferAddr is the physical address of the text mode buffer.
	TextBufferAddr = mm.PhysAddr(0xb8000)

	// Width and Height are the dimensions of the 80x25 text mode.
	Width  = 80
	Height = 25

	clearChar = byte(' ')
)

// Framebuffer returns the text buffer as seen through the physical memory
// offset mapping.
func Framebuffer(physMemOffset mm.VirtAddr) []uint16 {
	return unsafe.Slice((*uint16)(unsafe.Pointer(uintptr(physMemOffset)+uintptr(TextBufferAddr))), Width*Height)
}

// Console is a terminal that processes LF and CR characters and scrolls
// when the cursor moves past the last line.
type Console struct {
	fb []uint16

	width  uint16
	height uint16

	curX, curY uint16
	attr       Attr
}

// Init attaches the console to a width x height character framebuffer and
// clears it.
func (c *Console) Init(fb []uint16, width, height uint16) {
	c.fb = fb[:int(width)*int(height)]
	c.width, c.height = width, height
	c.SetColors(LightGrey, Black)
	c.Clear()
}

// SetColors sets the attribute used by subsequent writes.
func (c *Console) SetColors(fg, bg Attr) {
	c.attr = (bg << 4) | (fg & 0xF)
}

// Dimensions returns the console width and height in characters.
func (c *Console) Dimensions() (uint16, uint16) {
	return c.width, c.height
}

// Position returns the current cursor position (x, y).
func (c *Console) Position() (uint16, uint16) {
	return c.curX, c.curY
}

// Clear blanks the console and moves the cursor to the top-left corner.
func (c *Console) Clear() {
	c.clearLines(0, c.height)
	c.curX, c.curY = 0, 0
}

// Write implements io.Writer.
func (c *Console) Write(data []byte) (int, error) {
	for _, b := range data {
		switch b {
		case '\r':
			c.curX = 0
		case '\n':
			c.curX = 0
			c.lf()
		case '\t':
			for i := 0; i < 4; i++ {
				c.put(' ')
			}
		default:
			c.put(b)
		}
	}

	return len(data), nil
}

func (c *Console) put(ch byte) {
	c.fb[c.curY*c.width+c.curX] = (uint16(c.attr) << 8) | uint16(ch)
	c.curX++
	if c.curX == c.width {
		c.curX = 0
		c.lf()
	}
}

// lf advances the y coordinate of the cursor by one line scrolling the
// contents if the end of the last line is reached.
func (c *Console) lf() {
	if c.curY+1 < c.height {
		c.curY++
		return
	}

	copy(c.fb, c.fb[c.width:])
	c.clearLines(c.height-1, 1)
}

func (c *Console) clearLines(y, count uint16) {
	clr := (uint16(c.attr) << 8) | uint16(clearChar)
	for i := y * c.width; i < (y+count)*c.width; i++ {
		c.fb[i] = clr
	}
}
