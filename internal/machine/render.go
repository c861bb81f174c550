package machine

import (
	"fmt"
	"image/color"
	"math"

	"etheros/kernel/boot"
	"etheros/kernel/mm"

	"github.com/fogleman/gg"
)

const (
	renderWidth  = 1024
	renderLegend = 28
)

var (
	colorUnmapped   = color.RGBA{0x30, 0x30, 0x30, 0xff}
	colorPageTable  = color.RGBA{0xff, 0x8c, 0x00, 0xff}
	colorMapped     = color.RGBA{0x2e, 0xcc, 0x71, 0xff}
	colorBackground = color.RGBA{0x10, 0x10, 0x10, 0xff}

	regionColors = map[boot.RegionType]color.RGBA{
		boot.RegionUsable:          {0x34, 0x98, 0xdb, 0xff},
		boot.RegionInUse:           {0x9b, 0x59, 0xb6, 0xff},
		boot.RegionReserved:        {0x7f, 0x8c, 0x8d, 0xff},
		boot.RegionAcpiReclaimable: {0xf1, 0xc4, 0x0f, 0xff},
		boot.RegionAcpiNvs:         {0xd3, 0x54, 0x00, 0xff},
		boot.RegionBadMemory:       {0xc0, 0x39, 0x2b, 0xff},
		boot.RegionKernel:          {0x1a, 0xbc, 0x9c, 0xff},
		boot.RegionKernelStack:     {0x16, 0xa0, 0x85, 0xff},
		boot.RegionPageTable:       {0xe6, 0x7e, 0x22, 0xff},
		boot.RegionBootloader:      {0x8e, 0x44, 0xad, 0xff},
		boot.RegionFrameZero:       {0x00, 0x00, 0x00, 0xff},
		boot.RegionBootInfo:        {0x27, 0xae, 0x60, 0xff},
	}
)

// Render draws the physical memory of the machine to a PNG file at path.
// Every frame is a cell colored by the region that contains it; frames that
// hold page tables or back a mapped page are highlighted.
func Render(path string, m *Machine) error {
	frames := m.ram.Frames()
	cols := uint64(math.Ceil(math.Sqrt(float64(frames))))
	cell := float64(renderWidth) / float64(cols)
	rows := (frames + cols - 1) / cols
	height := int(math.Ceil(float64(rows)*cell)) + renderLegend

	dc := gg.NewContext(renderWidth, height)
	dc.SetColor(colorBackground)
	dc.Clear()

	for frame := mm.Frame(0); uint64(frame) < frames; frame++ {
		x := float64(uint64(frame)%cols) * cell
		y := float64(uint64(frame)/cols) * cell

		dc.SetColor(m.frameColor(frame))
		dc.DrawRectangle(x, y, cell, cell)
		dc.Fill()
	}

	drawn, free := m.alloc.Stats()
	dc.SetColor(color.White)
	dc.DrawStringAnchored(
		fmt.Sprintf("%d frames, %d page table frame(s), %d mapped, %d drawn, %d free", frames, len(m.tableFrames), len(m.mappedFrames), drawn, free),
		8, float64(height-renderLegend/2), 0, 0.5,
	)

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("render memory map: %w", err)
	}
	return nil
}

func (m *Machine) frameColor(frame mm.Frame) color.Color {
	if m.IsTableFrame(frame) {
		return colorPageTable
	}
	if m.IsMappedFrame(frame) {
		return colorMapped
	}

	addr := uint64(frame.Address())
	for _, r := range m.regions {
		if addr >= r.Start && addr < r.End {
			if c, ok := regionColors[r.Type]; ok {
				return c
			}
		}
	}
	return colorUnmapped
}
