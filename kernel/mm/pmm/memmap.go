package pmm

import (
	"io"

	"etheros/kernel/boot"
	"etheros/kernel/kfmt"
	"etheros/kernel/mm"
)

// PrintMemoryMap writes the memory map reported by the boot stage and the
// amount of memory the frame allocator can draw from to w. If w is nil the
// output goes to the active kfmt output.
func PrintMemoryMap(w io.Writer, regions []boot.MemoryRegion) {
	var totalFrames uint64

	if w == nil {
		w = kfmt.Output()
	}

	kfmt.Fprintf(w, "[pmm] system memory map:\n")
	for i := range regions {
		region := &regions[i]
		kfmt.Fprintf(w, "\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.Start, region.End, region.Length(), region.Type.String())

		if region.Type == boot.RegionUsable {
			first, end := usableFrames(region)
			totalFrames += uint64(end - first)
		}
	}

	kfmt.Fprintf(w, "[pmm] available memory: %dKb (%d frames)\n", totalFrames*uint64(mm.PageSize)/1024, totalFrames)
}
