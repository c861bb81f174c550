// Package kmain contains the kernel entrypoint and the startup sequence that
// brings up interrupt handling and memory management.
package kmain

import (
	"unsafe"

	"etheros/kernel"
	"etheros/kernel/boot"
	"etheros/kernel/cpu"
	"etheros/kernel/driver/vga"
	"etheros/kernel/irq"
	"etheros/kernel/kfmt"
	"etheros/kernel/mm"
	"etheros/kernel/mm/pmm"
	"etheros/kernel/mm/vmm"
)

const (
	// examplePage is mapped to the VGA text buffer to exercise MapPage.
	examplePage = mm.Page(0xdeadbeaf000 >> mm.PageShift)

	// vgaTextFrame is the frame that holds the VGA text buffer.
	vgaTextFrame = mm.Frame(0xb8000 >> mm.PageShift)

	// exampleValue renders "New!" in white on red when written to the
	// VGA text buffer.
	exampleValue = uint64(0xf021f077f065f04e)
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// probeAddrs are translated and printed during startup: the VGA
	// buffer, a page of kernel code, a page of the kernel stack and the
	// page mapped by mapExamplePage. The physical memory offset is probed
	// as well.
	probeAddrs = [...]mm.VirtAddr{
		0xb8000,
		0x201008,
		0x0100_0020_1a10,
		examplePage.Address(),
	}

	frameAllocator pmm.Allocator
	pageTable      vmm.PageTable
	console        vga.Console

	// The following functions are used by tests to mock calls that fault
	// in user-mode or that never return.
	disableInterruptsFn = cpu.DisableInterrupts
	breakpointFn        = cpu.Breakpoint
	irqInitFn           = irq.Init
	vmmInitFn           = vmm.Init
	attachConsoleFn     = attachConsole
	store64Fn           = store64
	panicFn             = kfmt.Panic
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The boot stage passes the address of the handoff
// block that describes the physical memory offset and the memory map.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(bootInfoPtr uintptr) {
	disableInterruptsFn()
	boot.SetInfoPtr(bootInfoPtr)

	irqInitFn()

	var err *kernel.Error
	if pageTable, err = vmmInitFn(boot.PhysicalMemoryOffset()); err != nil {
		panicFn(err)
		return
	}
	attachConsoleFn(mm.VirtAddr(boot.PhysicalMemoryOffset()))

	regions := boot.MemoryRegions()
	frameAllocator.Init(pmm.KindBump, regions, nil)
	pmm.PrintMemoryMap(nil, regions)

	// Interrupts stay masked; only the breakpoint gate is present and int3
	// does not depend on IF.
	breakpointFn()
	kfmt.Printf("[kmain] resumed after breakpoint\n")

	if err = mapExamplePage(); err != nil {
		panicFn(err)
		return
	}

	for _, addr := range probeAddrs {
		printTranslation(addr)
	}
	printTranslation(mm.VirtAddr(boot.PhysicalMemoryOffset()))

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// mapExamplePage maps examplePage to the VGA text buffer and writes to it
// through the new mapping.
func mapExamplePage() *kernel.Error {
	if err := pageTable.MapPage(examplePage, vgaTextFrame, vmm.FlagRW, &frameAllocator); err != nil {
		return err
	}

	store64Fn(examplePage.Address().Add(400<<mm.PointerShift), exampleValue)
	return nil
}

// attachConsole redirects kfmt output to the VGA text buffer. Output
// captured before this point is replayed to the console.
func attachConsole(physMemOffset mm.VirtAddr) {
	console.Init(vga.Framebuffer(physMemOffset), vga.Width, vga.Height)
	kfmt.SetOutputSink(&console)
}

func printTranslation(virtAddr mm.VirtAddr) {
	physAddr, err := pageTable.Translate(virtAddr)
	switch {
	case err == vmm.ErrInvalidMapping:
		kfmt.Printf("[vmm] 0x%16x -> unmapped\n", uintptr(virtAddr))
	case err != nil:
		kfmt.Printf("[vmm] 0x%16x -> %s\n", uintptr(virtAddr), err.Message)
	default:
		kfmt.Printf("[vmm] 0x%16x -> 0x%16x\n", uintptr(virtAddr), uintptr(physAddr))
	}
}

func store64(virtAddr mm.VirtAddr, value uint64) {
	*(*uint64)(unsafe.Pointer(uintptr(virtAddr))) = value
}
