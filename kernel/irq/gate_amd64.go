// Package irq builds and loads the interrupt descriptor table and routes
// interrupts that reach a gate trampoline to the Go handler registered for
// their vector.
package irq

import (
	"unsafe"

	"etheros/kernel"
	"etheros/kernel/cpu"
	"etheros/kernel/kfmt"
)

const (
	// gateCount is the number of entries in the IDT.
	gateCount = 256

	// gateOptionsInterrupt marks a gate as present, callable from ring 0
	// only and of type 64-bit interrupt gate.
	gateOptionsInterrupt = 0x8E00
)

// gateDescriptor is the 16-byte amd64 IDT entry.
type gateDescriptor struct {
	offsetLow  uint16
	selector   uint16
	options    uint16
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

func (gate *gateDescriptor) set(handlerAddr uintptr, selector uint16) {
	gate.offsetLow = uint16(handlerAddr)
	gate.selector = selector
	gate.options = gateOptionsInterrupt
	gate.offsetMid = uint16(handlerAddr >> 16)
	gate.offsetHigh = uint32(handlerAddr >> 32)
	gate.reserved = 0
}

func (gate *gateDescriptor) handlerAddr() uintptr {
	return uintptr(gate.offsetLow) | uintptr(gate.offsetMid)<<16 | uintptr(gate.offsetHigh)<<32
}

func (gate *gateDescriptor) present() bool {
	return gate.options&0x8000 != 0
}

// idtDescriptor is the pseudo-descriptor loaded by LIDT: a 16-bit limit
// followed by the 64-bit linear address of the table. The base is split so
// that the struct has no implicit padding.
type idtDescriptor struct {
	limit    uint16
	baseLow  uint16
	baseMid  uint32
	baseHigh uint16
	_        uint16
}

func (d *idtDescriptor) base() uintptr {
	return uintptr(d.baseLow) | uintptr(d.baseMid)<<16 | uintptr(d.baseHigh)<<48
}

var (
	// idt and idtr live for the whole kernel lifetime. The CPU keeps
	// reading them after LIDT so they must never be stack allocated.
	idt  [gateCount]gateDescriptor
	idtr idtDescriptor

	idtBuilt   bool
	buildCount int

	// handlers maps each vector to the Go handler invoked by
	// dispatchInterrupt.
	handlers = [gateCount]func(*Registers){
		Breakpoint: handleBreakpoint,
	}

	// loadIDTFn, codeSegmentFn and breakpointGateAddrFn are used by tests
	// to override calls that fault in user-mode.
	loadIDTFn            = cpu.LoadIDT
	codeSegmentFn        = cpu.CodeSegment
	breakpointGateAddrFn = breakpointGateAddr

	panicFn = kfmt.Panic

	errNoGateEntry        = &kernel.Error{Module: "irq", Message: "no gate entry for interrupt vector"}
	errUnhandledInterrupt = &kernel.Error{Module: "irq", Message: "unhandled interrupt"}
)

// Init builds the interrupt descriptor table the first time it is called
// and loads it into the CPU. Subsequent calls reload the same table; the
// table address and contents never change once built.
func Init() {
	if !idtBuilt {
		buildIDT()
		idtBuilt = true
	}

	loadIDTFn(uintptr(unsafe.Pointer(&idtr)))
}

// HandleInterrupt ensures that the provided handler will be invoked when a
// particular interrupt number occurs. Only vectors with a gate trampoline
// can be handled; errNoGateEntry is returned for all others.
func HandleInterrupt(intNumber InterruptNumber, handler func(*Registers)) *kernel.Error {
	if _, ok := gateAddrFor(intNumber); !ok {
		return errNoGateEntry
	}

	handlers[intNumber] = handler
	return nil
}

// buildIDT populates the IDT and the pseudo-descriptor that points to it. All
// gate entries without a trampoline are left non-present.
func buildIDT() {
	buildCount++
	selector := codeSegmentFn()

	for i := range idt {
		idt[i] = gateDescriptor{}
		if addr, ok := gateAddrFor(InterruptNumber(i)); ok {
			idt[i].set(addr, selector)
		}
	}

	base := uintptr(unsafe.Pointer(&idt[0]))
	idtr = idtDescriptor{
		limit:    uint16(unsafe.Sizeof(idt) - 1),
		baseLow:  uint16(base),
		baseMid:  uint32(base >> 16),
		baseHigh: uint16(base >> 48),
	}

	kfmt.Printf("[irq] installed %d gate(s), IDT at 0x%16x\n", countPresentGates(), base)
}

func countPresentGates() int {
	var count int
	for i := range idt {
		if idt[i].present() {
			count++
		}
	}
	return count
}

// gateAddrFor returns the address of the trampoline for a vector.
func gateAddrFor(intNumber InterruptNumber) (uintptr, bool) {
	switch intNumber {
	case Breakpoint:
		return breakpointGateAddrFn(), true
	default:
		return 0, false
	}
}

// dispatchInterrupt is invoked by the interrupt gate trampolines with a
// pointer to the saved register state. Any change the handler makes to regs
// is restored to the CPU when the trampoline returns.
//
//go:nosplit
func dispatchInterrupt(regs *Registers) {
	if handler := handlers[uint8(regs.Vector)]; handler != nil {
		handler(regs)
		return
	}

	kfmt.Printf("[irq] no handler for vector %d\n", regs.Vector)
	regs.DumpTo(kfmt.Output())
	panicFn(errUnhandledInterrupt)
}

// handleBreakpoint reports the breakpoint and lets execution continue after
// the INT3 instruction.
func handleBreakpoint(regs *Registers) {
	kfmt.Printf("EXCEPTION: BREAKPOINT\n")
	regs.DumpTo(kfmt.Output())
}

// breakpointGate is the IDT entrypoint for the breakpoint exception.
func breakpointGate()

// breakpointGateAddr returns the address of breakpointGate.
func breakpointGateAddr() uintptr
