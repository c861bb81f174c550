// Package cpu exposes the privileged amd64 instructions used by the memory
// management and interrupt handling code. All functions are implemented in
// assembly and fault if invoked from user-mode; packages that call them keep
// them behind function variables so tests can substitute mocks.
package cpu

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// Breakpoint raises a breakpoint exception (vector 3) via the INT3
// instruction. Execution resumes at the next instruction once the
// registered handler returns.
func Breakpoint()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ActivePDT returns the value of the CR3 register which contains the
// physical address of the currently active top-level page table. The low 12
// bits hold PCD/PWT flags and must be masked off by the caller.
func ActivePDT() uintptr

// CodeSegment returns the currently loaded code segment selector.
func CodeSegment() uint16

// LoadIDT loads the interrupt descriptor table register with the
// pseudo-descriptor located at descriptorAddr.
func LoadIDT(descriptorAddr uintptr)
