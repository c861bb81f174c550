// Package kernel contains the types shared by all kernel packages.
package kernel

// Error describes a kernel error. Kernel errors are defined as package-level
// pointers to Error values because the memory-management core runs before
// any heap is available and therefore cannot use errors.New or fmt.Errorf.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
