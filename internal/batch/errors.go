package batch

import "fmt"

// PanicError carries a panic recovered at the item boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic while processing item: %v", e.Value)
}
