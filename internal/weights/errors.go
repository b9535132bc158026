package weights

import "fmt"

// Error represents an invalid weight table
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("weights error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("weights error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
