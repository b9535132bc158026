package session

import "fmt"

// Error represents a failure to bring the portal into a usable state
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("session error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
