package store

import (
	"errors"
	"fmt"
)

// ErrSourceMissing is returned when the source identity file does not exist.
// The run cannot start without it.
var ErrSourceMissing = errors.New("source identity file not found")

// Error represents a failed read or write of an artifact.
type Error struct {
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store error for %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("store error for %s: %s", e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
