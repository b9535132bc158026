package surface

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout marks waits that expired before their condition held.
var ErrTimeout = errors.New("timed out")

// Error describes a failed page interaction
type Error struct {
	Op       string
	Selector string
	Cause    error
}

func (e *Error) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("surface error: %s %s: %v", e.Op, e.Selector, e.Cause)
	}
	return fmt.Sprintf("surface error: %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err came from an expired wait.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func timeoutError(op, selector string) error {
	return &Error{Op: op, Selector: selector, Cause: ErrTimeout}
}

// classify converts an engine error into a surface error. Caller cancellation
// wins over everything; a deadline on the operation's own context becomes
// ErrTimeout.
func classify(ctx context.Context, op, selector string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(op, selector)
	}
	return &Error{Op: op, Selector: selector, Cause: err}
}
