package workflow

import "fmt"

// AbortError ends an item with weight 0 at a named state. The item is not
// excluded and may be selected again.
type AbortError struct {
	State  State
	Reason string
	Cause  error
}

func (e *AbortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("workflow aborted at %s: %s: %v", e.State, e.Reason, e.Cause)
	}
	return fmt.Sprintf("workflow aborted at %s: %s", e.State, e.Reason)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// StepError is an unclassified failure inside a state. It propagates to the
// batch controller's failure boundary.
type StepError struct {
	State State
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow error at %s: %v", e.State, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}
