// Package pacing decides how long the agent waits between human-like actions.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy supplies keystroke delays and context-aware sleeps.
type Policy interface {
	// Keystroke returns the delay before the next typed character.
	Keystroke() time.Duration
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Human types with a uniformly jittered delay between Min and Max.
type Human struct {
	Min time.Duration
	Max time.Duration
}

// DefaultHuman returns the 30-100ms keystroke jitter used for identifiers.
func DefaultHuman() Human {
	return Human{Min: 30 * time.Millisecond, Max: 100 * time.Millisecond}
}

// Keystroke implements Policy.
func (h Human) Keystroke() time.Duration {
	if h.Max <= h.Min {
		return h.Min
	}
	return h.Min + rand.N(h.Max-h.Min+1)
}

// Sleep implements Policy.
func (h Human) Sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

// Fixed uses the same delay for every keystroke.
type Fixed time.Duration

// Keystroke implements Policy.
func (f Fixed) Keystroke() time.Duration { return time.Duration(f) }

// Sleep implements Policy.
func (f Fixed) Sleep(ctx context.Context, d time.Duration) error { return Sleep(ctx, d) }

// NoWait never sleeps. Tests use it to run workflows without wall-clock delays.
type NoWait struct{}

// Keystroke implements Policy.
func (NoWait) Keystroke() time.Duration { return 0 }

// Sleep implements Policy. It still reports cancellation.
func (NoWait) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
