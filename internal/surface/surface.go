// Package surface abstracts the browser that drives the merchant portal.
// Workflows talk to a Driver; the chromedp and rod engines implement it.
package surface

import (
	"context"
	"strings"
	"time"

	"github.com/jonathan/lpg-agent/internal/pacing"
)

// Driver is the set of page interactions the portal workflows need.
// Selectors beginning with "/" or "(" are treated as XPath, all others as CSS.
type Driver interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// WaitVisible blocks until selector matches a visible element. It returns
	// an error satisfying IsTimeout when timeout elapses first.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Click clicks the first visible element matching selector.
	Click(ctx context.Context, selector string) error
	// Clear selects the element's content and deletes it.
	Clear(ctx context.Context, selector string) error
	// Type focuses selector and types text one character at a time, waiting
	// keyDelay() before each character.
	Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error
	// HTML returns the outer HTML of the first element matching selector.
	HTML(ctx context.Context, selector string) (string, error)
	// Value returns the current value property of an input element.
	Value(ctx context.Context, selector string) (string, error)
	// WaitNetworkIdle blocks until no requests have been in flight for a short
	// idle window. It returns an error satisfying IsTimeout on expiry.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error
	// Close releases the browser.
	Close() error
}

// NetworkIdleWindow is how long the network must stay quiet to count as idle.
const NetworkIdleWindow = 500 * time.Millisecond

const locationPollInterval = 100 * time.Millisecond

// IsXPath reports whether selector should be evaluated as XPath.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// ClickAndWaitNavigation clicks selector and waits until the page URL changes,
// then for the network to settle. Client-side route changes count as
// navigation.
func ClickAndWaitNavigation(ctx context.Context, d Driver, selector string, timeout time.Duration) error {
	from, err := d.Location(ctx)
	if err != nil {
		return err
	}
	if err := d.Click(ctx, selector); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		current, err := d.Location(ctx)
		if err != nil {
			return err
		}
		if current != from {
			break
		}
		if time.Now().After(deadline) {
			return timeoutError("navigation", selector)
		}
		if err := pacing.Sleep(ctx, locationPollInterval); err != nil {
			return err
		}
	}

	remaining := time.Until(deadline)
	if remaining < NetworkIdleWindow {
		remaining = NetworkIdleWindow
	}
	if err := d.WaitNetworkIdle(ctx, remaining); err != nil && !IsTimeout(err) {
		return err
	}
	return nil
}
