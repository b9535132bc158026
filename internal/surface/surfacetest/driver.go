// Package surfacetest provides a scripted in-memory surface.Driver.
package surfacetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/lpg-agent/internal/surface"
)

// ErrNoNode is returned when an interaction targets an element that is not visible.
var ErrNoNode = errors.New("no visible node")

// Driver is a fake page. Tests mark selectors visible, attach HTML and
// values, and hook clicks to script how the page reacts.
type Driver struct {
	mu sync.Mutex

	URL      string
	Visible  map[string]bool
	HTMLs    map[string]string
	Values   map[string]string
	Failures map[string]error

	// OnClick runs after a successful click on the selector.
	OnClick map[string]func(d *Driver)
	// OnNavigate runs after Navigate updates URL.
	OnNavigate func(d *Driver, url string)

	NetworkIdleErr error
	Calls          []string
	Closed         bool
}

// New returns an empty page at url.
func New(url string) *Driver {
	return &Driver{
		URL:      url,
		Visible:  make(map[string]bool),
		HTMLs:    make(map[string]string),
		Values:   make(map[string]string),
		Failures: make(map[string]error),
		OnClick:  make(map[string]func(d *Driver)),
	}
}

var _ surface.Driver = (*Driver)(nil)

// Show marks selectors visible.
func (d *Driver) Show(selectors ...string) {
	for _, s := range selectors {
		d.Visible[s] = true
	}
}

// Hide marks selectors hidden.
func (d *Driver) Hide(selectors ...string) {
	for _, s := range selectors {
		delete(d.Visible, s)
	}
}

// Fail makes the next and all later calls of op on selector return err.
func (d *Driver) Fail(op, selector string, err error) {
	d.Failures[op+" "+selector] = err
}

// Count returns how many recorded calls start with prefix.
func (d *Driver) Count(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Called reports whether call was recorded exactly.
func (d *Driver) Called(call string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.Calls {
		if c == call {
			return true
		}
	}
	return false
}

func (d *Driver) record(op, arg string) error {
	d.mu.Lock()
	d.Calls = append(d.Calls, op+" "+arg)
	err := d.Failures[op+" "+arg]
	d.mu.Unlock()
	return err
}

func (d *Driver) requireVisible(op, selector string) error {
	if !d.Visible[selector] {
		return &surface.Error{Op: op, Selector: selector, Cause: ErrNoNode}
	}
	return nil
}

// Navigate implements surface.Driver.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.record("navigate", url); err != nil {
		return err
	}
	d.URL = url
	if d.OnNavigate != nil {
		d.OnNavigate(d, url)
	}
	return nil
}

// Location implements surface.Driver.
func (d *Driver) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.URL, nil
}

// WaitVisible implements surface.Driver.
func (d *Driver) WaitVisible(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.record("wait", selector); err != nil {
		return err
	}
	if !d.Visible[selector] {
		return &surface.Error{Op: "wait", Selector: selector, Cause: surface.ErrTimeout}
	}
	return nil
}

// Click implements surface.Driver.
func (d *Driver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.record("click", selector); err != nil {
		return err
	}
	if err := d.requireVisible("click", selector); err != nil {
		return err
	}
	if hook := d.OnClick[selector]; hook != nil {
		hook(d)
	}
	return nil
}

// Clear implements surface.Driver.
func (d *Driver) Clear(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.record("clear", selector); err != nil {
		return err
	}
	if err := d.requireVisible("clear", selector); err != nil {
		return err
	}
	d.Values[selector] = ""
	return nil
}

// Type implements surface.Driver. keyDelay is called once per character but
// never slept on.
func (d *Driver) Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.record("type", selector); err != nil {
		return err
	}
	if err := d.requireVisible("type", selector); err != nil {
		return err
	}
	for range text {
		if keyDelay != nil {
			keyDelay()
		}
	}
	d.Values[selector] += text
	return nil
}

// HTML implements surface.Driver.
func (d *Driver) HTML(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := d.record("html", selector); err != nil {
		return "", err
	}
	html, ok := d.HTMLs[selector]
	if !ok {
		return "", &surface.Error{Op: "html", Selector: selector, Cause: ErrNoNode}
	}
	return html, nil
}

// Value implements surface.Driver.
func (d *Driver) Value(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := d.record("value", selector); err != nil {
		return "", err
	}
	v, ok := d.Values[selector]
	if !ok {
		return "", &surface.Error{Op: "value", Selector: selector, Cause: ErrNoNode}
	}
	return v, nil
}

// WaitNetworkIdle implements surface.Driver.
func (d *Driver) WaitNetworkIdle(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.record("idle", ""); err != nil {
		return err
	}
	return d.NetworkIdleErr
}

// Close implements surface.Driver.
func (d *Driver) Close() error {
	d.Closed = true
	return nil
}

// TimeoutErr returns an error that satisfies surface.IsTimeout.
func TimeoutErr(op string) error {
	return &surface.Error{Op: op, Cause: fmt.Errorf("fake: %w", surface.ErrTimeout)}
}
