package surface

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/pacing"
)

// Chrome drives a single chromedp tab.
type Chrome struct {
	tab        context.Context
	cancelTab  context.CancelFunc
	cancelExec context.CancelFunc
	net        *netTracker
	navTimeout time.Duration
	log        *zap.Logger
}

// NewChrome launches Chrome through chromedp and opens one tab.
func NewChrome(ctx context.Context, opts Options, logger *zap.Logger) (*Chrome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	for _, arg := range opts.Args {
		name, value := parseArg(arg)
		if name == "" {
			continue
		}
		if value == "" {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		}
	}

	// The browser outlives any single operation, so it is not bound to ctx.
	execCtx, cancelExec := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tab, cancelTab := chromedp.NewContext(execCtx)

	c := &Chrome{
		tab:        tab,
		cancelTab:  cancelTab,
		cancelExec: cancelExec,
		net:        newNetTracker(),
		navTimeout: opts.NavigationTimeout,
		log:        logger,
	}
	chromedp.ListenTarget(tab, c.net.handle)

	err := chromedp.Run(tab,
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), 1, false),
	)
	if err != nil {
		c.Close()
		return nil, &Error{Op: "launch", Cause: err}
	}

	logger.Debug("chromedp browser started",
		zap.Bool("headless", opts.Headless),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
	)
	return c, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, op, selector string, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return classify(ctx, op, selector, chromedp.Run(runCtx, actions...))
}

func by(selector string) chromedp.QueryOption {
	if IsXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Navigate implements Driver.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, c.navTimeout, "navigate", url, chromedp.Navigate(url))
}

// Location implements Driver.
func (c *Chrome) Location(ctx context.Context) (string, error) {
	var loc string
	err := c.run(ctx, c.navTimeout, "location", "", chromedp.Location(&loc))
	return loc, err
}

// WaitVisible implements Driver.
func (c *Chrome) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return c.run(ctx, timeout, "wait", selector, chromedp.WaitVisible(selector, by(selector)))
}

// Click implements Driver.
func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.run(ctx, c.navTimeout, "click", selector, chromedp.Click(selector, by(selector), chromedp.NodeVisible))
}

// Clear implements Driver. A triple click selects the field's content.
func (c *Chrome) Clear(ctx context.Context, selector string) error {
	var nodes []*cdp.Node
	return c.run(ctx, c.navTimeout, "clear", selector,
		chromedp.Nodes(selector, &nodes, by(selector), chromedp.NodeVisible),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return fmt.Errorf("no node matches")
			}
			return chromedp.MouseClickNode(nodes[0], chromedp.ClickCount(3)).Do(ctx)
		}),
		chromedp.KeyEvent(kb.Backspace),
	)
}

// Type implements Driver.
func (c *Chrome) Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error {
	if err := c.run(ctx, c.navTimeout, "focus", selector, chromedp.Focus(selector, by(selector), chromedp.NodeVisible)); err != nil {
		return err
	}
	for _, r := range text {
		if keyDelay != nil {
			if err := pacing.Sleep(ctx, keyDelay()); err != nil {
				return err
			}
		}
		if err := c.run(ctx, c.navTimeout, "type", selector, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
	}
	return nil
}

// HTML implements Driver.
func (c *Chrome) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := c.run(ctx, c.navTimeout, "html", selector, chromedp.OuterHTML(selector, &html, by(selector)))
	return html, err
}

// Value implements Driver.
func (c *Chrome) Value(ctx context.Context, selector string) (string, error) {
	var value string
	err := c.run(ctx, c.navTimeout, "value", selector, chromedp.Value(selector, &value, by(selector)))
	return value, err
}

// WaitNetworkIdle implements Driver.
func (c *Chrome) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if c.net.idle(time.Now(), NetworkIdleWindow) {
			return nil
		}
		if time.Now().After(deadline) {
			return timeoutError("network idle", "")
		}
		if err := pacing.Sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
	}
}

// Close implements Driver.
func (c *Chrome) Close() error {
	c.cancelTab()
	c.cancelExec()
	return nil
}

// netTracker counts in-flight requests from network events.
type netTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newNetTracker() *netTracker {
	return &netTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (t *netTracker) handle(ev interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			// A top-level navigation abandons whatever the old document had pending.
			clear(t.inflight)
		}
	default:
		return
	}
	t.lastActivity = time.Now()
}

// idle reports whether nothing is in flight and nothing has happened for window.
func (t *netTracker) idle(now time.Time, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && now.Sub(t.lastActivity) >= window
}
