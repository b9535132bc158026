package surface

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/pacing"
)

// Rod drives a single go-rod page.
type Rod struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration
	log        *zap.Logger
}

// NewRod launches a browser through go-rod and opens one page.
func NewRod(ctx context.Context, opts Options, logger *zap.Logger) (*Rod, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := launcher.New().
		Headless(opts.Headless).
		Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height))
	for _, arg := range opts.Args {
		name, value := parseArg(arg)
		if name == "" {
			continue
		}
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, &Error{Op: "launch", Cause: err}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, &Error{Op: "connect", Cause: err}
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, &Error{Op: "open page", Cause: err}
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		logger.Warn("failed to set viewport", zap.Error(err))
	}

	logger.Debug("rod browser started",
		zap.String("control_url", controlURL),
		zap.Bool("headless", opts.Headless),
	)
	return &Rod{launcher: l, browser: browser, page: page, navTimeout: opts.NavigationTimeout, log: logger}, nil
}

// scoped returns the page bound to ctx and limited to timeout.
func (r *Rod) scoped(ctx context.Context, timeout time.Duration) (*rod.Page, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	return r.page.Context(opCtx), cancel
}

func find(p *rod.Page, selector string) (*rod.Element, error) {
	if IsXPath(selector) {
		return p.ElementX(selector)
	}
	return p.Element(selector)
}

func (r *Rod) visible(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, context.CancelFunc, error) {
	p, cancel := r.scoped(ctx, timeout)
	el, err := find(p, selector)
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return el, cancel, nil
}

// Navigate implements Driver.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	p, cancel := r.scoped(ctx, r.navTimeout)
	defer cancel()
	err := p.Navigate(url)
	if err == nil {
		err = p.WaitLoad()
	}
	return classify(ctx, "navigate", url, err)
}

// Location implements Driver.
func (r *Rod) Location(ctx context.Context) (string, error) {
	p, cancel := r.scoped(ctx, r.navTimeout)
	defer cancel()
	info, err := p.Info()
	if err != nil {
		return "", classify(ctx, "location", "", err)
	}
	return info.URL, nil
}

// WaitVisible implements Driver.
func (r *Rod) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	_, cancel, err := r.visible(ctx, selector, timeout)
	if err != nil {
		return classify(ctx, "wait", selector, err)
	}
	cancel()
	return nil
}

// Click implements Driver.
func (r *Rod) Click(ctx context.Context, selector string) error {
	el, cancel, err := r.visible(ctx, selector, r.navTimeout)
	if err != nil {
		return classify(ctx, "click", selector, err)
	}
	defer cancel()
	return classify(ctx, "click", selector, el.Click(proto.InputMouseButtonLeft, 1))
}

// Clear implements Driver.
func (r *Rod) Clear(ctx context.Context, selector string) error {
	el, cancel, err := r.visible(ctx, selector, r.navTimeout)
	if err != nil {
		return classify(ctx, "clear", selector, err)
	}
	defer cancel()
	if err := el.SelectAllText(); err != nil {
		return classify(ctx, "clear", selector, err)
	}
	return classify(ctx, "clear", selector, r.page.Context(ctx).Keyboard.Press(input.Backspace))
}

// Type implements Driver.
func (r *Rod) Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error {
	el, cancel, err := r.visible(ctx, selector, r.navTimeout)
	if err != nil {
		return classify(ctx, "type", selector, err)
	}
	defer cancel()
	if err := el.Focus(); err != nil {
		return classify(ctx, "type", selector, err)
	}
	for _, ch := range text {
		if keyDelay != nil {
			if err := pacing.Sleep(ctx, keyDelay()); err != nil {
				return err
			}
		}
		if err := r.page.Context(ctx).InsertText(string(ch)); err != nil {
			return classify(ctx, "type", selector, err)
		}
	}
	return nil
}

// HTML implements Driver.
func (r *Rod) HTML(ctx context.Context, selector string) (string, error) {
	p, cancel := r.scoped(ctx, r.navTimeout)
	defer cancel()
	el, err := find(p, selector)
	if err != nil {
		return "", classify(ctx, "html", selector, err)
	}
	html, err := el.HTML()
	return html, classify(ctx, "html", selector, err)
}

// Value implements Driver.
func (r *Rod) Value(ctx context.Context, selector string) (string, error) {
	p, cancel := r.scoped(ctx, r.navTimeout)
	defer cancel()
	el, err := find(p, selector)
	if err != nil {
		return "", classify(ctx, "value", selector, err)
	}
	prop, err := el.Property("value")
	if err != nil {
		return "", classify(ctx, "value", selector, err)
	}
	return prop.Str(), nil
}

// WaitNetworkIdle implements Driver.
func (r *Rod) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wait := r.page.Context(opCtx).WaitRequestIdle(NetworkIdleWindow, nil, nil, nil)
	wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if opCtx.Err() != nil {
		return timeoutError("network idle", "")
	}
	return nil
}

// Close implements Driver.
func (r *Rod) Close() error {
	err := r.browser.Close()
	r.launcher.Kill()
	return err
}
