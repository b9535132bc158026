// Package session brings the merchant portal to the NIK verification page:
// login when redirected, re-navigation when lost, and dismissal of the
// announcement modal.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/pacing"
	"github.com/jonathan/lpg-agent/internal/surface"
)

// URLs locates the portal pages.
type URLs struct {
	Base                 string
	LoginFragment        string
	VerificationFragment string
}

// Verification returns the absolute URL of the NIK verification page.
func (u URLs) Verification() string {
	return strings.TrimRight(u.Base, "/") + u.VerificationFragment
}

// Credentials are typed into the login form as-is.
type Credentials struct {
	Email string
	PIN   string
}

// Options configures a Portal.
type Options struct {
	URLs        URLs
	Credentials Credentials
	Selectors   Selectors

	LoginKeyDelay     time.Duration
	NavigationTimeout time.Duration
	SettleTimeout     time.Duration
	SetupModalTimeout time.Duration
	ItemModalTimeout  time.Duration
	ModalCloseSettle  time.Duration
	LoginFieldTimeout time.Duration
}

// DefaultOptions returns the portal defaults with empty credentials.
func DefaultOptions() Options {
	return Options{
		URLs: URLs{
			Base:                 "https://subsiditepatlpg.mypertamina.id/merchant",
			LoginFragment:        "/merchant-login",
			VerificationFragment: "/app/verification-nik",
		},
		Selectors:         DefaultSelectors(),
		LoginKeyDelay:     50 * time.Millisecond,
		NavigationTimeout: 60 * time.Second,
		SettleTimeout:     10 * time.Second,
		SetupModalTimeout: 7 * time.Second,
		ItemModalTimeout:  5 * time.Second,
		ModalCloseSettle:  500 * time.Millisecond,
		LoginFieldTimeout: 30 * time.Second,
	}
}

// Portal drives the setup-phase pages of the merchant portal.
type Portal struct {
	driver surface.Driver
	opts   Options
	pacer  pacing.Policy
	log    *zap.Logger
}

// New creates a Portal. A nil pacer uses real sleeps; a nil logger discards.
func New(driver surface.Driver, opts Options, pacer pacing.Policy, logger *zap.Logger) *Portal {
	if pacer == nil {
		pacer = pacing.DefaultHuman()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Portal{driver: driver, opts: opts, pacer: pacer, log: logger}
}

// Prepare runs the setup phase: login if needed, reach the verification page,
// and close the announcement modal. Any error is fatal to the run.
func (p *Portal) Prepare(ctx context.Context) error {
	if err := p.Login(ctx); err != nil {
		return err
	}
	if err := p.EnsureVerificationPage(ctx); err != nil {
		return err
	}
	p.CloseInitialModal(ctx, p.opts.SetupModalTimeout)
	return ctx.Err()
}

// Reposition returns to the verification page before an item and closes the
// announcement modal if it reappears.
func (p *Portal) Reposition(ctx context.Context) error {
	if err := p.EnsureVerificationPage(ctx); err != nil {
		return err
	}
	p.CloseInitialModal(ctx, p.opts.ItemModalTimeout)
	return ctx.Err()
}

// Login opens the base URL and signs in when the portal redirects to the
// login page.
func (p *Portal) Login(ctx context.Context) error {
	p.log.Info("navigating to portal", zap.String("url", p.opts.URLs.Base))
	if err := p.driver.Navigate(ctx, p.opts.URLs.Base); err != nil {
		return &Error{Message: "failed to open portal", Cause: err}
	}
	if err := p.settle(ctx); err != nil {
		return err
	}

	loc, err := p.driver.Location(ctx)
	if err != nil {
		return &Error{Message: "failed to read location", Cause: err}
	}
	if !strings.Contains(loc, p.opts.URLs.LoginFragment) {
		p.log.Info("already signed in")
		return nil
	}

	p.log.Info("redirected to login page, signing in")
	sel := p.opts.Selectors
	if err := p.driver.WaitVisible(ctx, sel.EmailInput, p.opts.LoginFieldTimeout); err != nil {
		return &Error{Message: "login form did not appear", Cause: err}
	}
	keyDelay := func() time.Duration { return p.opts.LoginKeyDelay }
	if err := p.driver.Type(ctx, sel.EmailInput, p.opts.Credentials.Email, keyDelay); err != nil {
		return &Error{Message: "failed to type email", Cause: err}
	}
	if err := p.driver.Type(ctx, sel.PINInput, p.opts.Credentials.PIN, keyDelay); err != nil {
		return &Error{Message: "failed to type PIN", Cause: err}
	}
	if err := surface.ClickAndWaitNavigation(ctx, p.driver, sel.LoginButton, p.opts.NavigationTimeout); err != nil {
		return &Error{Message: "login submission failed", Cause: err}
	}

	p.log.Info("login submitted")
	return nil
}

// EnsureVerificationPage force-navigates to the verification page unless the
// surface is already there.
func (p *Portal) EnsureVerificationPage(ctx context.Context) error {
	fragment := p.opts.URLs.VerificationFragment
	loc, err := p.driver.Location(ctx)
	if err != nil {
		return &Error{Message: "failed to read location", Cause: err}
	}
	if strings.Contains(loc, fragment) {
		return nil
	}

	p.log.Warn("not on verification page, navigating", zap.String("url", loc))
	if err := p.driver.Navigate(ctx, p.opts.URLs.Verification()); err != nil {
		return &Error{Message: "failed to open verification page", Cause: err}
	}
	if err := p.settle(ctx); err != nil {
		return err
	}

	loc, err = p.driver.Location(ctx)
	if err != nil {
		return &Error{Message: "failed to read location", Cause: err}
	}
	if !strings.Contains(loc, fragment) {
		return &Error{Message: "verification page unreachable after forced navigation, landed on " + loc}
	}
	p.log.Info("reached verification page")
	return nil
}

// CloseInitialModal dismisses the announcement modal if it appears within
// timeout. Absence is normal and not reported as an error.
func (p *Portal) CloseInitialModal(ctx context.Context, timeout time.Duration) {
	closeSel := p.opts.Selectors.InitialModalClose
	if err := p.driver.WaitVisible(ctx, closeSel, timeout); err != nil {
		p.log.Debug("initial modal not shown")
		return
	}
	p.log.Info("initial modal detected, closing")
	if err := p.driver.Click(ctx, closeSel); err != nil {
		p.log.Debug("initial modal close failed", zap.Error(err))
		return
	}
	_ = p.pacer.Sleep(ctx, p.opts.ModalCloseSettle)
}

// settle waits for the network to quiet down after a navigation. A timeout is
// tolerated; cancellation is not.
func (p *Portal) settle(ctx context.Context) error {
	err := p.driver.WaitNetworkIdle(ctx, p.opts.SettleTimeout)
	if err == nil || surface.IsTimeout(err) {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	p.log.Debug("network idle wait failed", zap.Error(err))
	return nil
}
