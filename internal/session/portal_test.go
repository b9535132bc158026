package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/lpg-agent/internal/pacing"
	"github.com/jonathan/lpg-agent/internal/surface/surfacetest"
)

const (
	baseURL   = "https://portal.test/merchant"
	loginURL  = "https://portal.test/merchant-login"
	verifyURL = "https://portal.test/merchant/app/verification-nik"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.URLs.Base = baseURL
	opts.Credentials = Credentials{Email: "agen@example.com", PIN: "123456"}
	opts.NavigationTimeout = time.Second
	return opts
}

func newPortal(d *surfacetest.Driver) *Portal {
	return New(d, testOptions(), pacing.NoWait{}, nil)
}

func TestURLsVerification(t *testing.T) {
	u := URLs{Base: "https://portal.test/merchant/", VerificationFragment: "/app/verification-nik"}
	assert.Equal(t, verifyURL, u.Verification())
}

func TestLogin_SignsInWhenRedirected(t *testing.T) {
	sel := DefaultSelectors()
	d := surfacetest.New("about:blank")
	d.OnNavigate = func(d *surfacetest.Driver, url string) {
		if url == baseURL {
			d.URL = loginURL
			d.Show(sel.EmailInput, sel.PINInput, sel.LoginButton)
		}
	}
	d.OnClick[sel.LoginButton] = func(d *surfacetest.Driver) { d.URL = verifyURL }

	require.NoError(t, newPortal(d).Login(context.Background()))

	assert.Equal(t, "agen@example.com", d.Values[sel.EmailInput])
	assert.Equal(t, "123456", d.Values[sel.PINInput])
	assert.True(t, d.Called("click "+sel.LoginButton))
	assert.Equal(t, verifyURL, d.URL)
}

func TestLogin_SkipsFormWhenAlreadySignedIn(t *testing.T) {
	d := surfacetest.New("about:blank")
	d.OnNavigate = func(d *surfacetest.Driver, url string) { d.URL = verifyURL }

	require.NoError(t, newPortal(d).Login(context.Background()))
	assert.Zero(t, d.Count("type"))
}

func TestLogin_MissingButtonFails(t *testing.T) {
	sel := DefaultSelectors()
	d := surfacetest.New("about:blank")
	d.OnNavigate = func(d *surfacetest.Driver, url string) {
		d.URL = loginURL
		d.Show(sel.EmailInput, sel.PINInput)
	}

	err := newPortal(d).Login(context.Background())
	require.Error(t, err)
	var sessErr *Error
	require.True(t, errors.As(err, &sessErr))
	assert.Contains(t, sessErr.Message, "login submission failed")
}

func TestEnsureVerificationPage_NoopWhenThere(t *testing.T) {
	d := surfacetest.New(verifyURL)
	require.NoError(t, newPortal(d).EnsureVerificationPage(context.Background()))
	assert.Zero(t, d.Count("navigate"))
}

func TestEnsureVerificationPage_ForcesNavigation(t *testing.T) {
	d := surfacetest.New("https://portal.test/merchant/app/transaction")

	require.NoError(t, newPortal(d).EnsureVerificationPage(context.Background()))
	assert.True(t, d.Called("navigate "+verifyURL))
}

func TestEnsureVerificationPage_FailsWhenRedirectedAway(t *testing.T) {
	d := surfacetest.New("https://portal.test/merchant/app/transaction")
	d.OnNavigate = func(d *surfacetest.Driver, url string) { d.URL = loginURL }

	err := newPortal(d).EnsureVerificationPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestEnsureVerificationPage_NavigationError(t *testing.T) {
	d := surfacetest.New("https://portal.test/elsewhere")
	d.Fail("navigate", verifyURL, errors.New("net::ERR_CONNECTION_RESET"))

	err := newPortal(d).EnsureVerificationPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_CONNECTION_RESET")
}

func TestCloseInitialModal(t *testing.T) {
	sel := DefaultSelectors()

	d := surfacetest.New(verifyURL)
	d.Show(sel.InitialModalClose)
	d.OnClick[sel.InitialModalClose] = func(d *surfacetest.Driver) { d.Hide(sel.InitialModalClose) }
	newPortal(d).CloseInitialModal(context.Background(), time.Second)
	assert.True(t, d.Called("click "+sel.InitialModalClose))

	absent := surfacetest.New(verifyURL)
	newPortal(absent).CloseInitialModal(context.Background(), time.Second)
	assert.Zero(t, absent.Count("click"))
}

func TestPrepare(t *testing.T) {
	sel := DefaultSelectors()
	d := surfacetest.New("about:blank")
	d.OnNavigate = func(d *surfacetest.Driver, url string) {
		d.URL = "https://portal.test/merchant/app/dashboard"
		d.Show(sel.InitialModalClose)
		if url == verifyURL {
			d.URL = verifyURL
		}
	}

	require.NoError(t, newPortal(d).Prepare(context.Background()))
	assert.Equal(t, verifyURL, d.URL)
	assert.True(t, d.Called("click "+sel.InitialModalClose))
}

func TestReposition_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newPortal(surfacetest.New(verifyURL)).Reposition(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
