package surface

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Engine names accepted by Open.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Options configures the browser launch.
type Options struct {
	Engine            string
	Headless          bool
	Width             int
	Height            int
	Args              []string
	NavigationTimeout time.Duration
}

// DefaultOptions returns a visible 1366x768 window with a 60s navigation timeout.
func DefaultOptions() Options {
	return Options{
		Engine:            EngineChromedp,
		Headless:          false,
		Width:             1366,
		Height:            768,
		Args:              []string{"--start-maximized"},
		NavigationTimeout: 60 * time.Second,
	}
}

// Open launches a browser with the configured engine.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Driver, error) {
	switch opts.Engine {
	case "", EngineChromedp:
		return NewChrome(ctx, opts, logger)
	case EngineRod:
		return NewRod(ctx, opts, logger)
	default:
		return nil, &Error{Op: "open", Cause: fmt.Errorf("unknown browser engine %q", opts.Engine)}
	}
}

// parseArg splits a command-line switch such as "--lang=id" into its name and
// value. Switches without a value return an empty value.
func parseArg(arg string) (name, value string) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	name, value, _ = strings.Cut(arg, "=")
	return name, value
}
