// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	// Embedded zone data so the default timezone resolves on minimal hosts.
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/lpg-agent/internal/pacing"
	"github.com/jonathan/lpg-agent/internal/session"
	"github.com/jonathan/lpg-agent/internal/store"
	"github.com/jonathan/lpg-agent/internal/surface"
	"github.com/jonathan/lpg-agent/internal/weights"
	"github.com/jonathan/lpg-agent/internal/workflow"
)

// Default artifact file names inside the data directory.
const (
	DefaultSourceFile    = "nik-data.json"
	DefaultProcessedFile = "processed-niks.json"
	DefaultInvalidFile   = "invalid-niks.json"
	DefaultErrorLogFile  = "automation-error.log"
	DefaultTimezone      = "Asia/Makassar"
)

// Config is the full configuration surface. It can be loaded from a JSON or
// YAML file; environment variables and CLI flags override file values.
type Config struct {
	Portal      PortalConfig      `yaml:"portal" json:"portal"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`

	Weights   map[string]int `yaml:"weights" json:"weights" validate:"required,min=1,dive,keys,required,endkeys,gt=0"`
	MaxWeight int            `yaml:"max_weight" json:"max_weight" validate:"gt=0"`

	Browser   BrowserConfig     `yaml:"browser" json:"browser"`
	Timings   TimingsConfig     `yaml:"timings" json:"timings"`
	Selectors session.Selectors `yaml:"selectors" json:"selectors"`
	Texts     session.Texts     `yaml:"texts" json:"texts"`

	Timezone    string `yaml:"timezone" json:"timezone" validate:"required"`
	DatabaseURL string `yaml:"database_url" json:"database_url,omitempty"`
	Verbose     bool   `yaml:"verbose" json:"verbose,omitempty"`

	location *time.Location
}

// PortalConfig locates the merchant portal.
type PortalConfig struct {
	BaseURL              string `yaml:"base_url" json:"base_url" validate:"required,url"`
	LoginFragment        string `yaml:"login_fragment" json:"login_fragment" validate:"required,startswith=/"`
	VerificationFragment string `yaml:"verification_fragment" json:"verification_fragment" validate:"required,startswith=/"`
}

// CredentialsConfig is the merchant login. Usually supplied through the environment.
type CredentialsConfig struct {
	Email string `yaml:"email" json:"email,omitempty"`
	PIN   string `yaml:"pin" json:"pin,omitempty"`
}

// PathsConfig locates the run artifacts. Empty file paths default to names
// inside DataDir. Relative paths are anchored at Root when it is set and at
// the working directory otherwise.
type PathsConfig struct {
	Root      string `yaml:"root" json:"root,omitempty"`
	DataDir   string `yaml:"data_dir" json:"data_dir" validate:"required"`
	Source    string `yaml:"source" json:"source,omitempty" validate:"required"`
	Processed string `yaml:"processed" json:"processed,omitempty" validate:"required"`
	Invalid   string `yaml:"invalid" json:"invalid,omitempty" validate:"required"`
	ErrorLog  string `yaml:"error_log" json:"error_log,omitempty" validate:"required"`
}

// BrowserConfig configures the browser session.
type BrowserConfig struct {
	Engine              string   `yaml:"engine" json:"engine" validate:"oneof=chromedp rod"`
	Headless            bool     `yaml:"headless" json:"headless"`
	Width               int      `yaml:"width" json:"width" validate:"gt=0"`
	Height              int      `yaml:"height" json:"height" validate:"gt=0"`
	Args                []string `yaml:"args" json:"args"`
	NavigationTimeoutMS int      `yaml:"navigation_timeout_ms" json:"navigation_timeout_ms" validate:"gt=0"`
}

// TimingsConfig holds every wait and settle delay in milliseconds.
type TimingsConfig struct {
	KeystrokeMinMS int `yaml:"keystroke_min_ms" json:"keystroke_min_ms" validate:"gte=0"`
	KeystrokeMaxMS int `yaml:"keystroke_max_ms" json:"keystroke_max_ms" validate:"gtefield=KeystrokeMinMS"`
	LoginKeyMS     int `yaml:"login_key_ms" json:"login_key_ms" validate:"gte=0"`

	SetupModalMS int `yaml:"setup_modal_ms" json:"setup_modal_ms" validate:"gt=0"`
	ItemModalMS  int `yaml:"item_modal_ms" json:"item_modal_ms" validate:"gt=0"`

	InputWaitMS           int `yaml:"input_wait_ms" json:"input_wait_ms" validate:"gt=0"`
	CheckQuiescenceMS     int `yaml:"check_quiescence_ms" json:"check_quiescence_ms" validate:"gt=0"`
	CheckSettleMS         int `yaml:"check_settle_ms" json:"check_settle_ms" validate:"gte=0"`
	CheckFallbackSettleMS int `yaml:"check_fallback_settle_ms" json:"check_fallback_settle_ms" validate:"gte=0"`
	QuotaProbeDelayMS     int `yaml:"quota_probe_delay_ms" json:"quota_probe_delay_ms" validate:"gte=0"`
	UserTypeModalMS       int `yaml:"user_type_modal_ms" json:"user_type_modal_ms" validate:"gt=0"`
	ContinueButtonMS      int `yaml:"continue_button_ms" json:"continue_button_ms" validate:"gt=0"`
	ConfirmQuiescenceMS   int `yaml:"confirm_quiescence_ms" json:"confirm_quiescence_ms" validate:"gt=0"`
	ConfirmSettleMS       int `yaml:"confirm_settle_ms" json:"confirm_settle_ms" validate:"gte=0"`
	UpdateDataModalMS     int `yaml:"update_data_modal_ms" json:"update_data_modal_ms" validate:"gt=0"`
	SkipQuiescenceMS      int `yaml:"skip_quiescence_ms" json:"skip_quiescence_ms" validate:"gt=0"`
	SkipSettleMS          int `yaml:"skip_settle_ms" json:"skip_settle_ms" validate:"gte=0"`
	AddControlMS          int `yaml:"add_control_ms" json:"add_control_ms" validate:"gt=0"`
	AddClickWaitMS        int `yaml:"add_click_wait_ms" json:"add_click_wait_ms" validate:"gt=0"`
	AddSettleMS           int `yaml:"add_settle_ms" json:"add_settle_ms" validate:"gte=0"`
	QuantityWaitMS        int `yaml:"quantity_wait_ms" json:"quantity_wait_ms" validate:"gt=0"`
	PayQuiescenceMS       int `yaml:"pay_quiescence_ms" json:"pay_quiescence_ms" validate:"gt=0"`
	PaySettleMS           int `yaml:"pay_settle_ms" json:"pay_settle_ms" validate:"gte=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	portal := session.DefaultOptions()
	browser := surface.DefaultOptions()
	wt := workflow.DefaultTimings()
	human := pacing.DefaultHuman()

	return Config{
		Portal: PortalConfig{
			BaseURL:              portal.URLs.Base,
			LoginFragment:        portal.URLs.LoginFragment,
			VerificationFragment: portal.URLs.VerificationFragment,
		},
		Paths:     PathsConfig{DataDir: "data"},
		Weights:   map[string]int{"Rumah Tangga": 1, "Usaha Mikro": 2},
		MaxWeight: 100,
		Browser: BrowserConfig{
			Engine:              browser.Engine,
			Headless:            browser.Headless,
			Width:               browser.Width,
			Height:              browser.Height,
			Args:                browser.Args,
			NavigationTimeoutMS: ms(browser.NavigationTimeout),
		},
		Timings: TimingsConfig{
			KeystrokeMinMS:        ms(human.Min),
			KeystrokeMaxMS:        ms(human.Max),
			LoginKeyMS:            ms(portal.LoginKeyDelay),
			SetupModalMS:          ms(portal.SetupModalTimeout),
			ItemModalMS:           ms(portal.ItemModalTimeout),
			InputWaitMS:           ms(wt.InputWait),
			CheckQuiescenceMS:     ms(wt.CheckQuiescence),
			CheckSettleMS:         ms(wt.CheckSettle),
			CheckFallbackSettleMS: ms(wt.CheckFallbackSettle),
			QuotaProbeDelayMS:     ms(wt.QuotaProbeDelay),
			UserTypeModalMS:       ms(wt.UserTypeModalWait),
			ContinueButtonMS:      ms(wt.ContinueButtonWait),
			ConfirmQuiescenceMS:   ms(wt.ConfirmQuiescence),
			ConfirmSettleMS:       ms(wt.ConfirmSettle),
			UpdateDataModalMS:     ms(wt.UpdateDataModalWait),
			SkipQuiescenceMS:      ms(wt.SkipQuiescence),
			SkipSettleMS:          ms(wt.SkipSettle),
			AddControlMS:          ms(wt.AddControlWait),
			AddClickWaitMS:        ms(wt.AddClickWait),
			AddSettleMS:           ms(wt.AddSettle),
			QuantityWaitMS:        ms(wt.QuantityWait),
			PayQuiescenceMS:       ms(wt.PayQuiescence),
			PaySettleMS:           ms(wt.PaySettle),
		},
		Selectors: session.DefaultSelectors(),
		Texts:     session.DefaultTexts(),
		Timezone:  DefaultTimezone,
	}
}

// Load builds the configuration: defaults, then the file at path (JSON or
// YAML by extension; an empty path skips it), then environment overrides.
// Artifact paths are resolved and the timezone is bound.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.ResolvePaths()
	if err := cfg.bindTimezone(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Message: fmt.Sprintf("failed to read config file %s", path), Cause: err}
	}

	// A weight table in the file replaces the default one instead of merging.
	defaults := c.Weights
	c.Weights = nil

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".json", "":
		err = json.Unmarshal(data, c)
	default:
		return &Error{Message: fmt.Sprintf("unsupported config format %q", filepath.Ext(path))}
	}
	if err != nil {
		return &Error{Message: fmt.Sprintf("failed to parse config file %s", path), Cause: err}
	}

	if len(c.Weights) == 0 {
		c.Weights = defaults
	}
	return nil
}

// ResolvePaths fills empty artifact paths from the data directory and
// anchors relative paths at Root.
func (c *Config) ResolvePaths() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	fill := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(c.Paths.DataDir, name)
		}
	}
	fill(&c.Paths.Source, DefaultSourceFile)
	fill(&c.Paths.Processed, DefaultProcessedFile)
	fill(&c.Paths.Invalid, DefaultInvalidFile)
	fill(&c.Paths.ErrorLog, DefaultErrorLogFile)

	if c.Paths.Root == "" {
		return
	}
	for _, p := range []*string{&c.Paths.DataDir, &c.Paths.Source, &c.Paths.Processed, &c.Paths.Invalid, &c.Paths.ErrorLog} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Paths.Root, *p)
		}
	}
}

func (c *Config) bindTimezone() error {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return &Error{Message: fmt.Sprintf("unknown timezone %q", c.Timezone), Cause: err}
	}
	c.location = loc
	return nil
}

// Location returns the timezone used for diagnostic timestamps.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequireCredentials fails when the login pair is incomplete. It is checked
// before the browser starts, separately from Validate, so offline commands
// work without credentials.
func (c *Config) RequireCredentials() error {
	if c.Credentials.Email == "" || c.Credentials.PIN == "" {
		return &Error{Message: "LPG_EMAIL and LPG_PIN must be set before running"}
	}
	return nil
}

// WeightTable builds the normalized weight table.
func (c *Config) WeightTable() (weights.Map, error) {
	return weights.New(c.Weights)
}

// StorePaths returns the artifact locations.
func (c *Config) StorePaths() store.Paths {
	return store.Paths{
		Source:    c.Paths.Source,
		Processed: c.Paths.Processed,
		Invalid:   c.Paths.Invalid,
		ErrorLog:  c.Paths.ErrorLog,
	}
}

// SurfaceOptions returns the browser launch options.
func (c *Config) SurfaceOptions() surface.Options {
	return surface.Options{
		Engine:            c.Browser.Engine,
		Headless:          c.Browser.Headless,
		Width:             c.Browser.Width,
		Height:            c.Browser.Height,
		Args:              c.Browser.Args,
		NavigationTimeout: dur(c.Browser.NavigationTimeoutMS),
	}
}

// PortalOptions returns the setup-phase options.
func (c *Config) PortalOptions() session.Options {
	opts := session.DefaultOptions()
	opts.URLs = session.URLs{
		Base:                 c.Portal.BaseURL,
		LoginFragment:        c.Portal.LoginFragment,
		VerificationFragment: c.Portal.VerificationFragment,
	}
	opts.Credentials = session.Credentials{Email: c.Credentials.Email, PIN: c.Credentials.PIN}
	opts.Selectors = c.Selectors
	opts.LoginKeyDelay = dur(c.Timings.LoginKeyMS)
	opts.NavigationTimeout = dur(c.Browser.NavigationTimeoutMS)
	opts.LoginFieldTimeout = dur(c.Browser.NavigationTimeoutMS)
	opts.SetupModalTimeout = dur(c.Timings.SetupModalMS)
	opts.ItemModalTimeout = dur(c.Timings.ItemModalMS)
	return opts
}

// Pacer returns the keystroke jitter policy.
func (c *Config) Pacer() pacing.Human {
	return pacing.Human{Min: dur(c.Timings.KeystrokeMinMS), Max: dur(c.Timings.KeystrokeMaxMS)}
}

// WorkflowTimings converts the millisecond settings.
func (c *Config) WorkflowTimings() workflow.Timings {
	t := c.Timings
	return workflow.Timings{
		InputWait:           dur(t.InputWaitMS),
		CheckQuiescence:     dur(t.CheckQuiescenceMS),
		CheckSettle:         dur(t.CheckSettleMS),
		CheckFallbackSettle: dur(t.CheckFallbackSettleMS),
		QuotaProbeDelay:     dur(t.QuotaProbeDelayMS),
		UserTypeModalWait:   dur(t.UserTypeModalMS),
		ContinueButtonWait:  dur(t.ContinueButtonMS),
		ConfirmQuiescence:   dur(t.ConfirmQuiescenceMS),
		ConfirmSettle:       dur(t.ConfirmSettleMS),
		UpdateDataModalWait: dur(t.UpdateDataModalMS),
		SkipQuiescence:      dur(t.SkipQuiescenceMS),
		SkipSettle:          dur(t.SkipSettleMS),
		AddControlWait:      dur(t.AddControlMS),
		AddClickWait:        dur(t.AddClickWaitMS),
		AddSettle:           dur(t.AddSettleMS),
		QuantityWait:        dur(t.QuantityWaitMS),
		PayQuiescence:       dur(t.PayQuiescenceMS),
		PaySettle:           dur(t.PaySettleMS),
		BackNavigation:      dur(c.Browser.NavigationTimeoutMS),
	}
}

func ms(d time.Duration) int { return int(d / time.Millisecond) }

func dur(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
