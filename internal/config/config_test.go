package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnv = []string{
	EnvBaseURL, EnvLoginFragment, EnvVerificationFragment, EnvEmail, EnvPIN,
	EnvRoot, EnvDataDir, EnvSourcePath, EnvProcessedPath, EnvInvalidPath, EnvErrorLogPath,
	EnvMaxWeight, EnvHeadless, EnvWidth, EnvHeight, EnvArgs, EnvNavTimeout,
	EnvEngine, EnvTimezone, EnvDatabaseURL,
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allEnv {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://subsiditepatlpg.mypertamina.id/merchant", cfg.Portal.BaseURL)
	assert.Equal(t, "/merchant-login", cfg.Portal.LoginFragment)
	assert.Equal(t, "/app/verification-nik", cfg.Portal.VerificationFragment)
	assert.Equal(t, map[string]int{"Rumah Tangga": 1, "Usaha Mikro": 2}, cfg.Weights)
	assert.Equal(t, 100, cfg.MaxWeight)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1366, cfg.Browser.Width)
	assert.Equal(t, 768, cfg.Browser.Height)
	assert.Equal(t, []string{"--start-maximized"}, cfg.Browser.Args)
	assert.Equal(t, 60000, cfg.Browser.NavigationTimeoutMS)
	assert.Equal(t, filepath.Join("data", "nik-data.json"), cfg.Paths.Source)
	assert.Equal(t, filepath.Join("data", "processed-niks.json"), cfg.Paths.Processed)
	assert.Equal(t, filepath.Join("data", "invalid-niks.json"), cfg.Paths.Invalid)
	assert.Equal(t, filepath.Join("data", "automation-error.log"), cfg.Paths.ErrorLog)
	assert.Equal(t, "Asia/Makassar", cfg.Location().String())

	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFileReplacesWeights(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "lpg.yaml", `
portal:
  base_url: https://portal.test/merchant
weights:
  rumah tangga: 3
max_weight: 12
browser:
  engine: rod
  headless: true
paths:
  data_dir: /srv/lpg
timings:
  add_settle_ms: 250
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://portal.test/merchant", cfg.Portal.BaseURL)
	assert.Equal(t, "/merchant-login", cfg.Portal.LoginFragment, "unspecified fields keep defaults")
	assert.Equal(t, map[string]int{"rumah tangga": 3}, cfg.Weights)
	assert.Equal(t, 12, cfg.MaxWeight)
	assert.Equal(t, "rod", cfg.Browser.Engine)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, filepath.Join("/srv/lpg", "nik-data.json"), cfg.Paths.Source)
	assert.Equal(t, 250*time.Millisecond, cfg.WorkflowTimings().AddSettle)
	assert.Equal(t, 7*time.Second, cfg.WorkflowTimings().CheckQuiescence)
}

func TestLoad_JSONFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "lpg.json", `{
		"max_weight": 40,
		"paths": {"source": "custom/source.json"},
		"texts": {"quota_exceeded": "Kuota habis"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.MaxWeight)
	assert.Equal(t, "custom/source.json", cfg.Paths.Source)
	assert.Equal(t, filepath.Join("data", "processed-niks.json"), cfg.Paths.Processed)
	assert.Equal(t, "Kuota habis", cfg.Texts.QuotaExceeded)
	assert.NotEmpty(t, cfg.Texts.UserTypePrompt)
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	_, err = Load(writeConfig(t, "bad.json", `{ invalid json }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")

	_, err = Load(writeConfig(t, "cfg.toml", `max_weight = 1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "lpg.yaml", "max_weight: 12\n")
	t.Setenv(EnvMaxWeight, "30")
	t.Setenv(EnvEmail, "agen@example.com")
	t.Setenv(EnvPIN, "654321")
	t.Setenv(EnvHeadless, "yes")
	t.Setenv(EnvArgs, "--no-sandbox, --lang=id-ID,,")
	t.Setenv(EnvDataDir, "/tmp/lpg")
	t.Setenv(EnvErrorLogPath, "logs/err.log")
	t.Setenv(EnvTimezone, "UTC")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.MaxWeight)
	assert.Equal(t, "agen@example.com", cfg.Credentials.Email)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"--no-sandbox", "--lang=id-ID"}, cfg.Browser.Args)
	assert.Equal(t, filepath.Join("/tmp/lpg", "invalid-niks.json"), cfg.Paths.Invalid)
	assert.Equal(t, "logs/err.log", cfg.Paths.ErrorLog)
	assert.Equal(t, time.UTC.String(), cfg.Location().String())
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoad_RootAnchorsRelativePaths(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv(EnvRoot, root)
	t.Setenv(EnvSourcePath, filepath.Join("custom", "nik.json"))
	t.Setenv(EnvInvalidPath, "/var/lpg/invalid.json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "custom", "nik.json"), cfg.Paths.Source)
	assert.Equal(t, filepath.Join(root, "data", "processed-niks.json"), cfg.Paths.Processed)
	assert.Equal(t, "/var/lpg/invalid.json", cfg.Paths.Invalid, "absolute paths are kept")
	assert.Equal(t, filepath.Join(root, "data"), cfg.Paths.DataDir)
}

func TestLoad_RootFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "lpg.yaml", "paths:\n  root: /opt/lpg\n  error_log: logs/err.log\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/opt/lpg", "logs", "err.log"), cfg.Paths.ErrorLog)
	assert.Equal(t, filepath.Join("/opt/lpg", "data", "nik-data.json"), cfg.Paths.Source)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvWidth, "wide")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvWidth)
}

func TestLoad_UnknownTimezone(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTimezone, "Mars/Olympus")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timezone")
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "Y"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"false", "0", "no", "maybe"} {
		assert.False(t, parseBool(v), v)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		msg    string
	}{
		{"zero ceiling", func(c *Config) { c.MaxWeight = 0 }, "MaxWeight must be greater than 0"},
		{"empty weights", func(c *Config) { c.Weights = map[string]int{} }, "Weights"},
		{"non-positive weight", func(c *Config) { c.Weights = map[string]int{"Rumah Tangga": 0} }, "Weights[Rumah Tangga]"},
		{"unknown engine", func(c *Config) { c.Browser.Engine = "firefox" }, "Browser.Engine must be one of"},
		{"bad url", func(c *Config) { c.Portal.BaseURL = "not a url" }, "Portal.BaseURL must be a URL"},
		{"fragment without slash", func(c *Config) { c.Portal.VerificationFragment = "app" }, "Portal.VerificationFragment"},
		{"jitter bounds", func(c *Config) { c.Timings.KeystrokeMinMS = 200 }, "Timings.KeystrokeMaxMS"},
		{"missing selector", func(c *Config) { c.Selectors.PayButton = "" }, "Selectors.PayButton is required"},
		{"missing text", func(c *Config) { c.Texts.QuotaExceeded = "" }, "Texts.QuotaExceeded is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ResolvePaths()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.RequireCredentials())

	cfg.Credentials.Email = "agen@example.com"
	require.Error(t, cfg.RequireCredentials())

	cfg.Credentials.PIN = "123456"
	assert.NoError(t, cfg.RequireCredentials())
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.ResolvePaths()
	cfg.Credentials = CredentialsConfig{Email: "a@b.c", PIN: "1"}

	portal := cfg.PortalOptions()
	assert.Equal(t, "https://subsiditepatlpg.mypertamina.id/merchant/app/verification-nik", portal.URLs.Verification())
	assert.Equal(t, 50*time.Millisecond, portal.LoginKeyDelay)
	assert.Equal(t, 7*time.Second, portal.SetupModalTimeout)
	assert.Equal(t, 5*time.Second, portal.ItemModalTimeout)
	assert.Equal(t, "a@b.c", portal.Credentials.Email)

	browser := cfg.SurfaceOptions()
	assert.Equal(t, 60*time.Second, browser.NavigationTimeout)
	assert.Equal(t, "chromedp", browser.Engine)

	pacer := cfg.Pacer()
	assert.Equal(t, 30*time.Millisecond, pacer.Min)
	assert.Equal(t, 100*time.Millisecond, pacer.Max)

	table, err := cfg.WeightTable()
	require.NoError(t, err)
	w, ok := table.Resolve("USAHA MIKRO")
	assert.True(t, ok)
	assert.Equal(t, 2, w)

	assert.Equal(t, cfg.Paths.Processed, cfg.StorePaths().Processed)
}
