package config

import (
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvFile                 = "LPG_ENV_FILE"
	EnvBaseURL              = "LPG_BASE_URL"
	EnvLoginFragment        = "LPG_LOGIN_FRAGMENT"
	EnvVerificationFragment = "LPG_VERIFICATION_FRAGMENT"
	EnvEmail                = "LPG_EMAIL"
	EnvPIN                  = "LPG_PIN"
	EnvRoot                 = "LPG_ROOT"
	EnvDataDir              = "LPG_DATA_DIR"
	EnvSourcePath           = "LPG_NIK_DATA_PATH"
	EnvProcessedPath        = "LPG_PROCESSED_DATA_PATH"
	EnvInvalidPath          = "LPG_INVALID_NIK_DATA_PATH"
	EnvErrorLogPath         = "LPG_ERROR_LOG_PATH"
	EnvMaxWeight            = "LPG_MAX_WEIGHT"
	EnvHeadless             = "LPG_BROWSER_HEADLESS"
	EnvWidth                = "LPG_BROWSER_WIDTH"
	EnvHeight               = "LPG_BROWSER_HEIGHT"
	EnvArgs                 = "LPG_BROWSER_ARGS"
	EnvNavTimeout           = "LPG_BROWSER_NAV_TIMEOUT"
	EnvEngine               = "LPG_BROWSER_ENGINE"
	EnvTimezone             = "LPG_TIMEZONE"
	EnvDatabaseURL          = "DATABASE_URL"
)

// applyEnv overrides fields from the environment. Unparseable numbers are
// reported; unset variables leave the field alone.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v := getenv(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Message: name + " must be an integer", Cause: err}
		}
		*dst = n
		return nil
	}

	str(EnvBaseURL, &c.Portal.BaseURL)
	str(EnvLoginFragment, &c.Portal.LoginFragment)
	str(EnvVerificationFragment, &c.Portal.VerificationFragment)
	str(EnvEmail, &c.Credentials.Email)
	str(EnvPIN, &c.Credentials.PIN)
	str(EnvRoot, &c.Paths.Root)
	str(EnvDataDir, &c.Paths.DataDir)
	str(EnvSourcePath, &c.Paths.Source)
	str(EnvProcessedPath, &c.Paths.Processed)
	str(EnvInvalidPath, &c.Paths.Invalid)
	str(EnvErrorLogPath, &c.Paths.ErrorLog)
	str(EnvEngine, &c.Browser.Engine)
	str(EnvTimezone, &c.Timezone)
	str(EnvDatabaseURL, &c.DatabaseURL)

	for name, dst := range map[string]*int{
		EnvMaxWeight:  &c.MaxWeight,
		EnvWidth:      &c.Browser.Width,
		EnvHeight:     &c.Browser.Height,
		EnvNavTimeout: &c.Browser.NavigationTimeoutMS,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	if v := getenv(EnvHeadless); v != "" {
		c.Browser.Headless = parseBool(v)
	}
	if v := getenv(EnvArgs); v != "" {
		c.Browser.Args = splitList(v)
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
