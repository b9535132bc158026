package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/config"
	"github.com/jonathan/lpg-agent/internal/surface"
)

// testConfig returns defaults with every artifact inside a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.ResolvePaths()
	cfg.Credentials = config.CredentialsConfig{Email: "agen@example.com", PIN: "123456"}
	cfg.Timezone = "UTC"
	return &cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// stubDriver swaps the browser launcher for the duration of the test and
// reports how many times it was called.
func stubDriver(t *testing.T, driver surface.Driver, err error) *int {
	t.Helper()
	calls := 0
	prev := openDriver
	openDriver = func(context.Context, surface.Options, *zap.Logger) (surface.Driver, error) {
		calls++
		return driver, err
	}
	t.Cleanup(func() { openDriver = prev })
	return &calls
}
