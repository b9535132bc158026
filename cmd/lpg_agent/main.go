// Package main provides the lpg_agent CLI, which automates LPG subsidy
// transactions on the merchant portal.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/config"
	"github.com/jonathan/lpg-agent/internal/logging"
)

var (
	configPath string
	verbose    bool
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "lpg_agent",
	Short: "LPG subsidy merchant portal automation",
	Long: `lpg_agent verifies customer NIKs on the merchant portal and records a sale for each
until the configured weight ceiling is reached. Progress is persisted after every
NIK so an interrupted run resumes where it stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		l, err := logging.New(verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file (values can be overridden by env and flags)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	loadEnvFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnvFile reads .env, or the file named by LPG_ENV_FILE, if it exists.
func loadEnvFile() {
	path := os.Getenv(config.EnvFile)
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// loadConfig loads the config file named by --config and applies the shared
// flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}
	if cfg.Verbose && !verbose {
		if l, err := logging.New(true); err == nil {
			logger = l
		}
	}
	if configPath != "" {
		logger.Debug("loaded config", zap.String("path", configPath))
	}
	return cfg, nil
}
