package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/config"
	"github.com/jonathan/lpg-agent/internal/db"
	"github.com/jonathan/lpg-agent/internal/observability"
	"github.com/jonathan/lpg-agent/internal/state"
	"github.com/jonathan/lpg-agent/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run progress without opening the browser",
	Long:  "Reads the source list and the persisted progress and prints the remaining pool, the cumulative weight against the ceiling, and any records that cannot be processed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return printStatus(cmd.Context(), cfg, logger, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	table, err := cfg.WeightTable()
	if err != nil {
		return err
	}

	files := store.NewFileStore(cfg.StorePaths(), logger.Named("store"))
	source, err := files.LoadIdentities()
	if err != nil {
		return err
	}
	processed, invalid, err := files.LoadState(ctx)
	if err != nil {
		return err
	}
	run := state.New(processed, invalid, table)

	var mirror *observability.MirrorCounts
	if cfg.DatabaseURL != "" {
		mirror = mirrorCounts(ctx, cfg.DatabaseURL, logger)
	}

	observability.NewPrinter(out).PrintStatus(run.Report(source, cfg.MaxWeight), mirror)
	return nil
}

func mirrorCounts(ctx context.Context, url string, logger *zap.Logger) *observability.MirrorCounts {
	database, err := db.Connect(ctx, url)
	if err != nil {
		logger.Warn("database mirror unavailable", zap.Error(err))
		return nil
	}
	defer database.Close()

	counts, err := database.Counts(ctx)
	if err != nil {
		logger.Warn("failed to read mirror counts", zap.Error(err))
		return nil
	}
	mc := &observability.MirrorCounts{
		Processed:         counts.Processed,
		Invalid:           counts.Invalid,
		DiagnosticEntries: counts.DiagnosticEntries,
	}

	last, err := database.LatestRun(ctx)
	if err != nil {
		logger.Warn("failed to read last run", zap.Error(err))
	} else if last != nil {
		mc.LastRun = fmt.Sprintf("%s, %s, weight %d/%d",
			last.FinishedAt.Format(time.DateTime), last.StopReason, last.FinalWeight, last.MaxWeight)
	}
	return mc
}
