package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/batch"
	"github.com/jonathan/lpg-agent/internal/config"
	"github.com/jonathan/lpg-agent/internal/db"
	"github.com/jonathan/lpg-agent/internal/diag"
	"github.com/jonathan/lpg-agent/internal/observability"
	"github.com/jonathan/lpg-agent/internal/session"
	"github.com/jonathan/lpg-agent/internal/state"
	"github.com/jonathan/lpg-agent/internal/store"
	"github.com/jonathan/lpg-agent/internal/surface"
	"github.com/jonathan/lpg-agent/internal/workflow"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Process NIKs until the weight ceiling is reached",
	Long: `Loads the source NIK list and the persisted progress, signs in to the merchant portal,
and processes randomly chosen NIKs until the cumulative weight reaches the ceiling or no
eligible NIK remains.

Configuration comes from --config, then environment variables, then the flags below.`,
	RunE: runBatchCmd,
}

var (
	runMaxWeight   int
	runHeadless    bool
	runEngine      string
	runSource      string
	runDatabaseURL string
)

// openDriver launches the browser. Tests replace it.
var openDriver = surface.Open

func init() {
	runCommand.Flags().IntVar(&runMaxWeight, "max-weight", 0, "Weight ceiling for this run")
	runCommand.Flags().BoolVar(&runHeadless, "headless", false, "Run the browser without a window")
	runCommand.Flags().StringVar(&runEngine, "engine", "", "Browser engine: chromedp or rod")
	runCommand.Flags().StringVar(&runSource, "nik-data", "", "Path to the source NIK list")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL URL for mirroring results (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("max-weight") {
		cfg.MaxWeight = runMaxWeight
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}
	if cmd.Flags().Changed("engine") {
		cfg.Browser.Engine = runEngine
	}
	if cmd.Flags().Changed("nik-data") {
		cfg.Paths.Source = runSource
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBatch(ctx, cfg, logger, cmd.OutOrStdout())
}

// runBatch performs one resumable run. Setup failures are fatal and are
// appended to the diagnostic log; per-NIK failures are handled inside the
// batch loop.
func runBatch(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	table, err := cfg.WeightTable()
	if err != nil {
		return err
	}

	runID := uuid.New()
	logger = logger.With(zap.String("run_id", runID.String()))
	files := store.NewFileStore(cfg.StorePaths(), logger.Named("store"))

	var backend store.Backend = files
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = openMirror(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("database mirror unavailable, continuing with files only", zap.Error(err))
		} else {
			defer database.Close()
			backend = store.NewTee(files, logger.Named("store"), database.NewMirror(runID))
			logger.Info("mirroring results to database")
		}
	}

	journal := diag.NewJournal(backend, runID, cfg.Location(), logger.Named("diag"))
	started := journal.Timestamp()
	startedAt := time.Now()
	fatal := func(err error) error {
		logger.Error("fatal error", zap.Error(err))
		journal.Record(context.WithoutCancel(ctx), diag.Entry{Kind: diag.KindFatal, Message: err.Error()})
		return err
	}

	source, err := files.LoadIdentities()
	if err != nil {
		return fatal(err)
	}
	processed, invalid, err := files.LoadState(ctx)
	if err != nil {
		return fatal(err)
	}
	run := state.New(processed, invalid, table)
	for _, id := range run.Conflicts {
		logger.Warn("NIK is both processed and invalid, keeping it processed", zap.String("nik", id))
	}

	rep := run.Report(source, cfg.MaxWeight)
	logger.Info("run state loaded",
		zap.Int("source", rep.Source),
		zap.Int("processed", rep.Processed),
		zap.Int("invalid", rep.Invalid),
		zap.Int("remaining", rep.Remaining),
		zap.Int("weight", rep.Weight),
		zap.Int("max_weight", rep.MaxWeight))

	printer := observability.NewPrinter(out)
	report := func(sum batch.Summary) {
		printer.PrintRunReport(observability.RunReport{
			Summary:       sum,
			Started:       started,
			Finished:      journal.Timestamp(),
			ProcessedPath: cfg.Paths.Processed,
			InvalidPath:   cfg.Paths.Invalid,
			InvalidCount:  len(run.Invalid()),
			RunID:         runID.String(),
		})
	}

	if rep.QuotaMet() || rep.Remaining == 0 {
		sum := batch.Summary{StopReason: batch.StopQuotaMet, FinalWeight: rep.Weight, MaxWeight: cfg.MaxWeight}
		if !rep.QuotaMet() {
			sum.StopReason = batch.StopPoolExhausted
		}
		logger.Info("nothing to do, browser not started", zap.String("reason", string(sum.StopReason)))
		report(sum)
		return nil
	}

	if err := cfg.RequireCredentials(); err != nil {
		return fatal(err)
	}

	driver, err := openDriver(ctx, cfg.SurfaceOptions(), logger.Named("surface"))
	if err != nil {
		return fatal(fmt.Errorf("failed to launch browser: %w", err))
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("failed to close browser", zap.Error(err))
		}
	}()

	pacer := cfg.Pacer()
	portal := session.New(driver, cfg.PortalOptions(), pacer, logger.Named("session"))
	if err := portal.Prepare(ctx); err != nil {
		return fatal(err)
	}

	wf := workflow.New(workflow.Options{
		Driver:     driver,
		Positioner: portal,
		Store:      backend,
		Run:        run,
		Weights:    table,
		Selectors:  cfg.Selectors,
		Texts:      cfg.Texts,
		Timings:    cfg.WorkflowTimings(),
		Pacer:      pacer,
		Journal:    journal,
		Logger:     logger.Named("workflow"),
	})
	ctrl := batch.New(batch.Options{
		Processor: wf,
		Run:       run,
		MaxWeight: cfg.MaxWeight,
		Journal:   journal,
		Logger:    logger.Named("batch"),
	})

	sum, runErr := ctrl.Run(ctx, source)
	report(sum)
	if database != nil {
		rec := db.RunRecord{
			RunID:       runID,
			StartedAt:   startedAt,
			FinishedAt:  time.Now(),
			StopReason:  string(sum.StopReason),
			FinalWeight: sum.FinalWeight,
			MaxWeight:   sum.MaxWeight,
			Iterations:  sum.Iterations,
			Completed:   sum.Completed,
			Invalid:     sum.Invalid,
			Aborted:     sum.Aborted,
			Failed:      sum.Failed,
		}
		if err := database.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("failed to record run summary", zap.Error(err))
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run interrupted: %w", runErr)
		}
		return fatal(runErr)
	}
	return nil
}

// openMirror connects to the database and creates the mirror tables.
func openMirror(ctx context.Context, url string) (*db.DB, error) {
	database, err := db.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
