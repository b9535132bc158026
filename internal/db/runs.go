package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RunRecord is the summary of one batch run.
type RunRecord struct {
	RunID       uuid.UUID
	StartedAt   time.Time
	FinishedAt  time.Time
	StopReason  string
	FinalWeight int
	MaxWeight   int
	Iterations  int
	Completed   int
	Invalid     int
	Aborted     int
	Failed      int
}

var runColumns = []string{
	"run_id", "started_at", "finished_at", "stop_reason", "final_weight", "max_weight",
	"iterations", "completed", "invalid", "aborted", "failed",
}

// RecordRun stores the run summary, replacing an earlier record for the same run.
func (db *DB) RecordRun(ctx context.Context, rec RunRecord) error {
	query, args, err := buildRunUpsert(rec)
	if err != nil {
		return err
	}
	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently finished run, or nil when none is recorded.
func (db *DB) LatestRun(ctx context.Context) (*RunRecord, error) {
	query, args, err := psql.Select(runColumns...).
		From("batch_runs").
		OrderBy("finished_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run query: %w", err)
	}

	var rec RunRecord
	err = db.pool.QueryRow(ctx, query, args...).Scan(
		&rec.RunID, &rec.StartedAt, &rec.FinishedAt, &rec.StopReason,
		&rec.FinalWeight, &rec.MaxWeight, &rec.Iterations,
		&rec.Completed, &rec.Invalid, &rec.Aborted, &rec.Failed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return &rec, nil
}

func buildRunUpsert(rec RunRecord) (string, []any, error) {
	if rec.RunID == uuid.Nil {
		return "", nil, fmt.Errorf("run record needs a run ID")
	}
	return psql.Insert("batch_runs").
		Columns(runColumns...).
		Values(rec.RunID, rec.StartedAt, rec.FinishedAt, rec.StopReason,
			rec.FinalWeight, rec.MaxWeight, rec.Iterations,
			rec.Completed, rec.Invalid, rec.Aborted, rec.Failed).
		Suffix(`ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			stop_reason = EXCLUDED.stop_reason,
			final_weight = EXCLUDED.final_weight,
			iterations = EXCLUDED.iterations,
			completed = EXCLUDED.completed,
			invalid = EXCLUDED.invalid,
			aborted = EXCLUDED.aborted,
			failed = EXCLUDED.failed`).
		ToSql()
}
