package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/lpg-agent/internal/types"
)

// insertChunkSize bounds rows per INSERT to stay under the parameter limit.
const insertChunkSize = 500

// Mirror copies one run's writes into PostgreSQL. Rows are keyed by NIK, so
// rewriting the full list on every save only inserts what is new.
type Mirror struct {
	db    *DB
	runID uuid.UUID
}

// NewMirror returns a mirror that stamps rows with runID.
func (db *DB) NewMirror(runID uuid.UUID) *Mirror {
	return &Mirror{db: db, runID: runID}
}

// SaveProcessed upserts every processed record.
func (m *Mirror) SaveProcessed(ctx context.Context, records []types.Identity) error {
	for start := 0; start < len(records); start += insertChunkSize {
		end := min(start+insertChunkSize, len(records))
		query, args, err := buildProcessedInsert(m.runID, records[start:end])
		if err != nil {
			return err
		}
		if _, err := m.db.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mirror processed records: %w", err)
		}
	}
	return nil
}

// SaveInvalid upserts every invalid identifier.
func (m *Mirror) SaveInvalid(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += insertChunkSize {
		end := min(start+insertChunkSize, len(ids))
		query, args, err := buildInvalidInsert(m.runID, ids[start:end])
		if err != nil {
			return err
		}
		if _, err := m.db.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mirror invalid identifiers: %w", err)
		}
	}
	return nil
}

// AppendLog stores one diagnostic entry.
func (m *Mirror) AppendLog(ctx context.Context, text string) error {
	query, args, err := psql.Insert("diagnostic_log").
		Columns("run_id", "entry").
		Values(m.runID, text).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build diagnostic insert: %w", err)
	}
	if _, err := m.db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mirror diagnostic entry: %w", err)
	}
	return nil
}

// Counts reports how many rows each mirror table holds.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for table, dest := range map[string]*int{
		"processed_identities": &c.Processed,
		"invalid_identities":   &c.Invalid,
		"diagnostic_log":       &c.DiagnosticEntries,
	} {
		query, args, err := psql.Select("COUNT(*)").From(table).ToSql()
		if err != nil {
			return Counts{}, fmt.Errorf("failed to build count for %s: %w", table, err)
		}
		if err := db.pool.QueryRow(ctx, query, args...).Scan(dest); err != nil {
			return Counts{}, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}
	return c, nil
}

// Counts holds mirror row totals.
type Counts struct {
	Processed         int
	Invalid           int
	DiagnosticEntries int
}

func buildProcessedInsert(runID uuid.UUID, records []types.Identity) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, fmt.Errorf("no processed records to insert")
	}
	q := psql.Insert("processed_identities").Columns("nik", "category", "attributes", "run_id")
	for _, r := range records {
		attrs := []byte("{}")
		if len(r.Extra) > 0 {
			encoded, err := json.Marshal(r.Extra)
			if err != nil {
				return "", nil, fmt.Errorf("failed to encode attributes for %s: %w", r.ID, err)
			}
			attrs = encoded
		}
		q = q.Values(r.ID, r.Category, attrs, runID)
	}
	return q.Suffix("ON CONFLICT (nik) DO NOTHING").ToSql()
}

func buildInvalidInsert(runID uuid.UUID, ids []string) (string, []any, error) {
	if len(ids) == 0 {
		return "", nil, fmt.Errorf("no invalid identifiers to insert")
	}
	q := psql.Insert("invalid_identities").Columns("nik", "run_id")
	for _, id := range ids {
		q = q.Values(id, runID)
	}
	return q.Suffix("ON CONFLICT (nik) DO NOTHING").ToSql()
}
