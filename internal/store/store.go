// Package store persists the run artifacts: the read-only source identities,
// the processed records, the invalid identifiers and the diagnostic log.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/lpg-agent/internal/schemas"
	"github.com/jonathan/lpg-agent/internal/types"
	defs "github.com/jonathan/lpg-agent/schemas"
)

// Paths locates the four artifacts.
type Paths struct {
	Source    string
	Processed string
	Invalid   string
	ErrorLog  string
}

// Backend receives every durable write made during a run.
type Backend interface {
	SaveProcessed(ctx context.Context, records []types.Identity) error
	SaveInvalid(ctx context.Context, ids []string) error
	AppendLog(ctx context.Context, text string) error
}

// FileStore keeps the artifacts as indented JSON files plus an append-only text log.
type FileStore struct {
	paths Paths
	log   *zap.Logger

	mu sync.Mutex
	// held are processed-file items that could not be used, by original index.
	held []heldItem
}

type heldItem struct {
	index int
	raw   json.RawMessage
}

// NewFileStore creates a file-backed store. A nil logger discards warnings.
func NewFileStore(paths Paths, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{paths: paths, log: logger}
}

// Paths returns the configured artifact locations.
func (s *FileStore) Paths() Paths { return s.paths }

// LoadIdentities reads the source list. A missing file wraps ErrSourceMissing;
// unreadable or structurally invalid content is also an error because the run
// has nothing to work on without it.
func (s *FileStore) LoadIdentities() ([]types.Identity, error) {
	path, err := filepath.Abs(s.paths.Source)
	if err != nil {
		return nil, &Error{Path: s.paths.Source, Message: "failed to resolve path", Cause: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Path: path, Message: "cannot load source identities", Cause: ErrSourceMissing}
		}
		return nil, &Error{Path: path, Message: "failed to read source identities", Cause: err}
	}

	if err := schemas.ValidateBytes(defs.Identities, data); err != nil {
		return nil, &Error{Path: path, Message: "source identities are malformed", Cause: err}
	}

	var records []types.Identity
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &Error{Path: path, Message: "failed to parse source identities", Cause: err}
	}

	s.log.Info("loaded source identities", zap.String("path", path), zap.Int("count", len(records)))
	return records, nil
}

// LoadProcessed reads the processed list. Missing, empty or non-array files
// yield an empty list with a warning. Items are checked one by one: nulls,
// non-objects and entries without an identifier or a category are skipped
// and held back so the next SaveProcessed writes them out again.
func (s *FileStore) LoadProcessed() []types.Identity {
	s.mu.Lock()
	s.held = nil
	s.mu.Unlock()

	data, ok := s.readOptional(s.paths.Processed, "processed records")
	if !ok {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		s.log.Warn("processed file is not a record list, starting empty",
			zap.String("path", s.paths.Processed), zap.Error(err))
		return nil
	}

	records := make([]types.Identity, 0, len(items))
	var held []heldItem
	for i, item := range items {
		rec, reason := decodeProcessed(item)
		if reason != "" {
			s.log.Warn("skipping processed entry, it will be kept in the file as is",
				zap.String("path", s.paths.Processed), zap.Int("index", i), zap.String("reason", reason))
			held = append(held, heldItem{index: i, raw: compactRaw(item)})
			continue
		}
		records = append(records, rec)
	}

	s.mu.Lock()
	s.held = held
	s.mu.Unlock()

	s.log.Info("loaded processed records", zap.String("path", s.paths.Processed),
		zap.Int("count", len(records)), zap.Int("skipped", len(held)))
	return records
}

// decodeProcessed returns the record or the reason it cannot count as processed.
func decodeProcessed(item json.RawMessage) (types.Identity, string) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.Identity{}, "entry is not an object"
	}
	var rec types.Identity
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return types.Identity{}, err.Error()
	}
	if !rec.HasID() || !rec.HasCategory() {
		return types.Identity{}, "entry has no NIK or KATEGORI"
	}
	return rec, ""
}

func compactRaw(item json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, item); err != nil {
		return append(json.RawMessage(nil), item...)
	}
	return json.RawMessage(buf.Bytes())
}

// LoadInvalid reads the invalid identifier list with the same degradation
// rules as LoadProcessed. Empty strings are dropped.
func (s *FileStore) LoadInvalid() []string {
	data, ok := s.readOptional(s.paths.Invalid, "invalid identifiers")
	if !ok {
		return nil
	}

	if err := schemas.ValidateBytes(defs.Invalid, data); err != nil {
		s.log.Warn("invalid-identifier file is malformed, starting empty",
			zap.String("path", s.paths.Invalid), zap.Error(err))
		return nil
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn("failed to parse invalid-identifier file, starting empty",
			zap.String("path", s.paths.Invalid), zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if id != "" {
			ids = append(ids, id)
		}
	}

	s.log.Info("loaded invalid identifiers", zap.String("path", s.paths.Invalid), zap.Int("count", len(ids)))
	return ids
}

// LoadState reads the processed and invalid lists concurrently.
func (s *FileStore) LoadState(ctx context.Context) ([]types.Identity, []string, error) {
	var processed []types.Identity
	var invalid []string

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		processed = s.LoadProcessed()
		return nil
	})
	g.Go(func() error {
		invalid = s.LoadInvalid()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return processed, invalid, nil
}

// SaveProcessed overwrites the processed file with the full list. Items held
// back by LoadProcessed are written at their original positions.
func (s *FileStore) SaveProcessed(_ context.Context, records []types.Identity) error {
	s.mu.Lock()
	held := s.held
	s.mu.Unlock()

	if len(held) == 0 {
		if records == nil {
			records = []types.Identity{}
		}
		return writeJSON(s.paths.Processed, records)
	}

	out := make([]any, 0, len(records)+len(held))
	next := 0
	for _, rec := range records {
		for next < len(held) && held[next].index <= len(out) {
			out = append(out, held[next].raw)
			next++
		}
		out = append(out, rec)
	}
	for ; next < len(held); next++ {
		out = append(out, held[next].raw)
	}
	return writeJSON(s.paths.Processed, out)
}

// SaveInvalid overwrites the invalid file with the full list.
func (s *FileStore) SaveInvalid(_ context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return writeJSON(s.paths.Invalid, ids)
}

// AppendLog appends text to the diagnostic log, creating it if needed.
func (s *FileStore) AppendLog(_ context.Context, text string) error {
	path, err := filepath.Abs(s.paths.ErrorLog)
	if err != nil {
		return &Error{Path: s.paths.ErrorLog, Message: "failed to resolve path", Cause: err}
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &Error{Path: path, Message: "failed to open log", Cause: err}
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return &Error{Path: path, Message: "failed to append log", Cause: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Path: path, Message: "failed to close log", Cause: err}
	}
	return nil
}

// readOptional returns the file content when it exists and is non-blank.
func (s *FileStore) readOptional(path, what string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info(fmt.Sprintf("no %s file yet, it will be created on first write", what), zap.String("path", path))
		} else {
			s.log.Warn(fmt.Sprintf("failed to read %s, starting empty", what), zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.log.Info(fmt.Sprintf("%s file is empty, starting empty", what), zap.String("path", path))
		return nil, false
	}
	return data, true
}

// writeJSON replaces path with the indented encoding of v. The content is
// written to a sibling temp file first so a crash never leaves a half file.
func writeJSON(path string, v any) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &Error{Path: path, Message: "failed to resolve path", Cause: err}
	}
	if err := ensureDir(abs); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &Error{Path: abs, Message: "failed to encode", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), "."+filepath.Base(abs)+".*.tmp")
	if err != nil {
		return &Error{Path: abs, Message: "failed to create temp file", Cause: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &Error{Path: abs, Message: "failed to write", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Path: abs, Message: "failed to close temp file", Cause: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return &Error{Path: abs, Message: "failed to set permissions", Cause: err}
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return &Error{Path: abs, Message: "failed to replace file", Cause: err}
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &Error{Path: dir, Message: "failed to create directory", Cause: err}
	}
	return nil
}
