package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/types"
)

// Tee writes to a primary backend and copies every write to mirrors. Only the
// primary's result is returned; mirror failures are logged.
type Tee struct {
	primary Backend
	mirrors []Backend
	log     *zap.Logger
}

// NewTee creates a fan-out backend.
func NewTee(primary Backend, logger *zap.Logger, mirrors ...Backend) *Tee {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tee{primary: primary, mirrors: mirrors, log: logger}
}

// SaveProcessed implements Backend.
func (t *Tee) SaveProcessed(ctx context.Context, records []types.Identity) error {
	err := t.primary.SaveProcessed(ctx, records)
	for _, m := range t.mirrors {
		if mErr := m.SaveProcessed(ctx, records); mErr != nil {
			t.log.Warn("mirror failed to save processed records", zap.Error(mErr))
		}
	}
	return err
}

// SaveInvalid implements Backend.
func (t *Tee) SaveInvalid(ctx context.Context, ids []string) error {
	err := t.primary.SaveInvalid(ctx, ids)
	for _, m := range t.mirrors {
		if mErr := m.SaveInvalid(ctx, ids); mErr != nil {
			t.log.Warn("mirror failed to save invalid identifiers", zap.Error(mErr))
		}
	}
	return err
}

// AppendLog implements Backend.
func (t *Tee) AppendLog(ctx context.Context, text string) error {
	err := t.primary.AppendLog(ctx, text)
	for _, m := range t.mirrors {
		if mErr := m.AppendLog(ctx, text); mErr != nil {
			t.log.Warn("mirror failed to append diagnostic log", zap.Error(mErr))
		}
	}
	return err
}
