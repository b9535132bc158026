// Package batch runs the resumable selection loop: pick a random remaining
// identity, hand it to the item workflow, and fold the weight it consumed into
// the run total until the ceiling is met or nothing is left.
package batch

import (
	"context"
	"errors"
	"math/rand/v2"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/diag"
	"github.com/jonathan/lpg-agent/internal/state"
	"github.com/jonathan/lpg-agent/internal/types"
	"github.com/jonathan/lpg-agent/internal/weights"
	"github.com/jonathan/lpg-agent/internal/workflow"
)

// Processor runs the item workflow for one identity.
type Processor interface {
	Process(ctx context.Context, rec types.Identity, category string) (workflow.Result, error)
}

// Picker chooses an index in [0, n).
type Picker interface {
	IntN(n int) int
}

// RandomPicker picks uniformly using the runtime's random source.
type RandomPicker struct{}

// IntN implements Picker.
func (RandomPicker) IntN(n int) int { return rand.IntN(n) }

// StopReason says why the loop ended.
type StopReason string

const (
	StopQuotaMet      StopReason = "quota met"
	StopPoolExhausted StopReason = "pool exhausted"
	StopStarved       StopReason = "only records without a category remain"
	StopCancelled     StopReason = "cancelled"
)

// Summary reports a finished run.
type Summary struct {
	StopReason  StopReason
	FinalWeight int
	MaxWeight   int
	Iterations  int
	Completed   int
	Invalid     int
	Aborted     int
	Failed      int
	Skipped     int
}

// Options wires a Controller.
type Options struct {
	Processor Processor
	Run       *state.Run
	MaxWeight int
	Picker    Picker
	Journal   *diag.Journal
	Logger    *zap.Logger
}

// Controller drives the batch loop. It owns no surface state of its own; the
// run state is shared with the processor.
type Controller struct {
	proc      Processor
	run       *state.Run
	maxWeight int
	picker    Picker
	journal   *diag.Journal
	log       *zap.Logger
}

// New creates a Controller.
func New(opts Options) *Controller {
	if opts.Picker == nil {
		opts.Picker = RandomPicker{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		proc:      opts.Processor,
		run:       opts.Run,
		maxWeight: opts.MaxWeight,
		picker:    opts.Picker,
		journal:   opts.Journal,
		log:       opts.Logger,
	}
}

// Run loops until the cumulative weight reaches the ceiling or no eligible
// identity remains. Only cancellation is returned as an error; item failures
// are logged and the loop moves on.
func (c *Controller) Run(ctx context.Context, source []types.Identity) (Summary, error) {
	sum := Summary{MaxWeight: c.maxWeight}

	for c.run.Weight() < c.maxWeight {
		if err := ctx.Err(); err != nil {
			sum.StopReason = StopCancelled
			sum.FinalWeight = c.run.Weight()
			return sum, err
		}

		remaining := c.run.Remaining(source)
		if len(remaining) == 0 {
			c.log.Info("no eligible NIK left")
			sum.StopReason = StopPoolExhausted
			sum.FinalWeight = c.run.Weight()
			return sum, nil
		}
		if !anyCategorized(remaining) {
			c.log.Warn("every remaining NIK lacks a category, stopping",
				zap.Int("remaining", len(remaining)))
			sum.StopReason = StopStarved
			sum.FinalWeight = c.run.Weight()
			return sum, nil
		}

		sum.Iterations++
		c.log.Info("iteration",
			zap.Int("iteration", sum.Iterations),
			zap.Int("weight", c.run.Weight()),
			zap.Int("max_weight", c.maxWeight),
			zap.Int("remaining", len(remaining)))

		rec := remaining[c.picker.IntN(len(remaining))]
		if !rec.HasCategory() {
			// The record stays eligible and may be picked again.
			c.log.Warn("selected NIK has no category, skipping", zap.String("nik", rec.ID))
			sum.Skipped++
			continue
		}

		category := weights.Normalize(rec.Category)
		c.log.Info("processing NIK",
			zap.String("nik", rec.ID),
			zap.String("category", rec.Category),
			zap.String("normalized", category))

		res, err := c.processSafely(ctx, rec, category)
		if err != nil {
			sum.Failed++
			c.recordFailure(ctx, rec, err)
			continue
		}

		switch res.Outcome {
		case workflow.Completed:
			sum.Completed++
		case workflow.Invalid:
			sum.Invalid++
		default:
			sum.Aborted++
		}
		c.run.AddWeight(res.Delta)
	}

	sum.StopReason = StopQuotaMet
	sum.FinalWeight = c.run.Weight()
	c.log.Info("weight ceiling reached", zap.Int("weight", sum.FinalWeight))
	return sum, nil
}

// processSafely is the per-item failure boundary.
func (c *Controller) processSafely(ctx context.Context, rec types.Identity, category string) (res workflow.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.proc.Process(ctx, rec, category)
}

func (c *Controller) recordFailure(ctx context.Context, rec types.Identity, err error) {
	c.log.Error("unexpected error, continuing with next NIK",
		zap.String("nik", rec.ID),
		zap.Error(err))

	entry := diag.Entry{
		Kind:    diag.KindUnexpected,
		NIK:     rec.ID,
		Message: err.Error(),
	}
	var p *PanicError
	if errors.As(err, &p) {
		entry.Stack = string(p.Stack)
	}
	// Cancellation still leaves a trail; the write itself must not be cancelled.
	c.journal.Record(context.WithoutCancel(ctx), entry)
}

func anyCategorized(records []types.Identity) bool {
	for _, rec := range records {
		if rec.HasCategory() {
			return true
		}
	}
	return false
}
