// Package workflow drives one identity through the merchant portal: position
// the page, submit the NIK, interpret the reaction, get past the optional
// modals, add the weighted quantity, pay, and record the result.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/lpg-agent/internal/diag"
	"github.com/jonathan/lpg-agent/internal/pacing"
	"github.com/jonathan/lpg-agent/internal/session"
	"github.com/jonathan/lpg-agent/internal/state"
	"github.com/jonathan/lpg-agent/internal/surface"
	"github.com/jonathan/lpg-agent/internal/types"
	"github.com/jonathan/lpg-agent/internal/weights"
)

// inputPresenceTimeout bounds the presence check before clearing the NIK input
// after a quota refusal.
const inputPresenceTimeout = time.Second

// Options wires a Workflow to its collaborators.
type Options struct {
	Driver     surface.Driver
	Positioner Positioner
	Store      Persister
	Run        *state.Run
	Weights    weights.Map
	Selectors  session.Selectors
	Texts      session.Texts
	Timings    Timings
	Pacer      pacing.Policy
	Journal    *diag.Journal
	Logger     *zap.Logger
}

// Workflow processes one identity at a time. It is not safe for concurrent use.
type Workflow struct {
	driver  surface.Driver
	pos     Positioner
	store   Persister
	run     *state.Run
	weights weights.Map
	sel     session.Selectors
	texts   session.Texts
	timings Timings
	pacer   pacing.Policy
	journal *diag.Journal
	log     *zap.Logger
}

// New creates a Workflow.
func New(opts Options) *Workflow {
	if opts.Pacer == nil {
		opts.Pacer = pacing.DefaultHuman()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Workflow{
		driver:  opts.Driver,
		pos:     opts.Positioner,
		store:   opts.Store,
		run:     opts.Run,
		weights: opts.Weights,
		sel:     opts.Selectors,
		texts:   opts.Texts,
		timings: opts.Timings,
		pacer:   opts.Pacer,
		journal: opts.Journal,
		log:     opts.Logger,
	}
}

// Process runs the workflow for rec, whose category has already been
// normalized to category. Named aborts come back as an Aborted result with a
// nil error; any other error is unexpected and belongs to the caller's failure
// boundary.
func (w *Workflow) Process(ctx context.Context, rec types.Identity, category string) (Result, error) {
	log := w.log.With(zap.String("nik", rec.ID))

	res, err := w.process(ctx, log, rec, category)
	var abort *AbortError
	if errors.As(err, &abort) {
		log.Warn("item aborted",
			zap.String("state", string(abort.State)),
			zap.String("reason", abort.Reason),
			zap.Error(abort.Cause))
		return Result{Outcome: Aborted, State: abort.State, Reason: abort.Reason}, nil
	}
	return res, err
}

func (w *Workflow) process(ctx context.Context, log *zap.Logger, rec types.Identity, category string) (Result, error) {
	if err := w.ensurePosition(ctx, log, rec.ID); err != nil {
		return Result{}, err
	}
	if err := w.inputIdentity(ctx, rec.ID); err != nil {
		return Result{}, err
	}
	if err := w.submitCheck(ctx, log); err != nil {
		return Result{}, err
	}

	invalid, err := w.quotaExceeded(ctx, log)
	if err != nil {
		return Result{}, err
	}
	if invalid {
		w.markInvalid(ctx, log, rec.ID)
		return Result{Outcome: Invalid, State: StateQuotaCheck, Reason: "quota exceeded"}, nil
	}

	outcome, err := w.userTypeModal(ctx, log, category)
	if err != nil {
		return Result{}, err
	}
	if outcome == ModalAbsent {
		if err := w.updateDataModal(ctx, log); err != nil {
			return Result{}, err
		}
	}
	log.Debug("modal checks finished", zap.Stringer("user_type_modal", outcome))

	weight, err := w.addItems(ctx, log, rec.ID, category)
	if err != nil {
		return Result{}, err
	}
	if err := w.validateQuantity(ctx, weight); err != nil {
		return Result{}, err
	}
	if err := w.pay(ctx, log); err != nil {
		return Result{}, err
	}

	w.persist(ctx, log, rec)
	return Result{Outcome: Completed, State: StatePersist, Delta: weight}, nil
}

// abort builds a named abort unless the context was cancelled, in which case
// the cancellation is returned so the caller stops.
func abort(ctx context.Context, st State, reason string, cause error) error {
	if err := ctx.Err(); err != nil {
		return &StepError{State: st, Cause: err}
	}
	return &AbortError{State: st, Reason: reason, Cause: cause}
}

func (w *Workflow) ensurePosition(ctx context.Context, log *zap.Logger, nik string) error {
	err := w.pos.Reposition(ctx)
	if err == nil {
		return nil
	}
	log.Error("could not reach verification page, skipping", zap.Error(err))
	if ctx.Err() == nil {
		w.journal.Record(ctx, diag.Entry{
			Kind:    diag.KindReposition,
			NIK:     nik,
			Message: "Failed to navigate back to the NIK verification page.",
			Detail:  err.Error(),
		})
	}
	return abort(ctx, StateEnsurePosition, "verification page unreachable", err)
}

func (w *Workflow) inputIdentity(ctx context.Context, nik string) error {
	input := w.sel.NIKInput
	if err := w.driver.WaitVisible(ctx, input, w.timings.InputWait); err != nil {
		return abort(ctx, StateInputIdentity, "NIK input not found", err)
	}
	if err := w.driver.Clear(ctx, input); err != nil {
		return abort(ctx, StateInputIdentity, "failed to clear NIK input", err)
	}
	if err := w.driver.Type(ctx, input, nik, w.pacer.Keystroke); err != nil {
		return abort(ctx, StateInputIdentity, "failed to type NIK", err)
	}
	return nil
}

func (w *Workflow) submitCheck(ctx context.Context, log *zap.Logger) error {
	if err := w.driver.Click(ctx, w.sel.CheckNIKButton); err != nil {
		return &StepError{State: StateSubmitCheck, Cause: err}
	}
	log.Debug("check NIK clicked, waiting for reaction")

	settle := w.timings.CheckSettle
	if err := w.driver.WaitNetworkIdle(ctx, w.timings.CheckQuiescence); err != nil {
		if ctx.Err() != nil {
			return &StepError{State: StateAwaitReaction, Cause: ctx.Err()}
		}
		log.Warn("network did not settle after check, using fixed delay", zap.Error(err))
		settle = w.timings.CheckFallbackSettle
	}
	if err := w.pacer.Sleep(ctx, settle); err != nil {
		return &StepError{State: StateAwaitReaction, Cause: err}
	}
	return nil
}

// quotaExceeded looks for the exact quota message. A failed probe counts as
// not found.
func (w *Workflow) quotaExceeded(ctx context.Context, log *zap.Logger) (bool, error) {
	if err := w.pacer.Sleep(ctx, w.timings.QuotaProbeDelay); err != nil {
		return false, &StepError{State: StateQuotaCheck, Cause: err}
	}
	html, err := w.driver.HTML(ctx, "body")
	if err != nil {
		if ctx.Err() != nil {
			return false, &StepError{State: StateQuotaCheck, Cause: ctx.Err()}
		}
		log.Warn("quota message probe failed", zap.Error(err))
		return false, nil
	}
	found, err := hasExactSpan(html, w.texts.QuotaExceeded)
	if err != nil {
		log.Warn("quota message probe failed", zap.Error(err))
		return false, nil
	}
	return found, nil
}

// markInvalid records a permanent quota refusal. Every step after the
// classification is best effort.
func (w *Workflow) markInvalid(ctx context.Context, log *zap.Logger, nik string) {
	log.Warn("quota exceeded message detected, marking NIK invalid")
	w.run.MarkInvalid(nik)

	if err := w.store.SaveInvalid(ctx, w.run.Invalid()); err != nil {
		log.Error("failed to save invalid NIK list", zap.Error(err))
		w.journal.Record(ctx, diag.Entry{
			Kind:    diag.KindPersist,
			NIK:     nik,
			Message: "Failed to save the invalid NIK list.",
			Detail:  err.Error(),
		})
	} else {
		log.Info("invalid NIK saved")
	}

	w.journal.Record(ctx, diag.Entry{
		Kind:    diag.KindInvalid,
		NIK:     nik,
		Message: w.texts.QuotaExceeded,
	})

	if err := w.driver.WaitVisible(ctx, w.sel.NIKInput, inputPresenceTimeout); err != nil {
		log.Debug("NIK input not present, nothing to clear", zap.Error(err))
	} else if err := w.driver.Clear(ctx, w.sel.NIKInput); err != nil {
		log.Debug("could not clear NIK input", zap.Error(err))
	}

	if err := w.pos.Reposition(ctx); err != nil {
		log.Error("failed to return to verification page after invalid NIK", zap.Error(err))
		w.journal.Record(ctx, diag.Entry{
			Kind:    diag.KindInvalidReturn,
			NIK:     nik,
			Message: err.Error(),
		})
	}
}

func (w *Workflow) userTypeModal(ctx context.Context, log *zap.Logger, category string) (ModalOutcome, error) {
	modal := w.sel.UserTypeModal
	if err := w.driver.WaitVisible(ctx, modal, w.timings.UserTypeModalWait); err != nil {
		if ctx.Err() != nil {
			return ModalAbsent, &StepError{State: StateUserTypeModal, Cause: ctx.Err()}
		}
		log.Debug("user type modal not shown")
		return ModalAbsent, nil
	}

	html, err := w.driver.HTML(ctx, modal)
	if err != nil {
		return ModalAbsent, abort(ctx, StateUserTypeModal, "failed to read user type modal", err)
	}
	content, err := parseModal(html)
	if err != nil {
		return ModalAbsent, abort(ctx, StateUserTypeModal, "failed to parse user type modal", err)
	}
	if !strings.Contains(content.Text, w.texts.UserTypePrompt) {
		log.Info("modal shown without the user type prompt, ignoring")
		return ModalAbsent, nil
	}

	log.Info("user type modal detected", zap.String("category", category), zap.Int("controls", len(content.Radios)))
	choice, ok := content.match(category)
	if !ok {
		reason := fmt.Sprintf("no user type control matches category %q", category)
		if len(content.Radios) == 0 {
			reason = "user type modal has no selectable controls"
		}
		return ModalUnmatched, abort(ctx, StateUserTypeModal, reason, nil)
	}

	if err := w.activate(ctx, log, choice); err != nil {
		return ModalUnmatched, abort(ctx, StateUserTypeModal, "failed to select user type", err)
	}

	if err := w.driver.WaitVisible(ctx, w.sel.ContinueButton, w.timings.ContinueButtonWait); err != nil {
		return ModalUnmatched, abort(ctx, StateUserTypeModal, "continue button did not appear", err)
	}
	if err := w.driver.Click(ctx, w.sel.ContinueButton); err != nil {
		return ModalUnmatched, abort(ctx, StateUserTypeModal, "failed to confirm user type", err)
	}
	log.Info("user type confirmed")

	if err := w.quiesce(ctx, log, StateUserTypeModal, w.timings.ConfirmQuiescence, w.timings.ConfirmSettle); err != nil {
		return ModalHandled, err
	}
	return ModalHandled, nil
}

// activate clicks the label wrapping the radio when there is one, falling
// back to the radio itself.
func (w *Workflow) activate(ctx context.Context, log *zap.Logger, choice radioChoice) error {
	direct := radioCSS(w.sel.UserTypeModal, choice.Value)
	if !choice.HasLabel {
		log.Warn("user type control has no wrapping label, clicking it directly")
		return w.driver.Click(ctx, direct)
	}
	err := w.driver.Click(ctx, radioLabel(w.sel.UserTypeModal, choice.Value))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	log.Warn("label click failed, clicking control directly", zap.Error(err))
	return w.driver.Click(ctx, direct)
}

func (w *Workflow) updateDataModal(ctx context.Context, log *zap.Logger) error {
	if err := w.driver.WaitVisible(ctx, w.sel.UpdateDataTitle, w.timings.UpdateDataModalWait); err != nil {
		if ctx.Err() != nil {
			return &StepError{State: StateUpdateDataModal, Cause: ctx.Err()}
		}
		log.Debug("update data modal not shown")
		return nil
	}

	log.Info("update data modal detected")
	if err := w.driver.Click(ctx, w.sel.SkipUpdateButton); err != nil {
		if ctx.Err() != nil {
			return &StepError{State: StateUpdateDataModal, Cause: ctx.Err()}
		}
		log.Warn("skip button not found although update data modal is shown", zap.Error(err))
		return nil
	}
	log.Info("update data skipped")
	return w.quiesce(ctx, log, StateUpdateDataModal, w.timings.SkipQuiescence, w.timings.SkipSettle)
}

// quiesce waits for the network then sleeps. A quiescence timeout is logged
// and tolerated.
func (w *Workflow) quiesce(ctx context.Context, log *zap.Logger, st State, timeout, settle time.Duration) error {
	if err := w.driver.WaitNetworkIdle(ctx, timeout); err != nil {
		if ctx.Err() != nil {
			return &StepError{State: st, Cause: ctx.Err()}
		}
		log.Warn("network did not settle", zap.String("state", string(st)), zap.Error(err))
	}
	if err := w.pacer.Sleep(ctx, settle); err != nil {
		return &StepError{State: st, Cause: err}
	}
	return nil
}

func (w *Workflow) addItems(ctx context.Context, log *zap.Logger, nik, category string) (int, error) {
	add := w.sel.AddItemButton
	if err := w.driver.WaitVisible(ctx, add, w.timings.AddControlWait); err != nil {
		if ctx.Err() == nil {
			w.journal.Record(ctx, diag.Entry{
				Kind:    diag.KindItem,
				NIK:     nik,
				Message: "Add-item control did not appear after modal handling.",
				Detail:  err.Error(),
				Stack:   string(debug.Stack()),
			})
		}
		return 0, abort(ctx, StateAddItems, "add-item control unavailable", err)
	}

	weight, ok := w.weights.Resolve(category)
	if !ok {
		w.journal.Record(ctx, diag.Entry{
			Kind:    diag.KindItem,
			NIK:     nik,
			Message: fmt.Sprintf("No weight configured for category %q. Check the weight table and the source data.", category),
		})
		return 0, abort(ctx, StateAddItems, "category has no weight", nil)
	}

	log.Info("adding items", zap.Int("clicks", weight))
	for i := 0; i < weight; i++ {
		if err := w.driver.WaitVisible(ctx, add, w.timings.AddClickWait); err != nil {
			return 0, &StepError{State: StateAddItems, Cause: err}
		}
		if err := w.driver.Click(ctx, add); err != nil {
			return 0, &StepError{State: StateAddItems, Cause: err}
		}
		if err := w.pacer.Sleep(ctx, w.timings.AddSettle); err != nil {
			return 0, &StepError{State: StateAddItems, Cause: err}
		}
	}
	return weight, nil
}

func (w *Workflow) validateQuantity(ctx context.Context, expected int) error {
	qty := w.sel.QuantityInput
	if err := w.driver.WaitVisible(ctx, qty, w.timings.QuantityWait); err != nil {
		return &StepError{State: StateValidateQuantity, Cause: err}
	}
	raw, err := w.driver.Value(ctx, qty)
	if err != nil {
		return &StepError{State: StateValidateQuantity, Cause: err}
	}
	got, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || got != expected {
		return abort(ctx, StateValidateQuantity,
			fmt.Sprintf("quantity mismatch: expected %d, got %q", expected, raw), err)
	}
	return nil
}

// pay runs review, pay and return in order. Any failure aborts the item.
func (w *Workflow) pay(ctx context.Context, log *zap.Logger) error {
	steps := []struct {
		name     string
		selector string
	}{
		{"review order", w.sel.CheckOrderButton},
		{"pay", w.sel.PayButton},
	}
	for _, step := range steps {
		log.Info("payment step", zap.String("step", step.name))
		if err := w.driver.Click(ctx, step.selector); err != nil {
			return abort(ctx, StatePay, step.name+" click failed", err)
		}
		if err := w.driver.WaitNetworkIdle(ctx, w.timings.PayQuiescence); err != nil {
			return abort(ctx, StatePay, step.name+" did not settle", err)
		}
		if err := w.pacer.Sleep(ctx, w.timings.PaySettle); err != nil {
			return &StepError{State: StatePay, Cause: err}
		}
	}

	log.Info("payment step", zap.String("step", "back"))
	if err := surface.ClickAndWaitNavigation(ctx, w.driver, w.sel.BackButton, w.timings.BackNavigation); err != nil {
		return abort(ctx, StatePay, "back navigation failed", err)
	}
	return nil
}

// persist records the success in memory first. A failed save is reported but
// the identity stays processed for the rest of the run.
func (w *Workflow) persist(ctx context.Context, log *zap.Logger, rec types.Identity) {
	w.run.MarkProcessed(rec)
	if err := w.store.SaveProcessed(ctx, w.run.Processed()); err != nil {
		log.Error("failed to save processed list", zap.Error(err))
		w.journal.Record(ctx, diag.Entry{
			Kind:    diag.KindPersist,
			NIK:     rec.ID,
			Message: "Failed to save the processed list; the NIK stays processed for this run.",
			Detail:  err.Error(),
		})
		return
	}
	log.Info("NIK processed and saved")
}
