package workflow

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/lpg-agent/internal/diag"
	"github.com/jonathan/lpg-agent/internal/pacing"
	"github.com/jonathan/lpg-agent/internal/session"
	"github.com/jonathan/lpg-agent/internal/state"
	"github.com/jonathan/lpg-agent/internal/surface/surfacetest"
	"github.com/jonathan/lpg-agent/internal/types"
	"github.com/jonathan/lpg-agent/internal/weights"
)

const (
	verifyURL      = "https://portal.test/merchant/app/verification-nik"
	transactionURL = "https://portal.test/merchant/app/transaction"
	userTypeHTML   = `<div class="mantine-Modal-body">
		<p>Pilih salah satu jenis pengguna untuk melanjutkan transaksi</p>
		<label><input type="radio" value="Rumah Tangga"> Rumah Tangga</label>
		<label><input type="radio" value="Usaha Mikro"> Usaha Mikro</label>
	</div>`
)

type fakePositioner struct {
	err   error
	calls int
}

func (p *fakePositioner) Reposition(ctx context.Context) error {
	p.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.err
}

type memStore struct {
	processed    [][]types.Identity
	invalid      [][]string
	processedErr error
	invalidErr   error
}

func (s *memStore) SaveProcessed(_ context.Context, records []types.Identity) error {
	s.processed = append(s.processed, records)
	return s.processedErr
}

func (s *memStore) SaveInvalid(_ context.Context, ids []string) error {
	s.invalid = append(s.invalid, ids)
	return s.invalidErr
}

type memSink struct {
	entries []string
}

func (s *memSink) AppendLog(_ context.Context, text string) error {
	s.entries = append(s.entries, text)
	return nil
}

type harness struct {
	d     *surfacetest.Driver
	sel   session.Selectors
	pos   *fakePositioner
	store *memStore
	sink  *memSink
	run   *state.Run
	wf    *Workflow
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	table, err := weights.New(map[string]int{"Rumah Tangga": 1, "Usaha Mikro": 2})
	require.NoError(t, err)

	sel := session.DefaultSelectors()
	d := surfacetest.New(verifyURL)
	d.Show(sel.NIKInput, sel.CheckNIKButton, sel.AddItemButton, sel.QuantityInput,
		sel.CheckOrderButton, sel.PayButton, sel.BackButton)
	d.HTMLs["body"] = "<body><span>Cek NIK</span></body>"
	d.Values[sel.QuantityInput] = "0"
	d.OnClick[sel.CheckNIKButton] = func(d *surfacetest.Driver) { d.URL = transactionURL }
	d.OnClick[sel.AddItemButton] = func(d *surfacetest.Driver) {
		n, _ := strconv.Atoi(d.Values[sel.QuantityInput])
		d.Values[sel.QuantityInput] = strconv.Itoa(n + 1)
	}
	d.OnClick[sel.BackButton] = func(d *surfacetest.Driver) { d.URL = verifyURL }

	h := &harness{
		d:     d,
		sel:   sel,
		pos:   &fakePositioner{},
		store: &memStore{},
		sink:  &memSink{},
		run:   state.New(nil, nil, table),
	}
	timings := DefaultTimings()
	timings.BackNavigation = time.Second
	h.wf = New(Options{
		Driver:     d,
		Positioner: h.pos,
		Store:      h.store,
		Run:        h.run,
		Weights:    table,
		Selectors:  sel,
		Texts:      session.DefaultTexts(),
		Timings:    timings,
		Pacer:      pacing.NoWait{},
		Journal:    diag.NewJournal(h.sink, uuid.Nil, time.UTC, nil),
	})
	return h
}

func (h *harness) process(t *testing.T, rec types.Identity) Result {
	t.Helper()
	res, err := h.wf.Process(context.Background(), rec, weights.Normalize(rec.Category))
	require.NoError(t, err)
	return res
}

func TestProcess_CompletesWithoutModals(t *testing.T) {
	h := newHarness(t)
	rec := types.Identity{ID: "3201010101010001", Category: "rumah tangga"}

	res := h.process(t, rec)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, StatePersist, res.State)
	assert.Equal(t, 1, res.Delta)
	assert.Equal(t, rec.ID, h.d.Values[h.sel.NIKInput])
	assert.Equal(t, 1, h.d.Count("click "+h.sel.AddItemButton))
	assert.True(t, h.d.Called("wait "+h.sel.UpdateDataTitle))

	assert.True(t, h.run.IsProcessed(rec.ID))
	require.Len(t, h.store.processed, 1)
	assert.Equal(t, []types.Identity{rec}, h.store.processed[0])
	assert.Empty(t, h.sink.entries)
	assert.Zero(t, h.run.Weight(), "weight is folded in by the caller")
}

func TestProcess_ClicksAddOncePerWeightUnit(t *testing.T) {
	h := newHarness(t)

	res := h.process(t, types.Identity{ID: "2", Category: "USAHA MIKRO"})

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 2, res.Delta)
	assert.Equal(t, 2, h.d.Count("click "+h.sel.AddItemButton))
	assert.Equal(t, "2", h.d.Values[h.sel.QuantityInput])
}

func TestProcess_ClearsPreviousInput(t *testing.T) {
	h := newHarness(t)
	h.d.Values[h.sel.NIKInput] = "stale"

	h.process(t, types.Identity{ID: "123", Category: "Rumah Tangga"})
	assert.Equal(t, "123", h.d.Values[h.sel.NIKInput])
}

func TestProcess_UserTypeModalHandled(t *testing.T) {
	h := newHarness(t)
	h.d.Show(h.sel.UserTypeModal, h.sel.ContinueButton, radioLabel(h.sel.UserTypeModal, "Usaha Mikro"))
	h.d.HTMLs[h.sel.UserTypeModal] = userTypeHTML

	res := h.process(t, types.Identity{ID: "2", Category: "usaha mikro"})

	assert.Equal(t, Completed, res.Outcome)
	assert.True(t, h.d.Called("click "+radioLabel(h.sel.UserTypeModal, "Usaha Mikro")))
	assert.True(t, h.d.Called("click "+h.sel.ContinueButton))
	assert.False(t, h.d.Called("wait "+h.sel.UpdateDataTitle), "update data modal is only checked when the user type modal is absent")
}

func TestProcess_UserTypeModalFallsBackToDirectClick(t *testing.T) {
	h := newHarness(t)
	direct := radioCSS(h.sel.UserTypeModal, "Rumah Tangga")
	h.d.Show(h.sel.UserTypeModal, h.sel.ContinueButton, direct)
	h.d.HTMLs[h.sel.UserTypeModal] = userTypeHTML

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Completed, res.Outcome)
	assert.True(t, h.d.Called("click "+radioLabel(h.sel.UserTypeModal, "Rumah Tangga")))
	assert.True(t, h.d.Called("click "+direct))
}

func TestProcess_UserTypeModalUnmatchedAborts(t *testing.T) {
	h := newHarness(t)
	h.d.Show(h.sel.UserTypeModal, h.sel.ContinueButton)
	h.d.HTMLs[h.sel.UserTypeModal] = userTypeHTML

	rec := types.Identity{ID: "9", Category: "Pengecer"}
	res := h.process(t, rec)

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StateUserTypeModal, res.State)
	assert.Contains(t, res.Reason, "Pengecer")
	assert.Zero(t, h.d.Count("click "+h.sel.AddItemButton))
	assert.Len(t, h.run.Remaining([]types.Identity{rec}), 1)
}

func TestProcess_UserTypeModalMissingContinueAborts(t *testing.T) {
	h := newHarness(t)
	h.d.Show(h.sel.UserTypeModal, radioLabel(h.sel.UserTypeModal, "Rumah Tangga"))
	h.d.HTMLs[h.sel.UserTypeModal] = userTypeHTML

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StateUserTypeModal, res.State)
}

func TestProcess_OtherModalIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.d.Show(h.sel.UserTypeModal)
	h.d.HTMLs[h.sel.UserTypeModal] = `<div class="mantine-Modal-body"><p>Pengumuman</p></div>`

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Completed, res.Outcome)
	assert.True(t, h.d.Called("wait "+h.sel.UpdateDataTitle))
}

func TestProcess_UpdateDataModalSkipped(t *testing.T) {
	h := newHarness(t)
	h.d.Show(h.sel.UpdateDataTitle, h.sel.SkipUpdateButton)

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Completed, res.Outcome)
	assert.True(t, h.d.Called("click "+h.sel.SkipUpdateButton))
}

func TestProcess_UpdateDataModalWithoutSkipContinues(t *testing.T) {
	h := newHarness(t)
	h.d.Show(h.sel.UpdateDataTitle)

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})
	assert.Equal(t, Completed, res.Outcome)
}

func TestProcess_QuotaExceededMarksInvalid(t *testing.T) {
	h := newHarness(t)
	h.d.HTMLs["body"] = `<body><div class="alert"><span>` + session.DefaultTexts().QuotaExceeded + `</span></div></body>`

	rec := types.Identity{ID: "3201010101010003", Category: "Rumah Tangga"}
	res := h.process(t, rec)

	assert.Equal(t, Invalid, res.Outcome)
	assert.Equal(t, StateQuotaCheck, res.State)
	assert.Zero(t, res.Delta)

	assert.True(t, h.run.IsInvalid(rec.ID))
	assert.False(t, h.run.IsProcessed(rec.ID))
	assert.Zero(t, h.run.Weight())
	require.Len(t, h.store.invalid, 1)
	assert.Equal(t, []string{rec.ID}, h.store.invalid[0])
	assert.Empty(t, h.store.processed)

	require.Len(t, h.sink.entries, 1)
	assert.Contains(t, h.sink.entries[0], string(diag.KindInvalid)+" "+rec.ID)
	assert.Equal(t, "", h.d.Values[h.sel.NIKInput], "input is cleared")
	assert.Equal(t, 2, h.pos.calls, "re-navigates after classification")
	assert.Zero(t, h.d.Count("click "+h.sel.AddItemButton))
	assert.Empty(t, h.run.Remaining([]types.Identity{rec}))
}

func TestProcess_QuotaExceededReturnFailureIsLogged(t *testing.T) {
	h := newHarness(t)
	h.d.HTMLs["body"] = `<body><span>` + session.DefaultTexts().QuotaExceeded + `</span></body>`
	h.d.OnClick[h.sel.CheckNIKButton] = func(d *surfacetest.Driver) {
		h.pos.err = errors.New("verification page unreachable")
	}

	res := h.process(t, types.Identity{ID: "7", Category: "Rumah Tangga"})

	assert.Equal(t, Invalid, res.Outcome)
	require.Len(t, h.sink.entries, 2)
	assert.Contains(t, h.sink.entries[1], string(diag.KindInvalidReturn))
}

func TestProcess_QuotaExceededSkipsClearWhenInputGone(t *testing.T) {
	h := newHarness(t)
	h.d.HTMLs["body"] = `<body><span>` + session.DefaultTexts().QuotaExceeded + `</span></body>`
	h.d.OnClick[h.sel.CheckNIKButton] = func(d *surfacetest.Driver) {
		d.Hide(h.sel.NIKInput)
	}

	rec := types.Identity{ID: "8", Category: "Rumah Tangga"}
	res := h.process(t, rec)

	assert.Equal(t, Invalid, res.Outcome)
	assert.True(t, h.run.IsInvalid(rec.ID))
	assert.Equal(t, 2, h.d.Count("wait "+h.sel.NIKInput), "presence is checked before clearing")
	assert.Equal(t, 1, h.d.Count("clear "+h.sel.NIKInput), "only the pre-typing clear runs")
	assert.Equal(t, 2, h.pos.calls)
}

func TestProcess_QuotaProbeFailureCountsAsAbsent(t *testing.T) {
	h := newHarness(t)
	delete(h.d.HTMLs, "body")

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})
	assert.Equal(t, Completed, res.Outcome)
}

func TestProcess_AddControlMissingAborts(t *testing.T) {
	h := newHarness(t)
	h.d.Hide(h.sel.AddItemButton)

	rec := types.Identity{ID: "5", Category: "Rumah Tangga"}
	res := h.process(t, rec)

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StateAddItems, res.State)
	assert.Zero(t, res.Delta)
	assert.Len(t, h.run.Remaining([]types.Identity{rec}), 1, "stays eligible")

	require.Len(t, h.sink.entries, 1)
	entry := h.sink.entries[0]
	assert.Contains(t, entry, string(diag.KindItem)+" 5")
	assert.Contains(t, entry, "Add-item control did not appear")
	assert.Contains(t, entry, "Stack Trace:")
}

func TestProcess_UnresolvedCategoryAborts(t *testing.T) {
	h := newHarness(t)

	res := h.process(t, types.Identity{ID: "6", Category: "Nelayan"})

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StateAddItems, res.State)
	require.Len(t, h.sink.entries, 1)
	assert.Contains(t, h.sink.entries[0], `"Nelayan"`)
	assert.Zero(t, h.d.Count("click "+h.sel.AddItemButton))
}

func TestProcess_QuantityMismatchAborts(t *testing.T) {
	h := newHarness(t)
	h.d.OnClick[h.sel.AddItemButton] = nil

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StateValidateQuantity, res.State)
	assert.Zero(t, h.d.Count("click "+h.sel.CheckOrderButton))
	assert.Empty(t, h.store.processed)
}

func TestProcess_PaymentFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.d.Fail("click", h.sel.PayButton, errors.New("detached"))

	rec := types.Identity{ID: "1", Category: "Rumah Tangga"}
	res := h.process(t, rec)

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StatePay, res.State)
	assert.True(t, h.d.Called("click "+h.sel.CheckOrderButton))
	assert.False(t, h.d.Called("click "+h.sel.BackButton))
	assert.False(t, h.run.IsProcessed(rec.ID))
}

func TestProcess_PaymentQuiescenceTimeoutAborts(t *testing.T) {
	h := newHarness(t)
	h.d.NetworkIdleErr = surfacetest.TimeoutErr("network idle")

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StatePay, res.State, "check quiescence timeout is tolerated, payment's is not")
}

func TestProcess_BackWithoutNavigationAborts(t *testing.T) {
	h := newHarness(t)
	h.d.OnClick[h.sel.BackButton] = nil
	h.wf.timings.BackNavigation = 150 * time.Millisecond

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StatePay, res.State)
}

func TestProcess_RepositionFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.pos.err = errors.New("redirected to login")

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StateEnsurePosition, res.State)
	assert.Zero(t, h.d.Count("type"))
	require.Len(t, h.sink.entries, 1)
	assert.Contains(t, h.sink.entries[0], string(diag.KindReposition))
	assert.Contains(t, h.sink.entries[0], "redirected to login")
}

func TestProcess_InputMissingAborts(t *testing.T) {
	h := newHarness(t)
	h.d.Hide(h.sel.NIKInput)

	res := h.process(t, types.Identity{ID: "1", Category: "Rumah Tangga"})

	assert.Equal(t, Aborted, res.Outcome)
	assert.Equal(t, StateInputIdentity, res.State)
	assert.False(t, h.d.Called("click "+h.sel.CheckNIKButton))
}

func TestProcess_PersistFailureKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	h.store.processedErr = errors.New("disk full")

	rec := types.Identity{ID: "1", Category: "Rumah Tangga"}
	res := h.process(t, rec)

	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 1, res.Delta)
	assert.True(t, h.run.IsProcessed(rec.ID))
	require.Len(t, h.sink.entries, 1)
	assert.Contains(t, h.sink.entries[0], string(diag.KindPersist))
	assert.Contains(t, h.sink.entries[0], "disk full")
}

func TestProcess_UnexpectedErrorPropagates(t *testing.T) {
	h := newHarness(t)
	h.d.Fail("click", h.sel.CheckNIKButton, errors.New("target closed"))

	_, err := h.wf.Process(context.Background(), types.Identity{ID: "1", Category: "Rumah Tangga"}, "Rumah Tangga")
	require.Error(t, err)

	var step *StepError
	require.True(t, errors.As(err, &step))
	assert.Equal(t, StateSubmitCheck, step.State)
	var abortErr *AbortError
	assert.False(t, errors.As(err, &abortErr))
}

func TestProcess_CancelledContextIsNotAnAbort(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.wf.Process(ctx, types.Identity{ID: "1", Category: "Rumah Tangga"}, "Rumah Tangga")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.sink.entries)
}

func TestOutcomeStrings(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "invalid", Invalid.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "unmatched", ModalUnmatched.String())
	assert.True(t, strings.HasPrefix(ModalAbsent.String(), "abs"))
}
