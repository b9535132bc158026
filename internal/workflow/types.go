package workflow

import (
	"context"
	"time"

	"github.com/jonathan/lpg-agent/internal/types"
)

// State names a step of the item workflow.
type State string

// Workflow states in execution order.
const (
	StateEnsurePosition   State = "EnsurePosition"
	StateInputIdentity    State = "InputIdentity"
	StateSubmitCheck      State = "SubmitCheck"
	StateAwaitReaction    State = "AwaitReaction"
	StateQuotaCheck       State = "QuotaCheck"
	StateUserTypeModal    State = "UserTypeModal"
	StateUpdateDataModal  State = "UpdateDataModal"
	StateAddItems         State = "AddItems"
	StateValidateQuantity State = "ValidateQuantity"
	StatePay              State = "Pay"
	StatePersist          State = "Persist"
)

// Outcome classifies how an item ended.
type Outcome int

const (
	// Aborted items return weight 0 and stay eligible for a later iteration.
	Aborted Outcome = iota
	// Invalid items were refused for exceeding their quota and are excluded for good.
	Invalid
	// Completed items were paid for and recorded as processed.
	Completed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Invalid:
		return "invalid"
	default:
		return "aborted"
	}
}

// Result is what Process reports back to the batch controller.
type Result struct {
	Outcome Outcome
	// State is the last state reached.
	State State
	// Delta is the weight charged for this item; non-zero only when Completed.
	Delta  int
	Reason string
}

// ModalOutcome distinguishes a modal that never appeared from one that
// appeared but offered nothing to act on.
type ModalOutcome int

const (
	ModalAbsent ModalOutcome = iota
	ModalHandled
	ModalUnmatched
)

func (m ModalOutcome) String() string {
	switch m {
	case ModalHandled:
		return "handled"
	case ModalUnmatched:
		return "unmatched"
	default:
		return "absent"
	}
}

// Positioner puts the surface back on the entry page.
type Positioner interface {
	Reposition(ctx context.Context) error
}

// Persister writes the run's collections. Implementations rewrite the full list.
type Persister interface {
	SaveProcessed(ctx context.Context, records []types.Identity) error
	SaveInvalid(ctx context.Context, ids []string) error
}

// Timings bounds every wait and settle delay of the workflow.
type Timings struct {
	InputWait           time.Duration
	CheckQuiescence     time.Duration
	CheckSettle         time.Duration
	CheckFallbackSettle time.Duration
	QuotaProbeDelay     time.Duration
	UserTypeModalWait   time.Duration
	ContinueButtonWait  time.Duration
	ConfirmQuiescence   time.Duration
	ConfirmSettle       time.Duration
	UpdateDataModalWait time.Duration
	SkipQuiescence      time.Duration
	SkipSettle          time.Duration
	AddControlWait      time.Duration
	AddClickWait        time.Duration
	AddSettle           time.Duration
	QuantityWait        time.Duration
	PayQuiescence       time.Duration
	PaySettle           time.Duration
	BackNavigation      time.Duration
}

// DefaultTimings returns the waits tuned for the merchant portal.
func DefaultTimings() Timings {
	return Timings{
		InputWait:           30 * time.Second,
		CheckQuiescence:     7 * time.Second,
		CheckSettle:         500 * time.Millisecond,
		CheckFallbackSettle: time.Second,
		QuotaProbeDelay:     time.Second,
		UserTypeModalWait:   4 * time.Second,
		ContinueButtonWait:  3 * time.Second,
		ConfirmQuiescence:   15 * time.Second,
		ConfirmSettle:       1500 * time.Millisecond,
		UpdateDataModalWait: 4 * time.Second,
		SkipQuiescence:      10 * time.Second,
		SkipSettle:          500 * time.Millisecond,
		AddControlWait:      10 * time.Second,
		AddClickWait:        3 * time.Second,
		AddSettle:           time.Second,
		QuantityWait:        30 * time.Second,
		PayQuiescence:       15 * time.Second,
		PaySettle:           1500 * time.Millisecond,
		BackNavigation:      60 * time.Second,
	}
}
