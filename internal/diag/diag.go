// Package diag writes the durable diagnostic log: one timestamped text block
// per failure or classification event.
package diag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimestampLayout renders times as dd/mm/yyyy, hh.mm.ss.
const TimestampLayout = "02/01/2006, 15.04.05"

// Kind is the headline of a diagnostic entry.
type Kind string

// Entry kinds
const (
	KindUnexpected    Kind = "UNEXPECTED ERROR WHILE PROCESSING NIK"
	KindInvalid       Kind = "NIK MARKED INVALID"
	KindReposition    Kind = "RE-NAVIGATION FAILED FOR NIK"
	KindInvalidReturn Kind = "RETURN TO VERIFICATION FAILED AFTER INVALID NIK"
	KindItem          Kind = "ERROR FOR NIK"
	KindPersist       Kind = "PERSISTENCE FAILURE FOR NIK"
	KindFatal         Kind = "FATAL ERROR"
)

const (
	noMessage           = "No specific error message."
	noStack             = "No stack trace."
	stackTraceSeparator = "Stack Trace:"
)

// Entry is one diagnostic event.
type Entry struct {
	Kind    Kind
	NIK     string
	Message string
	Detail  string
	Stack   string
}

// Sink receives formatted entries. Implementations append; they never truncate.
type Sink interface {
	AppendLog(ctx context.Context, text string) error
}

// Journal stamps entries with time and run ID and hands them to a Sink.
type Journal struct {
	sink  Sink
	runID uuid.UUID
	loc   *time.Location
	log   *zap.Logger
	now   func() time.Time
}

// NewJournal creates a journal. A nil location means UTC; a nil logger discards.
func NewJournal(sink Sink, runID uuid.UUID, loc *time.Location, logger *zap.Logger) *Journal {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{sink: sink, runID: runID, loc: loc, log: logger, now: time.Now}
}

// WithClock replaces the time source.
func (j *Journal) WithClock(now func() time.Time) *Journal {
	j.now = now
	return j
}

// RunID returns the run identifier stamped on every entry.
func (j *Journal) RunID() uuid.UUID { return j.runID }

// Timestamp renders the current time in the journal's location.
func (j *Journal) Timestamp() string {
	return j.now().In(j.loc).Format(TimestampLayout)
}

// Record appends an entry. Sink failures are reported to the process log and
// never returned.
func (j *Journal) Record(ctx context.Context, e Entry) {
	if j == nil || j.sink == nil {
		return
	}
	text := Format(j.now().In(j.loc), j.runID, e)
	if err := j.sink.AppendLog(ctx, text); err != nil {
		j.log.Error("failed to append diagnostic log",
			zap.String("kind", string(e.Kind)),
			zap.String("nik", e.NIK),
			zap.Error(err))
	}
}

// Format renders an entry as a text block terminated by a blank line.
func Format(ts time.Time, runID uuid.UUID, e Entry) string {
	var sb strings.Builder

	sb.WriteString("[")
	sb.WriteString(ts.Format(TimestampLayout))
	sb.WriteString("] ")
	sb.WriteString(string(e.Kind))
	if e.NIK != "" {
		sb.WriteString(" ")
		sb.WriteString(e.NIK)
	}
	if runID != uuid.Nil {
		sb.WriteString(fmt.Sprintf(" (run %s)", runID))
	}
	sb.WriteString(":\n")

	message := strings.TrimSpace(e.Message)
	if message == "" {
		message = noMessage
	}
	sb.WriteString("Message: ")
	sb.WriteString(message)
	sb.WriteString("\n")

	if detail := strings.TrimSpace(e.Detail); detail != "" {
		sb.WriteString("Detail: ")
		sb.WriteString(detail)
		sb.WriteString("\n")
	}

	if e.Kind == KindUnexpected || e.Kind == KindFatal || e.Stack != "" {
		stack := strings.TrimRight(e.Stack, "\n")
		if stack == "" {
			stack = noStack
		}
		sb.WriteString(stackTraceSeparator)
		sb.WriteString("\n")
		sb.WriteString(stack)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	return sb.String()
}
