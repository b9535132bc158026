// Package state holds the mutable bookkeeping of a batch run: which identities
// are processed, which are permanently invalid, and how much of the weight
// ceiling has been consumed.
package state

import (
	"github.com/jonathan/lpg-agent/internal/types"
	"github.com/jonathan/lpg-agent/internal/weights"
)

// Run is shared by reference between the batch controller and the item
// workflow. It is only mutated from the single control flow and is not safe
// for concurrent use.
type Run struct {
	processed    []types.Identity
	processedSet map[string]struct{}
	invalid      []string
	invalidSet   map[string]struct{}
	weight       int

	// Conflicts lists identifiers found in both persisted sets at load time.
	// They are kept as processed.
	Conflicts []string
}

// New seeds a run from persisted artifacts. The cumulative weight is
// recomputed from the processed records rather than read from storage.
func New(processed []types.Identity, invalid []string, table weights.Map) *Run {
	r := &Run{
		processedSet: make(map[string]struct{}, len(processed)),
		invalidSet:   make(map[string]struct{}, len(invalid)),
	}
	for _, rec := range processed {
		if !rec.HasID() {
			continue
		}
		if _, dup := r.processedSet[rec.ID]; dup {
			continue
		}
		r.processedSet[rec.ID] = struct{}{}
		r.processed = append(r.processed, rec)
	}
	for _, id := range invalid {
		if id == "" {
			continue
		}
		if _, done := r.processedSet[id]; done {
			r.Conflicts = append(r.Conflicts, id)
			continue
		}
		if _, dup := r.invalidSet[id]; dup {
			continue
		}
		r.invalidSet[id] = struct{}{}
		r.invalid = append(r.invalid, id)
	}
	r.weight = table.Total(r.processed)
	return r
}

// Weight returns the cumulative weight consumed so far.
func (r *Run) Weight() int { return r.weight }

// AddWeight folds a workflow's weight delta into the cumulative total.
func (r *Run) AddWeight(delta int) {
	if delta > 0 {
		r.weight += delta
	}
}

// IsProcessed reports whether the identifier completed the workflow.
func (r *Run) IsProcessed(id string) bool {
	_, ok := r.processedSet[id]
	return ok
}

// IsInvalid reports whether the identifier was refused for exceeding its quota.
func (r *Run) IsInvalid(id string) bool {
	_, ok := r.invalidSet[id]
	return ok
}

// MarkProcessed appends the record to the processed list. It returns false
// when the identifier is already processed or invalid.
func (r *Run) MarkProcessed(rec types.Identity) bool {
	if !rec.HasID() || r.IsProcessed(rec.ID) || r.IsInvalid(rec.ID) {
		return false
	}
	r.processedSet[rec.ID] = struct{}{}
	r.processed = append(r.processed, rec)
	return true
}

// MarkInvalid excludes the identifier permanently. It returns false when the
// identifier is already invalid or processed.
func (r *Run) MarkInvalid(id string) bool {
	if id == "" || r.IsInvalid(id) || r.IsProcessed(id) {
		return false
	}
	r.invalidSet[id] = struct{}{}
	r.invalid = append(r.invalid, id)
	return true
}

// Processed returns a copy of the processed records in completion order.
func (r *Run) Processed() []types.Identity {
	out := make([]types.Identity, len(r.processed))
	copy(out, r.processed)
	return out
}

// Invalid returns a copy of the invalid identifiers in the order they were marked.
func (r *Run) Invalid() []string {
	out := make([]string, len(r.invalid))
	copy(out, r.invalid)
	return out
}

// Remaining returns source records that carry an identifier and are neither
// processed nor invalid. It is recomputed on every call.
func (r *Run) Remaining(source []types.Identity) []types.Identity {
	var out []types.Identity
	for _, rec := range source {
		if !rec.HasID() || r.IsProcessed(rec.ID) || r.IsInvalid(rec.ID) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
