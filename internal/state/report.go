package state

import "github.com/jonathan/lpg-agent/internal/types"

// Report summarizes a run's progress against a source list.
type Report struct {
	Source            int
	Processed         int
	Invalid           int
	Remaining         int
	MissingCategory   int
	MissingIdentifier int
	Weight            int
	MaxWeight         int
}

// QuotaMet reports whether the ceiling has been reached.
func (rep Report) QuotaMet() bool {
	return rep.Weight >= rep.MaxWeight
}

// Report computes a progress snapshot without mutating the run.
func (r *Run) Report(source []types.Identity, maxWeight int) Report {
	remaining := r.Remaining(source)
	rep := Report{
		Source:    len(source),
		Processed: len(r.processed),
		Invalid:   len(r.invalid),
		Remaining: len(remaining),
		Weight:    r.weight,
		MaxWeight: maxWeight,
	}
	for _, rec := range source {
		if !rec.HasID() {
			rep.MissingIdentifier++
		}
	}
	for _, rec := range remaining {
		if !rec.HasCategory() {
			rep.MissingCategory++
		}
	}
	return rep
}
