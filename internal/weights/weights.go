// Package weights resolves category labels to the integer weight charged
// against the quota ceiling.
package weights

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jonathan/lpg-agent/internal/types"
)

// Normalize collapses runs of whitespace and title-cases every word, so
// "  rumah   TANGGA " becomes "Rumah Tangga".
func Normalize(label string) string {
	collapsed := strings.Join(strings.Fields(label), " ")
	if collapsed == "" {
		return ""
	}
	return cases.Title(language.Und).String(collapsed)
}

// Map is a category → weight table keyed by normalized label.
type Map map[string]int

// New builds a Map from a configured table. Keys are normalized; weights must
// be positive and keys must stay distinct after normalization.
func New(table map[string]int) (Map, error) {
	m := make(Map, len(table))
	for label, weight := range table {
		key := Normalize(label)
		if key == "" {
			return nil, &Error{Message: "empty category label"}
		}
		if weight <= 0 {
			return nil, &Error{Message: fmt.Sprintf("weight for %q must be positive, got %d", label, weight)}
		}
		if _, dup := m[key]; dup {
			return nil, &Error{Message: fmt.Sprintf("category %q is configured more than once", key)}
		}
		m[key] = weight
	}
	if len(m) == 0 {
		return nil, &Error{Message: "no category weights configured"}
	}
	return m, nil
}

// Resolve returns the weight for a label, normalizing it first.
func (m Map) Resolve(label string) (int, bool) {
	w, ok := m[Normalize(label)]
	return w, ok
}

// Total sums the resolved weight of every record. Records whose category
// does not resolve contribute nothing.
func (m Map) Total(records []types.Identity) int {
	total := 0
	for _, r := range records {
		if w, ok := m.Resolve(r.Category); ok {
			total += w
		}
	}
	return total
}

// Labels returns the configured normalized labels.
func (m Map) Labels() []string {
	labels := make([]string, 0, len(m))
	for k := range m {
		labels = append(labels, k)
	}
	return labels
}
