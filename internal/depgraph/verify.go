package depgraph

import (
	"fmt"
	"log/slog"
	"strings"
)

// VerificationError describes why an order was rejected by Check.
type VerificationError struct {
	// Table and Dependent name the violating pair: Dependent references
	// Table but was placed after it.
	Table     string
	Dependent string

	Missing    []string
	Extra      []string
	Duplicates []string
}

func (e *VerificationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s placed before %s, which references it", e.Table, e.Dependent)
	}
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unknown "+strings.Join(e.Extra, ", "))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, "duplicated "+strings.Join(e.Duplicates, ", "))
	}
	return "order does not match the table set: " + strings.Join(parts, "; ")
}

// Check validates order against m. The order must contain every inspected
// table exactly once, and when a table is placed every inspected table that
// references it must already be placed, unless that edge is in cycles.
func Check(m *Map, cycles EdgeSet, order []string) error {
	seen := make(set, len(order))
	dup := make(set)
	var extra []string
	for _, t := range order {
		if _, ok := seen[t]; ok {
			dup[t] = struct{}{}
			continue
		}
		seen[t] = struct{}{}
		if !m.Has(t) {
			extra = append(extra, t)
		}
	}
	var missing []string
	for _, t := range m.tables {
		if _, ok := seen[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 || len(extra) > 0 || len(dup) > 0 {
		verr := &VerificationError{Missing: missing, Extra: extra}
		if len(dup) > 0 {
			verr.Duplicates = dup.sorted()
		}
		return verr
	}

	placed := make(set, len(order))
	for _, t := range order {
		for _, d := range m.DependedBy(t) {
			if !m.Has(d) || cycles.Has(d, t) {
				continue
			}
			if _, ok := placed[d]; !ok {
				return &VerificationError{Table: t, Dependent: d}
			}
		}
		placed[t] = struct{}{}
	}
	return nil
}

// Verify is Check reduced to a boolean. Failures are logged through the
// default logger.
func Verify(m *Map, cycles EdgeSet, order []string) bool {
	err := Check(m, cycles, order)
	if err == nil {
		return true
	}
	slog.Default().Warn("truncation order verification failed", "error", err)
	return false
}
