package depgraph

import (
	"slices"
	"sort"
)

// Resolution is the result of Resolve.
type Resolution struct {
	// Order lists every inspected table exactly once. Each table comes
	// before the tables it references, except across BrokenEdges.
	Order []string

	// BrokenEdges holds the dependencies that had to be ignored to get
	// past a cycle. Truncating along them is only safe with deferred
	// constraints or TRUNCATE ... CASCADE.
	BrokenEdges []Edge

	// SelfReferences lists tables holding a foreign key into themselves.
	SelfReferences []string
}

// HasCycles reports whether any edge had to be broken.
func (r Resolution) HasCycles() bool {
	return len(r.BrokenEdges) > 0
}

// Resolve computes a truncation order for m.
//
// Tables are placed in rounds. Each round takes every table whose
// outstanding dependencies have all been placed. When a round finds none,
// the remaining tables form at least one cycle. One table is then forced
// through, chosen among the cycles that wait on nothing outside themselves:
// the one with the fewest outstanding dependencies, ties going to the
// lexicographically smallest name. Only edges inside a cycle are ever
// broken, so the result passes Check with the edges of FindCycles. The sequence is then reversed so that
// dependents precede their dependencies.
//
// Resolve always terminates and always returns a permutation of m.Tables().
func Resolve(m *Map) Resolution {
	var res Resolution

	outstanding := make(map[string]set, len(m.tables))
	for _, t := range m.tables {
		deps := make(set)
		for d := range m.dependsOn[t] {
			switch {
			case d == t:
				res.SelfReferences = append(res.SelfReferences, t)
			case m.Has(d):
				deps[d] = struct{}{}
			}
		}
		outstanding[t] = deps
	}

	emitted := make([]string, 0, len(m.tables))
	for len(outstanding) > 0 {
		var round []string
		for t, deps := range outstanding {
			if len(deps) == 0 {
				round = append(round, t)
			}
		}

		if len(round) == 0 {
			forced := pickCycleBreaker(outstanding)
			for _, d := range outstanding[forced].sorted() {
				res.BrokenEdges = append(res.BrokenEdges, Edge{From: forced, To: d})
			}
			round = []string{forced}
		}

		sort.Sort(sort.Reverse(sort.StringSlice(round)))
		emitted = append(emitted, round...)

		for _, t := range round {
			delete(outstanding, t)
		}
		for _, deps := range outstanding {
			for _, t := range round {
				delete(deps, t)
			}
		}
	}

	slices.Reverse(emitted)
	res.Order = emitted
	return res
}

// pickCycleBreaker returns the table to force through a stalled round.
// Candidates are the members of strongly connected components of the
// outstanding graph that depend on no table outside their component.
// Such a component always exists when every remaining table still waits.
func pickCycleBreaker(outstanding map[string]set) string {
	t := components(outstanding)

	sink := make([]bool, len(t.size))
	for i := range sink {
		sink[i] = true
	}
	for from, deps := range outstanding {
		for to := range deps {
			if t.comp[from] != t.comp[to] {
				sink[t.comp[from]] = false
			}
		}
	}

	best := ""
	bestCount := -1
	for name, deps := range outstanding {
		if !sink[t.comp[name]] {
			continue
		}
		n := len(deps)
		if bestCount < 0 || n < bestCount || (n == bestCount && name < best) {
			best, bestCount = name, n
		}
	}
	return best
}
