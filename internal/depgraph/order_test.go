package depgraph_test

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/phrazzld/scry-dbreset/internal/depgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func position(t *testing.T, order []string, table string) int {
	t.Helper()
	i := slices.Index(order, table)
	require.GreaterOrEqual(t, i, 0, "table %s missing from order %v", table, order)
	return i
}

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("linear chain", func(t *testing.T) {
		t.Parallel()
		m := depgraph.Build([]string{"c", "b", "a"}, map[string][]string{
			"a": {"b"},
			"b": {"c"},
		})

		res := depgraph.Resolve(m)

		assert.Equal(t, []string{"a", "b", "c"}, res.Order)
		assert.False(t, res.HasCycles())
		assert.Empty(t, res.SelfReferences)
	})

	t.Run("diamond", func(t *testing.T) {
		t.Parallel()
		m := depgraph.Build([]string{"a", "b", "c", "d"}, map[string][]string{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
		})

		res := depgraph.Resolve(m)

		order := res.Order
		assert.Less(t, position(t, order, "a"), position(t, order, "b"))
		assert.Less(t, position(t, order, "a"), position(t, order, "c"))
		assert.Greater(t, position(t, order, "d"), position(t, order, "b"))
		assert.Greater(t, position(t, order, "d"), position(t, order, "c"))
		assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	})

	t.Run("three table cycle", func(t *testing.T) {
		t.Parallel()
		m := depgraph.Build([]string{"a", "b", "c"}, map[string][]string{
			"a": {"b"},
			"b": {"c"},
			"c": {"a"},
		})

		res := depgraph.Resolve(m)

		assert.ElementsMatch(t, []string{"a", "b", "c"}, res.Order)
		assert.Equal(t, []string{"b", "c", "a"}, res.Order)
		assert.True(t, res.HasCycles())
		assert.Equal(t, []depgraph.Edge{{From: "a", To: "b"}}, res.BrokenEdges)

		assert.False(t, depgraph.Verify(m, nil, res.Order))
		assert.True(t, depgraph.Verify(m, depgraph.FindCycles(m), res.Order))
	})

	t.Run("cycle breaker prefers fewest outstanding dependencies", func(t *testing.T) {
		t.Parallel()
		// a has two outstanding dependencies, b and c one each.
		m := depgraph.Build([]string{"a", "b", "c"}, map[string][]string{
			"a": {"b", "c"},
			"b": {"a"},
			"c": {"a"},
		})

		res := depgraph.Resolve(m)

		assert.Equal(t, []depgraph.Edge{{From: "b", To: "a"}, {From: "a", To: "c"}}, res.BrokenEdges)
		assert.Equal(t, []string{"c", "a", "b"}, res.Order)
	})

	t.Run("chain feeding a cycle keeps its edges", func(t *testing.T) {
		t.Parallel()
		m := depgraph.Build([]string{"a", "b", "y", "z"}, map[string][]string{
			"a": {"b"},
			"b": {"y"},
			"y": {"z"},
			"z": {"y"},
		})

		res := depgraph.Resolve(m)

		assert.Equal(t, []string{"a", "b", "z", "y"}, res.Order)
		assert.Equal(t, []depgraph.Edge{{From: "y", To: "z"}}, res.BrokenEdges)
		assert.NoError(t, depgraph.Check(m, depgraph.FindCycles(m), res.Order))
	})

	t.Run("cycle depending on a chain", func(t *testing.T) {
		t.Parallel()
		// The cycle members wait on d, which is in no cycle.
		m := depgraph.Build([]string{"d", "p", "q"}, map[string][]string{
			"p": {"q", "d"},
			"q": {"p"},
		})

		res := depgraph.Resolve(m)

		assert.Equal(t, []depgraph.Edge{{From: "p", To: "q"}}, res.BrokenEdges)
		assert.Equal(t, []string{"q", "p", "d"}, res.Order)
		assert.NoError(t, depgraph.Check(m, depgraph.FindCycles(m), res.Order))
	})

	t.Run("self reference does not block", func(t *testing.T) {
		t.Parallel()
		m := depgraph.Build([]string{"comments", "posts"}, map[string][]string{
			"comments": {"comments", "posts"},
		})

		res := depgraph.Resolve(m)

		assert.Equal(t, []string{"comments", "posts"}, res.Order)
		assert.Equal(t, []string{"comments"}, res.SelfReferences)
		assert.False(t, res.HasCycles())
	})

	t.Run("external references are ignored", func(t *testing.T) {
		t.Parallel()
		m := depgraph.Build([]string{"events"}, map[string][]string{
			"events":  {"pg_roles"},
			"archive": {"events"},
		})

		res := depgraph.Resolve(m)

		assert.Equal(t, []string{"events"}, res.Order)
		assert.True(t, depgraph.Verify(m, nil, res.Order))
	})

	t.Run("empty map", func(t *testing.T) {
		t.Parallel()
		res := depgraph.Resolve(depgraph.Build(nil, nil))

		assert.Empty(t, res.Order)
		assert.False(t, res.HasCycles())
	})
}

func randomTables(n int) []string {
	tables := make([]string, n)
	for i := range tables {
		tables[i] = fmt.Sprintf("t%02d", i)
	}
	return tables
}

func TestResolveReturnsPermutation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		tables := randomTables(1 + rng.Intn(15))
		refs := make(map[string][]string)
		for _, from := range tables {
			for _, to := range tables {
				if rng.Float64() < 0.2 {
					refs[from] = append(refs[from], to)
				}
			}
		}
		m := depgraph.Build(tables, refs)

		first := depgraph.Resolve(m)
		second := depgraph.Resolve(m)

		require.ElementsMatch(t, tables, first.Order)
		require.Len(t, first.Order, len(tables))
		require.Equal(t, first, second, "resolution must be deterministic")
	}
}

func TestResolveAcyclicVerifies(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		tables := randomTables(1 + rng.Intn(20))
		refs := make(map[string][]string)
		// Referencing only lower indexes keeps the graph acyclic.
		for j, from := range tables {
			for k := 0; k < j; k++ {
				if rng.Float64() < 0.3 {
					refs[from] = append(refs[from], tables[k])
				}
			}
		}
		m := depgraph.Build(tables, refs)

		res := depgraph.Resolve(m)

		require.False(t, res.HasCycles())
		require.Zero(t, depgraph.FindCycles(m).Len())
		require.NoError(t, depgraph.Check(m, nil, res.Order))
	}
}

func TestResolveBreaksOnlyCycleEdges(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 300; i++ {
		tables := randomTables(1 + rng.Intn(15))
		refs := make(map[string][]string)
		for _, from := range tables {
			for _, to := range tables {
				if rng.Float64() < 0.15 {
					refs[from] = append(refs[from], to)
				}
			}
		}
		m := depgraph.Build(tables, refs)
		cycles := depgraph.FindCycles(m)

		res := depgraph.Resolve(m)

		for _, e := range res.BrokenEdges {
			require.True(t, cycles.Has(e.From, e.To), "broken edge %s is in no cycle", e)
		}
		require.NoError(t, depgraph.Check(m, cycles, res.Order))
	}
}
