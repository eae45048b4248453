package depgraph

import (
	"context"
	"fmt"
	"slices"
	"sort"
)

// DefaultExclude lists the tables Load skips when no exclusions are given.
var DefaultExclude = []string{"schema_migrations", "goose_db_version"}

// Edge is a directed dependency: From holds a foreign key into To.
type Edge struct {
	From string
	To   string
}

func (e Edge) String() string {
	return e.From + " -> " + e.To
}

// EdgeSet is a set of edges. The zero value is not usable; use NewEdgeSet.
type EdgeSet map[Edge]struct{}

// NewEdgeSet returns a set holding edges.
func NewEdgeSet(edges ...Edge) EdgeSet {
	s := make(EdgeSet, len(edges))
	for _, e := range edges {
		s[e] = struct{}{}
	}
	return s
}

// Add inserts the edge from -> to.
func (s EdgeSet) Add(from, to string) {
	s[Edge{From: from, To: to}] = struct{}{}
}

// Has reports whether from -> to is in the set. A nil set is empty.
func (s EdgeSet) Has(from, to string) bool {
	_, ok := s[Edge{From: from, To: to}]
	return ok
}

func (s EdgeSet) Len() int {
	return len(s)
}

// Sorted returns the edges ordered by From, then To.
func (s EdgeSet) Sorted() []Edge {
	edges := make([]Edge, 0, len(s))
	for e := range s {
		edges = append(edges, e)
	}
	sortEdges(edges)
	return edges
}

// ForeignKey is a single foreign key constraint as reported by an Introspector.
type ForeignKey struct {
	Name            string
	Table           string
	ReferencedTable string
}

// Introspector reads table and foreign key metadata from a live schema.
type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	ListForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Map is an immutable dependency map. dependsOn and dependedBy are exact
// transposes of each other.
type Map struct {
	tables     []string
	inspected  set
	dependsOn  map[string]set
	dependedBy map[string]set
}

// Build records the given tables and the tables each of them references.
// It never fails: duplicate references collapse to one edge, and references
// to tables outside tables are stored as they are.
func Build(tables []string, references map[string][]string) *Map {
	m := &Map{
		inspected:  make(set, len(tables)),
		dependsOn:  make(map[string]set, len(tables)),
		dependedBy: make(map[string]set, len(tables)),
	}
	for _, t := range tables {
		m.inspected[t] = struct{}{}
		m.ensure(t)
	}
	m.tables = m.inspected.sorted()

	for from, refs := range references {
		m.ensure(from)
		for _, to := range refs {
			m.ensure(to)
			m.dependsOn[from][to] = struct{}{}
			m.dependedBy[to][from] = struct{}{}
		}
	}
	return m
}

func (m *Map) ensure(t string) {
	if _, ok := m.dependsOn[t]; !ok {
		m.dependsOn[t] = make(set)
	}
	if _, ok := m.dependedBy[t]; !ok {
		m.dependedBy[t] = make(set)
	}
}

// Load lists the tables of insp, drops the excluded ones and builds a Map
// from their foreign keys. Without exclusions DefaultExclude applies.
func Load(ctx context.Context, insp Introspector, exclude ...string) (*Map, error) {
	if len(exclude) == 0 {
		exclude = DefaultExclude
	}

	all, err := insp.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]string, 0, len(all))
	references := make(map[string][]string, len(all))
	for _, t := range all {
		if slices.Contains(exclude, t) {
			continue
		}
		tables = append(tables, t)

		fks, err := insp.ListForeignKeys(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to list foreign keys of %s: %w", t, err)
		}
		for _, fk := range fks {
			references[t] = append(references[t], fk.ReferencedTable)
		}
	}

	return Build(tables, references), nil
}

// Tables returns the inspected tables in lexicographic order.
func (m *Map) Tables() []string {
	return slices.Clone(m.tables)
}

// Has reports whether t is one of the inspected tables.
func (m *Map) Has(t string) bool {
	_, ok := m.inspected[t]
	return ok
}

// DependsOn returns the tables t references directly.
func (m *Map) DependsOn(t string) []string {
	return m.dependsOn[t].sorted()
}

// DependedBy returns the tables that reference t directly.
func (m *Map) DependedBy(t string) []string {
	return m.dependedBy[t].sorted()
}

// Edges returns every recorded dependency, including references to
// tables outside the inspected set.
func (m *Map) Edges() []Edge {
	var edges []Edge
	for from, tos := range m.dependsOn {
		for to := range tos {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	sortEdges(edges)
	return edges
}

// Dependents returns every inspected table that depends on t directly or
// transitively, excluding t itself.
func (m *Map) Dependents(t string) []string {
	seen := m.reach([]string{t})
	delete(seen, t)
	return seen.sorted()
}

// Closure returns tables together with all of their inspected dependents.
// Truncating a table requires truncating everything that references it.
func (m *Map) Closure(tables []string) []string {
	return m.reach(tables).sorted()
}

func (m *Map) reach(start []string) set {
	seen := make(set)
	stack := slices.Clone(start)
	for _, t := range start {
		seen[t] = struct{}{}
	}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for d := range m.dependedBy[t] {
			if _, ok := seen[d]; ok || !m.Has(d) {
				continue
			}
			seen[d] = struct{}{}
			stack = append(stack, d)
		}
	}
	return seen
}

// Subgraph returns a Map restricted to the given tables and the edges
// between them.
func (m *Map) Subgraph(tables []string) *Map {
	keep := make(set, len(tables))
	for _, t := range tables {
		keep[t] = struct{}{}
	}
	references := make(map[string][]string)
	for _, from := range tables {
		for to := range m.dependsOn[from] {
			if _, ok := keep[to]; ok {
				references[from] = append(references[from], to)
			}
		}
	}
	return Build(tables, references)
}

// Node describes one table in the output of Graph.
type Node struct {
	DependsOn  []string `json:"depends_on"  yaml:"depends_on"`
	DependedBy []string `json:"depended_by" yaml:"depended_by"`
}

// Graph returns both adjacency lists of every inspected table.
func (m *Map) Graph() map[string]Node {
	g := make(map[string]Node, len(m.tables))
	for _, t := range m.tables {
		g[t] = Node{DependsOn: m.DependsOn(t), DependedBy: m.DependedBy(t)}
	}
	return g
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
}
