package depgraph

import "sort"

// FindCycles returns every edge that takes part in a cycle. A self
// reference yields (T, T); for longer cycles every edge between two tables
// of the same strongly connected component is reported.
func FindCycles(m *Map) EdgeSet {
	t := components(m.dependsOn)

	cycles := NewEdgeSet()
	for from, tos := range m.dependsOn {
		for to := range tos {
			if from == to || (t.comp[from] == t.comp[to] && t.size[t.comp[from]] > 1) {
				cycles.Add(from, to)
			}
		}
	}
	return cycles
}

// components partitions the nodes of edges into strongly connected
// components. Nodes are visited in name order so ids are deterministic.
func components(edges map[string]set) *tarjan {
	nodes := make([]string, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	t := &tarjan{
		edges:   edges,
		index:   make(map[string]int, len(nodes)),
		lowlink: make(map[string]int, len(nodes)),
		onStack: make(set, len(nodes)),
		comp:    make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		if _, ok := t.index[n]; !ok {
			t.visit(n)
		}
	}
	return t
}

type tarjan struct {
	edges   map[string]set
	next    int
	index   map[string]int
	lowlink map[string]int
	stack   []string
	onStack set
	comp    map[string]int
	size    []int
}

func (t *tarjan) visit(v string) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = struct{}{}

	for _, w := range t.edges[v].sorted() {
		if _, seen := t.index[w]; !seen {
			t.visit(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if _, ok := t.onStack[w]; ok {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}

	id := len(t.size)
	n := 0
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		delete(t.onStack, w)
		t.comp[w] = id
		n++
		if w == v {
			break
		}
	}
	t.size = append(t.size, n)
}
