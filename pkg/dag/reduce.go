package dag

import "slices"

// RemoveEdge deletes the edge from -> to if present.
func (d *DAG) RemoveEdge(from, to string) {
	d.edges = slices.DeleteFunc(d.edges, func(e Edge) bool { return e.From == from && e.To == to })
	d.outgoing[from] = slices.DeleteFunc(d.outgoing[from], func(s string) bool { return s == to })
	d.incoming[to] = slices.DeleteFunc(d.incoming[to], func(s string) bool { return s == from })
}

// TransitiveReduction removes every edge A -> C for which another path
// A -> B -> ... -> C exists. The graph must be acyclic. It returns the
// number of edges removed.
func (d *DAG) TransitiveReduction() int {
	index := make(map[string]int, len(d.order))
	for i, id := range d.order {
		index[id] = i
	}
	adjacency := make([][]int, len(d.order))
	for _, e := range d.edges {
		adjacency[index[e.From]] = append(adjacency[index[e.From]], index[e.To])
	}
	reachable := reachability(adjacency)

	var redundant []Edge
	for _, e := range d.edges {
		src, dst := index[e.From], index[e.To]
		for _, mid := range adjacency[src] {
			if mid != dst && reachable[mid][dst] {
				redundant = append(redundant, e)
				break
			}
		}
	}
	for _, e := range redundant {
		d.RemoveEdge(e.From, e.To)
	}
	return len(redundant)
}

// reachability reports, for every pair (i, j), whether j is reachable
// from i through one or more edges.
func reachability(adjacency [][]int) [][]bool {
	n := len(adjacency)
	reachable := make([][]bool, n)
	for i := range reachable {
		reachable[i] = make([]bool, n)
	}

	var visit func(source, current int)
	visit = func(source, current int) {
		for _, next := range adjacency[current] {
			if !reachable[source][next] {
				reachable[source][next] = true
				visit(source, next)
			}
		}
	}
	for i := range n {
		visit(i, i)
	}
	return reachable
}
