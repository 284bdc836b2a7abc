package dag

import (
	"errors"
	"slices"
	"strings"
)

var (
	// ErrInvalidNodeID is returned by [DAG.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [DAG.AddNode] when a node with the
	// same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [DAG.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [DAG.AddEdge] when the To node
	// does not exist in the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrGraphHasCycle is returned by [DAG.Validate] and [DAG.TopoSort] when
	// a cycle is detected. Use [DAG.FindCycle] to report the offending path.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Metadata stores arbitrary key-value pairs attached to nodes or the graph.
// Metadata maps are never nil after insertion into a DAG.
type Metadata map[string]any

// Node is a library in the resolved dependency graph.
type Node struct {
	ID   string   // Full library name
	Meta Metadata // version, hash, options
}

// Edge points from a dependent to one of its dependencies.
type Edge struct {
	From string
	To   string
	Meta Metadata
}

// DAG is a directed graph of libraries and their required dependencies.
//
// The zero value is not usable; use New. DAG is not safe for concurrent use
// without external synchronization.
type DAG struct {
	nodes    map[string]*Node
	order    []string            // insertion order
	edges    []Edge
	outgoing map[string][]string // nodeID -> dependency IDs
	incoming map[string][]string // nodeID -> dependent IDs
	meta     Metadata
}

// New creates an empty DAG with optional graph-level metadata.
func New(meta Metadata) *DAG {
	if meta == nil {
		meta = Metadata{}
	}
	return &DAG{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		meta:     meta,
	}
}

// Meta returns the graph-level metadata map.
func (d *DAG) Meta() Metadata { return d.meta }

// AddNode adds a node. Returns ErrInvalidNodeID if the ID is empty, or
// ErrDuplicateNodeID if the ID is already present.
func (d *DAG) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := d.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	d.nodes[n.ID] = &n
	d.order = append(d.order, n.ID)
	return nil
}

// AddEdge adds a directed edge between two existing nodes.
// Adding an edge that already exists is a no-op.
func (d *DAG) AddEdge(e Edge) error {
	if _, ok := d.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := d.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if slices.Contains(d.outgoing[e.From], e.To) {
		return nil
	}
	if e.Meta == nil {
		e.Meta = Metadata{}
	}
	d.edges = append(d.edges, e)
	d.outgoing[e.From] = append(d.outgoing[e.From], e.To)
	d.incoming[e.To] = append(d.incoming[e.To], e.From)
	return nil
}

// Nodes returns all nodes in insertion order. The pointers refer to the
// graph's own nodes.
func (d *DAG) Nodes() []*Node {
	nodes := make([]*Node, len(d.order))
	for i, id := range d.order {
		nodes[i] = d.nodes[id]
	}
	return nodes
}

// Edges returns a copy of all edges in insertion order.
func (d *DAG) Edges() []Edge { return slices.Clone(d.edges) }

// NodeCount returns the number of nodes in the graph.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// EdgeCount returns the number of edges in the graph.
func (d *DAG) EdgeCount() int { return len(d.edges) }

// Children returns the dependencies of a node. The returned slice is a
// read-only view.
func (d *DAG) Children(id string) []string { return d.outgoing[id] }

// Parents returns the dependents of a node. The returned slice is a
// read-only view.
func (d *DAG) Parents(id string) []string { return d.incoming[id] }

// OutDegree returns the number of dependencies of the node.
func (d *DAG) OutDegree(id string) int { return len(d.outgoing[id]) }

// InDegree returns the number of dependents of the node.
func (d *DAG) InDegree(id string) int { return len(d.incoming[id]) }

// Node returns the node with the given ID.
func (d *DAG) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Sources returns nodes nothing depends on (the requested roots), in
// insertion order.
func (d *DAG) Sources() []*Node {
	var sources []*Node
	for _, id := range d.order {
		if len(d.incoming[id]) == 0 {
			sources = append(sources, d.nodes[id])
		}
	}
	return sources
}

// Sinks returns nodes without dependencies, in insertion order.
func (d *DAG) Sinks() []*Node {
	var sinks []*Node
	for _, id := range d.order {
		if len(d.outgoing[id]) == 0 {
			sinks = append(sinks, d.nodes[id])
		}
	}
	return sinks
}

// Validate returns ErrGraphHasCycle if the graph is not acyclic.
func (d *DAG) Validate() error {
	if cycle := d.FindCycle(); cycle != nil {
		return ErrGraphHasCycle
	}
	return nil
}

// FindCycle returns one cycle as a path whose first and last element are
// the same node, or nil if the graph is acyclic.
//
// Cycle detection runs in O(N+E) time using depth-first search with
// white/gray/black coloring.
func (d *DAG) FindCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(d.nodes))
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range d.outgoing[id] {
			switch color[child] {
			case white:
				if dfs(child) {
					return true
				}
			case gray:
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range d.order {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// TopoSort returns node IDs with every dependency before its dependents.
// Ties follow insertion order, so the result is deterministic.
func (d *DAG) TopoSort() ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(d.nodes))
	out := make([]string, 0, len(d.nodes))
	var visit func(id string)
	visit = func(id string) {
		if done[id] {
			return
		}
		done[id] = true
		for _, child := range d.outgoing[id] {
			visit(child)
		}
		out = append(out, id)
	}
	for _, id := range d.order {
		visit(id)
	}
	return out, nil
}

// Depths returns the longest distance of every node from a source. Sources
// have depth 0. The graph must be acyclic.
func (d *DAG) Depths() map[string]int {
	depth := make(map[string]int, len(d.nodes))
	order, err := d.TopoSort()
	if err != nil {
		return depth
	}
	// Dependents come after dependencies in order, so walk it backwards.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		for _, child := range d.outgoing[id] {
			if depth[id]+1 > depth[child] {
				depth[child] = depth[id] + 1
			}
		}
	}
	return depth
}

// FormatPath renders a node path as "a -> b -> c".
func FormatPath(path []string) string { return strings.Join(path, " -> ") }

// NodeIDs extracts the ID from each node in a slice.
func NodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
