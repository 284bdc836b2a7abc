// Package dag provides the directed graph of resolved libraries.
//
// Nodes are libraries keyed by their full name; an edge A -> B means A
// requires B. The resolver builds one graph per configure run and uses it
// for cycle reporting, and the CLI renders it with
// [github.com/matzehuels/distbuilder/pkg/render/nodelink].
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "libtiff.libtiff"})
//	g.AddNode(dag.Node{ID: "madler.zlib"})
//	g.AddEdge(dag.Edge{From: "libtiff.libtiff", To: "madler.zlib"})
//
//	order, err := g.TopoSort() // [madler.zlib libtiff.libtiff]
//
// Node and edge iteration follows insertion order, so every derived output
// (topological order, DOT text) is deterministic for a given input.
package dag
