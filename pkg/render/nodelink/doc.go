// Package nodelink renders resolved dependency graphs as node-link diagrams.
//
// # Usage
//
// Convert a DAG to DOT format, then render to SVG:
//
//	dot := nodelink.ToDOT(g, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// With Detailed set, node labels carry the resolved version, a short
// instance hash and every option value stored in the node metadata. Root
// libraries (those nothing depends on) are drawn with a bold outline.
//
// The generated DOT uses top-to-bottom layout (rankdir=TB) with rounded
// box nodes, dependents above their dependencies.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering, so no Graphviz installation is required.
package nodelink
