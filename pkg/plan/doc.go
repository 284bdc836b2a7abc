// Package plan defines the documents exchanged between the configure and
// build phases.
//
// A configure run reads a [Request] (user-authored, partial) and writes,
// into one build directory:
//
//   - plan.json: the flattened, dependency-ordered [Plan] the build phase
//     consumes and verifies against
//   - tree.json: a debug view of the same instances as a [TreeNode] forest
//   - toolchain.cmake: the aggregated toolchain description
//   - graph.dot: the resolved dependency graph
//
// and rewrites the request document with every inferred version and option
// value filled in. All files of one run are written with [WriteAll], which
// stages every file before renaming any of them into place, so a failing
// run leaves the previous outputs untouched.
package plan
