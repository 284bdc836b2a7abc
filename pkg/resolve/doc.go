// Package resolve implements the configure phase.
//
// [Resolver.Resolve] turns a partial [plan.Request] into a consistent set of
// [instance.Instance] values:
//
//  1. Every requested library becomes a root instance carrying the
//     requested option values and, if pinned, a single candidate version.
//  2. A fixpoint runs in rounds. Each round rebuilds the instances
//     reachable from the roots over currently required edges, forcing the
//     option overrides of the edges that were required in the previous
//     round. It ends when a round requires exactly the edges whose
//     overrides it applied, so an override whose edge went inactive never
//     survives. Rounds that revisit an earlier edge set fail with
//     DEPENDENCY_OPTION_CONFLICT.
//  3. Each instance's candidate versions are the catalogue narrowed by the
//     ranges of its required incoming edges, and the newest is picked.
//  4. Inactive edges are bound to [instance.Absent] placeholders and the
//     instances are flattened, dependencies first.
//
// The result carries the build order, the aggregated toolchain, the debug
// tree, the dependency graph and the rewritten request document. Nothing
// is written to disk here; see [Result.Files].
package resolve
