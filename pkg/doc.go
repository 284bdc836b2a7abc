// Package pkg provides the libraries behind distbuilder, a source-based
// dependency manager for native C/C++ libraries.
//
// # Overview
//
// distbuilder reads a request naming root libraries with optional version
// pins and build options, resolves every transitive dependency to one
// concrete configuration, and builds each library from a downloaded
// source archive into a content-addressed install directory. The work is
// split into two phases:
//
//	request.json / request.toml
//	         ↓
//	    [resolve] (configure: fixpoint over recipes, options, versions)
//	         ↓
//	    plan.json, tree.json, toolchain.cmake, graph.dot
//	         ↓
//	    [scheduler] (build: download, extract, patch, cmake)
//	         ↓
//	    <install>/<library>/<hash>/info.json
//
// # Main Packages
//
// ## Model
//
// [version] - Four-component versions and inclusive ranges.
//
// [option] - Typed option descriptors and option sets with defaults,
// explicit assignments and fingerprints.
//
// [recipe] - The recipe model and registry: versions, dependency specs,
// options, archive sources and build procedures.
//
// [recipe/hclrecipe] - Loads recipe.hcl files from recipe directories.
//
// [instance] - A recipe bound to a version and option set, with the
// configuration hash that names its install directory.
//
// ## Configure and Build
//
// [resolve] - The resolver fixpoint that turns a request into a plan.
//
// [plan] - Request parsing, plan files and their atomic write.
//
// [toolchain] - The generated CMake toolchain file.
//
// [scheduler] - Builds a plan in order, skipping cached instances and
// detecting stale configuration.
//
// ## Infrastructure
//
// [blob] - Download cache for source archives with signature checks.
//
// [archive] - Extraction of zip and tar archives.
//
// [patch] - Unified diff creation and application.
//
// [process] - External process execution with output decoding.
//
// [config] - Preference file, environment and default directory layout.
//
// [session] - Wires configuration, recipes, caches and runners for one
// CLI invocation.
//
// [observability] - Structured event hooks for downloads and builds.
//
// ## Output
//
// [dag] - The dependency graph of resolved libraries.
//
// [render/nodelink] - Graphviz DOT and SVG rendering of the graph.
//
// [errors] - Error codes shared by every package.
//
// [version]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/version
// [option]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/option
// [recipe]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/recipe
// [recipe/hclrecipe]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/recipe/hclrecipe
// [instance]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/instance
// [resolve]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/resolve
// [plan]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/plan
// [toolchain]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/toolchain
// [scheduler]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/scheduler
// [blob]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/blob
// [archive]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/archive
// [patch]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/patch
// [process]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/process
// [config]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/config
// [session]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/session
// [observability]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/observability
// [dag]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/dag
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/render/nodelink
// [errors]: https://pkg.go.dev/github.com/matzehuels/distbuilder/pkg/errors
package pkg
