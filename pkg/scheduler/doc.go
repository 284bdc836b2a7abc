// Package scheduler runs the build phase.
//
// The scheduler reads the plan written by configure, reconstructs one
// instance per entry and checks that its hash still matches. Any
// difference means a recipe, its catalogue or the option values changed
// since configure ran, and the whole run stops with STALE_CONFIGURATION.
//
// Instances are then built in plan order, dependencies first. An instance
// whose install directory already holds info.json is a cache hit and is
// skipped. Otherwise its build directory receives info.json, a
// toolchain.cmake generated from the exports of its required dependencies
// and a build.log capturing every message of the build, and the recipe's
// build procedure runs against a [recipe.Workspace] bound to the instance.
// info.json is copied into the install directory only after the build
// succeeds, so a failed build never poisons the cache.
//
// The first failure aborts the run. Instances built before it stay cached.
//
// Workspace helpers resolve relative paths against the instance build
// directory and hand absolute paths to external tools. The process working
// directory is never changed.
package scheduler
