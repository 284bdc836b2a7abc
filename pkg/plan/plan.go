package plan

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// File names inside a configure build directory.
const (
	PlanFile      = "plan.json"
	TreeFile      = "tree.json"
	ToolchainFile = "toolchain.cmake"
	GraphFile     = "graph.dot"
)

// Entry is one resolved instance in build order.
type Entry struct {
	Library string            `json:"libraryName"`
	Version string            `json:"version"`
	Hash    string            `json:"hash"`
	Options map[string]any    `json:"options"`
	Deps    map[string]string `json:"deps"` // library -> hash
}

// Plan is the persisted output of the configure phase. Entries are ordered
// so that every dependency precedes its dependents.
type Plan struct {
	Session string `json:"session,omitempty"`
	// IgnoreScript records that the hashes leave recipe scripts out. The
	// build phase must hash the same way.
	IgnoreScript bool    `json:"ignoreScriptVersion,omitempty"`
	Entries      []Entry `json:"entries"`
}

// Entry returns the entry for library.
func (p *Plan) Entry(library string) (Entry, bool) {
	for _, e := range p.Entries {
		if e.Library == library {
			return e, true
		}
	}
	return Entry{}, false
}

// Libraries returns the library names in build order.
func (p *Plan) Libraries() []string {
	out := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Library
	}
	return out
}

// Marshal returns the indented JSON encoding of p.
func (p *Plan) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode plan")
	}
	return append(data, '\n'), nil
}

// Load reads plan.json from a build directory.
func Load(buildDir string) (*Plan, error) {
	path := filepath.Join(buildDir, PlanFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "no plan in %s (run configure first)", buildDir)
		}
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read %s", path)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "parse %s", path)
	}
	for i, e := range p.Entries {
		if e.Library == "" || e.Hash == "" {
			return nil, errors.New(errors.ErrCodeConfiguration, "%s: entry %d is incomplete", path, i)
		}
	}
	return &p, nil
}

// TreeNode is the debug view of one instance and its required
// dependencies. Shared dependencies appear once under every dependent.
type TreeNode struct {
	Library string         `json:"libraryName"`
	Version string         `json:"version"`
	Hash    string         `json:"hash"`
	Options map[string]any `json:"options"`
	Deps    []*TreeNode    `json:"deps"`
}

// MarshalTree returns the indented JSON encoding of a tree forest.
func MarshalTree(roots []*TreeNode) ([]byte, error) {
	if roots == nil {
		roots = []*TreeNode{}
	}
	data, err := json.MarshalIndent(roots, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode tree")
	}
	return append(data, '\n'), nil
}
