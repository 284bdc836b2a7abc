package resolve

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/distbuilder/pkg/dag"
	"github.com/matzehuels/distbuilder/pkg/errors"
	"github.com/matzehuels/distbuilder/pkg/instance"
	"github.com/matzehuels/distbuilder/pkg/observability"
	"github.com/matzehuels/distbuilder/pkg/option"
	"github.com/matzehuels/distbuilder/pkg/plan"
	"github.com/matzehuels/distbuilder/pkg/recipe"
	"github.com/matzehuels/distbuilder/pkg/render/nodelink"
	"github.com/matzehuels/distbuilder/pkg/toolchain"
	"github.com/matzehuels/distbuilder/pkg/version"
)

// Config holds the Resolver's collaborators.
type Config struct {
	Registry *recipe.Registry
	Layout   instance.Layout
	// IgnoreScript leaves recipe scripts out of instance hashes.
	IgnoreScript bool
	// SessionID is recorded in the plan.
	SessionID string
	Logger    *log.Logger
	Hooks     observability.ResolveHooks
}

// Resolver runs the configure phase. A Resolver holds no state between
// calls to Resolve.
type Resolver struct {
	cfg Config
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = observability.NoopResolveHooks{}
	}
	return &Resolver{cfg: cfg}
}

// Result is the outcome of a successful Resolve.
type Result struct {
	// Roots are the requested instances in request order.
	Roots []*instance.Instance
	// Instances is every required instance, dependencies before dependents.
	Instances []*instance.Instance
	Toolchain *toolchain.Sink
	Plan      *plan.Plan
	Tree      []*plan.TreeNode
	Graph     *dag.DAG
	// Request is the input rewritten with every decided version and option.
	Request plan.Request
}

// edgeRef names one dependency edge by its owner and spec index.
type edgeRef struct {
	from   string
	edge   int
	target string
}

func (e edgeRef) String() string { return e.from + " -> " + e.target }

func compareEdges(a, b edgeRef) int {
	if c := cmp.Compare(a.from, b.from); c != 0 {
		return c
	}
	return cmp.Compare(a.edge, b.edge)
}

type node struct {
	inst *instance.Instance
	key  string // request key for roots
	root bool
	base version.Set
}

func (n *node) library() string { return n.inst.Library() }

// state is the working set of one Resolve call. Nodes are rebuilt on
// every round of the fixpoint.
type state struct {
	r     *Resolver
	req   plan.Request
	nodes map[string]*node
	order []*node // discovery order
	roots []*node
	live  []edgeRef // required edges of the last round, sorted
	errs  []error   // deferred failures of the last round
}

// Resolve runs the configure phase for req.
func (r *Resolver) Resolve(ctx context.Context, req plan.Request) (res *Result, err error) {
	start := time.Now()
	r.cfg.Hooks.OnResolveStart(ctx, req.Libraries())
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Instances)
		}
		r.cfg.Hooks.OnResolveComplete(ctx, n, time.Since(start), err)
	}()

	if len(req) == 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "request names no libraries")
	}

	s := &state{r: r, req: req}
	if err := s.fixpoint(ctx); err != nil {
		return nil, err
	}
	if err := s.decideVersions(); err != nil {
		return nil, err
	}
	s.bind()
	return s.finish()
}

func (s *state) newInstance(rec *recipe.Recipe) (*instance.Instance, error) {
	var opts []instance.Option
	if s.r.cfg.IgnoreScript {
		opts = append(opts, instance.IgnoreScript())
	}
	return instance.New(rec, s.r.cfg.Layout, opts...)
}

// fixpoint rebuilds the instance graph until the set of required edges
// stops changing. Each round starts from fresh instances carrying only
// the requested option values, then applies the overrides of the edges
// that were required in the previous round. Overrides of edges that went
// inactive are thereby retracted, and the outcome does not depend on the
// order in which libraries are discovered.
func (s *state) fixpoint(ctx context.Context) error {
	var applied []edgeRef
	seen := map[string]bool{}
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[signature(applied)] = true
		if err := s.round(applied); err != nil {
			return err
		}
		if slices.Equal(s.live, applied) {
			s.r.cfg.Logger.Debug("fixpoint converged", "passes", pass, "libraries", len(s.order))
			if len(s.errs) > 0 {
				return s.errs[0]
			}
			return nil
		}
		if seen[signature(s.live)] {
			return errors.New(errors.ErrCodeDependencyOptionConflict,
				"option overrides never settle; edges toggling: %s", toggling(applied, s.live))
		}
		s.r.cfg.Logger.Debug("fixpoint round", "pass", pass, "edges", len(s.live), "toggling", toggling(applied, s.live))
		applied = s.live
	}
}

func signature(edges []edgeRef) string {
	var b strings.Builder
	for _, e := range edges {
		fmt.Fprintf(&b, "%s#%d;", e.from, e.edge)
	}
	return b.String()
}

// toggling lists the edges present in exactly one of a and b.
func toggling(a, b []edgeRef) string {
	var out []string
	for _, e := range a {
		if !slices.Contains(b, e) {
			out = append(out, e.String())
		}
	}
	for _, e := range b {
		if !slices.Contains(a, e) {
			out = append(out, e.String())
		}
	}
	return strings.Join(out, ", ")
}

// round builds the graph reachable from the roots over required edges,
// forcing the overrides of applied on the instances it creates. Failures
// that depend on which edges are required are deferred to s.errs.
func (s *state) round(applied []edgeRef) error {
	s.nodes = map[string]*node{}
	s.order, s.roots, s.live, s.errs = nil, nil, nil, nil

	forcing := map[string][]edgeRef{}
	for _, e := range applied {
		forcing[e.target] = append(forcing[e.target], e)
	}

	if err := s.seed(); err != nil {
		return err
	}
	queue := slices.Clone(s.roots)
	for _, n := range s.roots {
		s.force(n, forcing[n.library()])
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for k, e := range n.inst.Edges() {
			if err := e.Spec.Validate(n.inst.Options()); err != nil {
				s.errs = append(s.errs, errors.Wrap(errors.ErrCodeConfiguration, err, "%s", n.library()))
				continue
			}
			if !n.inst.IsRequired(k) {
				continue
			}
			rec, err := s.r.cfg.Registry.Lookup(e.Spec.Library)
			if err != nil {
				code := errors.GetCode(err)
				if code == "" {
					code = errors.ErrCodeInternal
				}
				s.errs = append(s.errs, errors.Wrap(code, err, "%s depends on %s", n.library(), e.Spec.Library))
				continue
			}
			if rec.Name == n.library() {
				s.errs = append(s.errs, errors.New(errors.ErrCodeConfiguration, "%s depends on itself", n.library()))
				continue
			}
			s.live = append(s.live, edgeRef{from: n.library(), edge: k, target: rec.Name})

			if _, ok := s.nodes[rec.Name]; ok {
				continue
			}
			target, err := s.add(rec)
			if err != nil {
				return err
			}
			s.force(target, forcing[rec.Name])
			queue = append(queue, target)
		}
	}
	slices.SortFunc(s.live, compareEdges)
	return nil
}

func (s *state) add(rec *recipe.Recipe) (*node, error) {
	inst, err := s.newInstance(rec)
	if err != nil {
		return nil, err
	}
	n := &node{inst: inst, base: rec.Versions()}
	s.nodes[rec.Name] = n
	s.order = append(s.order, n)
	return n, nil
}

func (s *state) seed() error {
	for _, key := range s.req.Libraries() {
		entry := s.req[key]
		rec, err := s.r.cfg.Registry.Lookup(key)
		if err != nil {
			return err
		}
		if prev, ok := s.nodes[rec.Name]; ok {
			return errors.New(errors.ErrCodeConfiguration, "%s is requested twice (as %q and %q)", rec.Name, prev.key, key)
		}
		n, err := s.add(rec)
		if err != nil {
			return err
		}
		n.root, n.key = true, key
		s.roots = append(s.roots, n)

		if err := n.inst.SetOptions(entry.Options); err != nil {
			return err
		}
		if entry.Version != "" {
			v, err := version.Parse(entry.Version)
			if err != nil {
				return errors.Wrap(errors.ErrCodeConfiguration, err, "request %s", key)
			}
			if _, ok := rec.Catalogue[v]; !ok {
				return errors.New(errors.ErrCodeNoAvailableVersion, "%s has no version %s (catalogue %s)", rec.Name, v, n.base)
			}
			n.base = version.NewSet(v)
		}
	}
	return nil
}

// force applies the overrides of edges, in owner order, onto n. A
// conflicting override is skipped and reported in s.errs.
func (s *state) force(n *node, edges []edgeRef) {
	for _, e := range edges {
		owner, err := s.r.cfg.Registry.Lookup(e.from)
		if err != nil {
			s.errs = append(s.errs, err)
			continue
		}
		spec := owner.Dependencies[e.edge]
		forced, err := n.inst.ApplyOverrides(e.from, spec.Overrides)
		if err != nil {
			s.errs = append(s.errs, err)
			continue
		}
		if len(forced) > 0 {
			s.r.cfg.Logger.Debug("forced options", "library", n.library(), "by", e.from, "keys", forced)
		}
	}
}

// target returns the node a required edge points at.
func (s *state) target(e *instance.Edge) *node {
	rec, err := s.r.cfg.Registry.Lookup(e.Spec.Library)
	if err != nil {
		return nil
	}
	return s.nodes[rec.Name]
}

// decideVersions picks the newest version each node admits under the
// ranges of its required incoming edges, walking depth-first from the
// roots.
func (s *state) decideVersions() error {
	ranges := map[*node][]version.Range{}
	for _, n := range s.order {
		for k, e := range n.inst.Edges() {
			if !n.inst.IsRequired(k) {
				continue
			}
			t := s.target(e)
			if _, err := e.Spec.Candidates(t.inst.Recipe()); err != nil {
				return errors.Wrap(errors.ErrCodeDependencyNotFound, err, "%s", n.library())
			}
			ranges[t] = append(ranges[t], e.Spec.Range)
		}
	}

	visited := map[*node]bool{}
	var visit func(n *node) error
	visit = func(n *node) error {
		if visited[n] {
			return nil
		}
		visited[n] = true

		avail := n.base
		for _, rg := range ranges[n] {
			avail = avail.Filter(rg)
		}
		v, ok := avail.Max()
		if !ok {
			return errors.New(errors.ErrCodeNoAvailableVersion, "no version of %s satisfies every dependent (catalogue %s)", n.library(), n.base)
		}
		if err := n.inst.SetVersion(v); err != nil {
			return err
		}
		s.r.cfg.Logger.Debug("decided version", "library", n.library(), "version", v, "available", avail)

		for k, e := range n.inst.Edges() {
			if !n.inst.IsRequired(k) {
				continue
			}
			if err := visit(s.target(e)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range s.roots {
		if err := visit(root); err != nil {
			return err
		}
	}
	return nil
}

// bind points every edge at its target, or at a placeholder when the edge
// is inactive.
func (s *state) bind() {
	for _, n := range s.order {
		for k, e := range n.inst.Edges() {
			if n.inst.IsRequired(k) {
				n.inst.Bind(k, s.target(e).inst)
			} else {
				n.inst.Bind(k, instance.NewAbsent(e.Spec.Library))
			}
		}
		n.inst.Invalidate()
	}
}

// graph builds the dependency graph in discovery order, which lists the
// roots first.
func (s *state) graph() *dag.DAG {
	g := dag.New(nil)
	for _, n := range s.order {
		_ = g.AddNode(dag.Node{ID: n.library()})
	}
	for _, n := range s.order {
		for _, dep := range n.inst.RequiredDeps() {
			_ = g.AddEdge(dag.Edge{From: n.library(), To: dep.Library()})
		}
	}
	return g
}

func (s *state) finish() (*Result, error) {
	g := s.graph()
	if cycle := g.FindCycle(); cycle != nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "dependency cycle: %s", dag.FormatPath(cycle))
	}
	order, err := g.TopoSort()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "sort dependencies")
	}

	res := &Result{
		Toolchain: toolchain.New(),
		Plan:      &plan.Plan{Session: s.r.cfg.SessionID, IgnoreScript: s.r.cfg.IgnoreScript},
		Graph:     g,
		Request:   plan.Request{},
	}
	for _, id := range order {
		inst := s.nodes[id].inst
		h, err := inst.Hash()
		if err != nil {
			return nil, err
		}
		if err := inst.Export(res.Toolchain); err != nil {
			return nil, err
		}
		deps := map[string]string{}
		for _, dep := range inst.RequiredDeps() {
			deps[dep.Library()], _ = dep.Hash()
		}
		res.Instances = append(res.Instances, inst)
		res.Plan.Entries = append(res.Plan.Entries, plan.Entry{
			Library: id,
			Version: inst.Version().String(),
			Hash:    h,
			Options: inst.OptionSet().Values(),
			Deps:    deps,
		})

		gn, _ := g.Node(id)
		gn.Meta[nodelink.MetaVersion] = inst.Version().String()
		gn.Meta[nodelink.MetaHash] = h
		gn.Meta[nodelink.MetaOptions] = rendered(inst.OptionSet())
		s.r.cfg.Logger.Info("resolved", "library", id, "version", inst.Version(), "hash", h[:12])
	}

	for _, n := range s.roots {
		res.Roots = append(res.Roots, n.inst)
		res.Tree = append(res.Tree, treeOf(n.inst))
		res.Request[n.key] = plan.RequestEntry{
			Version: n.inst.Version().String(),
			Options: n.inst.OptionSet().Values(),
		}
	}
	return res, nil
}

func rendered(set *option.Set) map[string]string {
	out := make(map[string]string, len(set.Keys()))
	for _, k := range set.Keys() {
		out[k] = set.Render(k)
	}
	return out
}

func treeOf(inst *instance.Instance) *plan.TreeNode {
	h, _ := inst.Hash()
	t := &plan.TreeNode{
		Library: inst.Library(),
		Version: inst.Version().String(),
		Hash:    h,
		Options: inst.OptionSet().Values(),
		Deps:    []*plan.TreeNode{},
	}
	for _, dep := range inst.RequiredDeps() {
		t.Deps = append(t.Deps, treeOf(dep))
	}
	return t
}
