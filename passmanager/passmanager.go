// Package passmanager runs pipelines of optimization passes over an
// IR module.
//
// Passes are looked up by name in a Registry and grouped into stages by
// a Plan. Module passes run once; runs of consecutive function passes
// are applied to every function in bottom-up order, so callees are
// optimized before their callers. Each pass run gets a Context through
// which it queries analyses and reports what it changed; analyses are
// invalidated only when the run ends.
package passmanager

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/funcorder"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
)

// ErrDiagnosedErrors is returned by Execute when a pass reported an
// error diagnostic and the pipeline stopped early.
var ErrDiagnosedErrors = errors.New("module has errors")

// Options configure a PassManager.
type Options struct {
	// VerifyAll verifies the module before the pipeline, after every
	// pass and after every stage. A verification failure panics with
	// an *ir.VerifyError.
	VerifyAll bool

	// MaxPassesToRun stops the pipeline after that many pass runs.
	// Zero means no limit.
	MaxPassesToRun int

	// MaxSubpassesToRun limits the sub-pass steps of the last pass run
	// allowed by MaxPassesToRun. Zero means no limit.
	MaxSubpassesToRun int

	// FunctionFilter, if set, restricts function passes to the
	// functions it accepts.
	FunctionFilter func(*ir.Function) bool

	// Output receives the output of printing passes.
	Output io.Writer

	Logger *logging.Logger
}

// A PassManager runs passes over a single module. It is not safe for
// concurrent use.
type PassManager struct {
	module   *ir.Module
	registry *Registry
	opts     Options
	logger   *logging.Logger

	calleeAnalysis *analysis.BasicCallee
	deadEndBlocks  *analysis.DeadEndBlocksAnalysis
	dominance      *analysis.DominanceAnalysis
	postDominance  *analysis.DominanceAnalysis
	analyses       []analysis.Analysis

	worklist  []*ir.Function
	stack     []*Context
	completed map[*ir.Function]map[string]bool

	numPassesRun            int
	numSubpassesRun         int
	dependingOnCalleeBodies bool
}

// New returns a pass manager for m running passes from r.
func New(m *ir.Module, r *Registry, opts Options) *PassManager {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	pm := &PassManager{
		module:         m,
		registry:       r,
		opts:           opts,
		logger:         opts.Logger.WithPrefix("passmanager"),
		calleeAnalysis: analysis.NewBasicCallee(m),
		deadEndBlocks:  analysis.NewDeadEndBlocks(),
		dominance:      analysis.NewDominance(),
		postDominance:  analysis.NewPostDominance(),
		completed:      make(map[*ir.Function]map[string]bool),
	}
	pm.analyses = []analysis.Analysis{pm.calleeAnalysis, pm.deadEndBlocks, pm.dominance, pm.postDominance}
	return pm
}

// Module returns the module being optimized.
func (pm *PassManager) Module() *ir.Module { return pm.module }

// Registry returns the registry passes are looked up in.
func (pm *PassManager) Registry() *Registry { return pm.registry }

// CalleeAnalysis returns the callee analysis shared by all passes.
func (pm *PassManager) CalleeAnalysis() *analysis.BasicCallee { return pm.calleeAnalysis }

// Analyses returns every analysis the pass manager maintains.
func (pm *PassManager) Analyses() []analysis.Analysis { return slices.Clone(pm.analyses) }

// AddAnalysis registers an additional analysis to be invalidated along
// with the built-in ones.
func (pm *PassManager) AddAnalysis(a analysis.Analysis) { pm.analyses = append(pm.analyses, a) }

// NumPassesRun returns how many pass runs have completed.
func (pm *PassManager) NumPassesRun() int { return pm.numPassesRun }

// Execute runs every stage of plan. Unknown pass names are reported
// before anything runs.
func (pm *PassManager) Execute(plan Plan) error {
	if err := plan.Validate(pm.registry); err != nil {
		return err
	}
	if pm.opts.VerifyAll {
		pm.verifyModule("before pipeline")
	}
	for _, stage := range plan.Stages {
		if pm.module.Diagnostics.HadError() {
			return fmt.Errorf("before stage %q: %w", stage.Name, ErrDiagnosedErrors)
		}
		start := time.Now()
		pm.logger.Debug("running stage %s", stage.Name)
		pm.runStage(stage)
		pm.logger.Step("stage "+stage.Name, fmt.Sprintf("%d passes", len(stage.Passes)), time.Since(start).Truncate(time.Millisecond).String())
		if pm.opts.VerifyAll {
			pm.verifyModule("after stage " + stage.Name)
		}
		if pm.module.Diagnostics.HadError() {
			pm.logger.Warning("stopping after stage %s: module has errors", stage.Name)
			return fmt.Errorf("stage %q: %w", stage.Name, ErrDiagnosedErrors)
		}
	}
	return nil
}

func (pm *PassManager) runStage(stage Stage) {
	var group []string
	flush := func() {
		if len(group) > 0 {
			pm.RunFunctionPasses(group...)
			group = nil
		}
	}
	for _, name := range stage.Passes {
		if pm.registry.MustLookup(name).Kind == FunctionKind {
			group = append(group, name)
			continue
		}
		flush()
		pm.RunModulePass(name)
	}
	flush()
}

func (pm *PassManager) limitReached() bool {
	return pm.opts.MaxPassesToRun > 0 && pm.numPassesRun >= pm.opts.MaxPassesToRun
}

func (pm *PassManager) selected(f *ir.Function) bool {
	return pm.opts.FunctionFilter == nil || pm.opts.FunctionFilter(f)
}

// RunModulePass runs the module pass registered under name once.
func (pm *PassManager) RunModulePass(name string) {
	p, ok := pm.registry.modulePasses[name]
	if !ok {
		pm.registry.MustLookup(name)
		panic(fmt.Sprintf("passmanager: %q is not a module pass", name))
	}
	if pm.limitReached() {
		return
	}
	pm.numSubpassesRun = 0
	ctx := pm.beginTransform(nil, name)
	start := time.Now()
	p.RunModule(ctx)
	pm.endTransform(ctx)
	pm.numPassesRun++
	pm.logger.WithField("pass", name).Debug("module pass done in %v", time.Since(start))
	if pm.opts.VerifyAll {
		pm.verifyModule("after " + name)
	}
}

// RunFunctionPasses runs the named function passes over every function
// with a body, callees first. Functions added to the worklist during
// the run are processed before the remaining ones.
func (pm *PassManager) RunFunctionPasses(names ...string) {
	passes := make([]FunctionPass, len(names))
	for i, name := range names {
		p, ok := pm.registry.functionPasses[name]
		if !ok {
			pm.registry.MustLookup(name)
			panic(fmt.Sprintf("passmanager: %q is not a function pass", name))
		}
		passes[i] = p
	}

	order := funcorder.New(pm.module, pm.calleeAnalysis).Functions()
	pm.worklist = pm.worklist[:0]
	for i := len(order) - 1; i >= 0; i-- {
		if f := order[i]; !f.IsExternalDeclaration() && pm.selected(f) {
			pm.worklist = append(pm.worklist, f)
		}
	}

	for len(pm.worklist) > 0 {
		f := pm.worklist[len(pm.worklist)-1]
		pm.worklist = pm.worklist[:len(pm.worklist)-1]
		for i, p := range passes {
			if pm.limitReached() {
				pm.worklist = pm.worklist[:0]
				return
			}
			if f.Module() != pm.module || f.IsExternalDeclaration() {
				break
			}
			pm.runFunctionPass(names[i], p, f)
		}
	}
}

func (pm *PassManager) runFunctionPass(name string, p FunctionPass, f *ir.Function) {
	log := pm.logger.WithField("pass", name)
	if pm.completed[f][name] {
		log.Trace("skipping %s, unchanged since the last run", f.Name)
		return
	}
	pm.numSubpassesRun = 0
	pm.dependingOnCalleeBodies = false

	ctx := pm.beginTransform(f, name)
	start := time.Now()
	p.RunFunction(ctx, f)
	pm.endTransform(ctx)
	pm.numPassesRun++
	log.Debug("ran on %s in %v (changes: %s)", f.Name, time.Since(start), ctx.changes)

	if pm.opts.VerifyAll {
		if err := ir.VerifyFunction(f); err != nil {
			pm.logger.Error("verification failed after %s on %s: %v", name, f.Name, err)
			panic(err)
		}
	}
	if ctx.changes == analysis.Nothing && !pm.dependingOnCalleeBodies {
		if pm.completed[f] == nil {
			pm.completed[f] = make(map[string]bool)
		}
		pm.completed[f][name] = true
	}
}

func (pm *PassManager) verifyModule(when string) {
	if err := ir.Verify(pm.module); err != nil {
		pm.logger.Error("verification failed %s: %v", when, err)
		panic(err)
	}
}

func (pm *PassManager) beginTransform(f *ir.Function, pass string) *Context {
	ctx := &Context{pm: pm, pass: pass, function: f}
	pm.stack = append(pm.stack, ctx)
	return ctx
}

func (pm *PassManager) endTransform(ctx *Context) {
	n := len(pm.stack)
	if n == 0 || pm.stack[n-1] != ctx {
		panic(fmt.Sprintf("passmanager: pass context of %s ended out of order", ctx.pass))
	}
	if ctx.nested != nil {
		panic(fmt.Sprintf("passmanager: pass context of %s ended with an open nested context", ctx.pass))
	}
	pm.stack = pm.stack[:n-1]

	if ctx.function == nil {
		if ctx.changes != analysis.Nothing {
			pm.InvalidateAllAnalyses()
		}
		return
	}
	if ctx.needFixStackNesting {
		if ir.FixStackNesting(ctx.function) {
			ctx.changes |= analysis.Instructions
		}
		ctx.needFixStackNesting = false
	}
	if ctx.changes != analysis.Nothing {
		pm.InvalidateAnalysis(ctx.function, ctx.changes)
	}
}

// IsTransforming reports whether f is the function of the innermost
// active pass context.
func (pm *PassManager) IsTransforming(f *ir.Function) bool {
	return pm.CurrentFunction() == f && f != nil
}

// CurrentFunction returns the function of the innermost active pass
// context, or nil.
func (pm *PassManager) CurrentFunction() *ir.Function {
	if len(pm.stack) == 0 {
		return nil
	}
	return pm.stack[len(pm.stack)-1].function
}

// TransformStackDepth returns the number of active pass contexts.
func (pm *PassManager) TransformStackDepth() int { return len(pm.stack) }

// InvalidateAnalysis tells every analysis that f changed.
func (pm *PassManager) InvalidateAnalysis(f *ir.Function, kind analysis.InvalidationKind) {
	for _, a := range pm.analyses {
		a.InvalidateFunction(f, kind)
	}
	delete(pm.completed, f)
}

// InvalidateAllAnalyses drops every cached analysis result.
func (pm *PassManager) InvalidateAllAnalyses() {
	for _, a := range pm.analyses {
		a.Invalidate()
	}
	clear(pm.completed)
}

// InvalidateFunctionTables tells every analysis that v-tables or
// witness tables changed.
func (pm *PassManager) InvalidateFunctionTables() {
	for _, a := range pm.analyses {
		a.InvalidateFunctionTables()
	}
	clear(pm.completed)
}

// NotifyAddedFunction tells every analysis that f was created or its
// body materialized.
func (pm *PassManager) NotifyAddedFunction(f *ir.Function) {
	for _, a := range pm.analyses {
		a.NotifyAddedOrModifiedFunction(f)
	}
}

// NotifyWillDeleteFunction tells every analysis that f is about to be
// removed and forgets f.
func (pm *PassManager) NotifyWillDeleteFunction(f *ir.Function) {
	for _, a := range pm.analyses {
		a.NotifyWillDeleteFunction(f)
	}
	delete(pm.completed, f)
	pm.worklist = slices.DeleteFunc(pm.worklist, func(g *ir.Function) bool { return g == f })
}

// AddFunctionToWorklist schedules f for the function passes currently
// running. derivedFrom is the function f was created from, if any.
func (pm *PassManager) AddFunctionToWorklist(f, derivedFrom *ir.Function) {
	if f.IsExternalDeclaration() {
		return
	}
	if !pm.selected(f) && (derivedFrom == nil || !pm.selected(derivedFrom)) {
		return
	}
	if derivedFrom != nil {
		pm.logger.Trace("adding %s (derived from %s) to the worklist", f.Name, derivedFrom.Name)
	}
	delete(pm.completed, f)
	pm.worklist = append(pm.worklist, f)
}

func (pm *PassManager) continueWithNextSubpassRun(inst ir.Instruction, f *ir.Function, pass string) bool {
	sub := pm.numSubpassesRun
	pm.numSubpassesRun++
	if pm.opts.MaxPassesToRun <= 0 || pm.numPassesRun != pm.opts.MaxPassesToRun-1 {
		return true
	}
	if pm.opts.MaxSubpassesToRun <= 0 {
		return true
	}
	if sub == pm.opts.MaxSubpassesToRun-1 {
		where := "module"
		if f != nil {
			where = f.Name
		}
		pm.logger.Info("last sub-pass %d of %s on %s at %T", sub, pass, where, inst)
	}
	return sub < pm.opts.MaxSubpassesToRun
}
