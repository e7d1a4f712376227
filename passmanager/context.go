package passmanager

import (
	"fmt"
	"io"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
)

// A Context is the handle a pass run uses to query analyses and to
// report the changes it made. Module passes get a context without a
// function.
//
// Contexts nest: a function pass may open a nested context on another
// function, for example to simplify a callee before inlining it.
// Nested contexts must be closed in reverse order of opening.
type Context struct {
	pm       *PassManager
	pass     string
	function *ir.Function
	parent   *Context
	nested   *Context

	changes             analysis.InvalidationKind
	needFixStackNesting bool
}

// Module returns the module being optimized.
func (c *Context) Module() *ir.Module { return c.pm.module }

// Function returns the function being transformed, or nil in a module
// pass.
func (c *Context) Function() *ir.Function { return c.function }

// PassName returns the name of the running pass.
func (c *Context) PassName() string { return c.pass }

// PassManager returns the pass manager running the pass.
func (c *Context) PassManager() *PassManager { return c.pm }

// Parent returns the context that opened c, or nil.
func (c *Context) Parent() *Context { return c.parent }

// Logger returns the logger for the running pass.
func (c *Context) Logger() *logging.Logger { return c.pm.logger.WithField("pass", c.pass) }

// Output returns the writer printing passes write to.
func (c *Context) Output() io.Writer { return c.pm.opts.Output }

// Stage returns the compilation stage of the module.
func (c *Context) Stage() ir.Stage { return c.pm.module.Stage }

// HadError reports whether an error diagnostic has been emitted.
func (c *Context) HadError() bool { return c.pm.module.Diagnostics.HadError() }

// IsTransforming reports whether f is the function of c.
func (c *Context) IsTransforming(f *ir.Function) bool {
	return f != nil && c.function == f
}

// CalleeAnalysis returns the shared callee analysis.
func (c *Context) CalleeAnalysis() *analysis.BasicCallee { return c.pm.calleeAnalysis }

func (c *Context) requireFunction(what string) *ir.Function {
	if c.function == nil {
		panic(fmt.Sprintf("passmanager: %s requested from module pass %s", what, c.pass))
	}
	return c.function
}

// DeadEndBlocks returns the dead-end blocks of the current function.
func (c *Context) DeadEndBlocks() *analysis.DeadEndBlocks {
	return c.pm.deadEndBlocks.Get(c.requireFunction("dead-end blocks"))
}

// DomTree returns the dominator tree of the current function.
func (c *Context) DomTree() *analysis.DomTree {
	return c.pm.dominance.Get(c.requireFunction("dominator tree"))
}

// PostDomTree returns the post-dominator tree of the current function.
func (c *Context) PostDomTree() *analysis.DomTree {
	return c.pm.postDominance.Get(c.requireFunction("post-dominator tree"))
}

// NotifyChanges records that the pass changed the current function (or
// the module, in a module pass). Analyses are invalidated when the
// context ends.
func (c *Context) NotifyChanges(kind analysis.InvalidationKind) {
	c.changes |= kind
}

// Changes returns the change kinds reported so far.
func (c *Context) Changes() analysis.InvalidationKind { return c.changes }

// NotifyDependencyOnBodyOf records that the result of the pass depends
// on the body of f, so the pass must run again even if it changed
// nothing.
func (c *Context) NotifyDependencyOnBodyOf(f *ir.Function) {
	c.pm.dependingOnCalleeBodies = true
	c.pm.logger.Trace("%s depends on the body of %s", c.pass, f.Name)
}

// NotifyInvalidatedStackNesting requests a stack nesting fix when the
// context ends.
func (c *Context) NotifyInvalidatedStackNesting() { c.needFixStackNesting = true }

// NeedFixStackNesting reports whether a stack nesting fix is pending.
func (c *Context) NeedFixStackNesting() bool { return c.needFixStackNesting }

// NotifyFunctionTablesChanged tells analyses that v-tables or witness
// tables changed.
func (c *Context) NotifyFunctionTablesChanged() { c.pm.InvalidateFunctionTables() }

// NotifyAddedFunction tells analyses that f was created.
func (c *Context) NotifyAddedFunction(f *ir.Function) { c.pm.NotifyAddedFunction(f) }

// NotifyWillDeleteFunction tells analyses that f is about to be
// removed.
func (c *Context) NotifyWillDeleteFunction(f *ir.Function) { c.pm.NotifyWillDeleteFunction(f) }

// InvalidateAnalysis immediately invalidates analyses for f. Use it
// from module passes that change individual functions.
func (c *Context) InvalidateAnalysis(f *ir.Function, kind analysis.InvalidationKind) {
	c.pm.InvalidateAnalysis(f, kind)
}

// ContinueWithNextSubpassRun reports whether the pass may perform its
// next individual transformation, at inst. It returns false only when
// bisecting with MaxSubpassesToRun.
func (c *Context) ContinueWithNextSubpassRun(inst ir.Instruction) bool {
	return c.pm.continueWithNextSubpassRun(inst, c.function, c.pass)
}

// InitializeNestedPassContext opens a context on f nested in c. Only
// one nested context may be open per context; it must be closed with
// DeinitializeNestedPassContext.
func (c *Context) InitializeNestedPassContext(f *ir.Function) *Context {
	if c.nested != nil {
		panic(fmt.Sprintf("passmanager: %s already has a nested pass context", c.pass))
	}
	if n := len(c.pm.stack); n == 0 || c.pm.stack[n-1] != c {
		panic(fmt.Sprintf("passmanager: nested pass context opened from inactive context of %s", c.pass))
	}
	child := c.pm.beginTransform(f, c.pass)
	child.parent = c
	c.nested = child
	return child
}

// DeinitializeNestedPassContext closes the nested context of c,
// applying its pending invalidations.
func (c *Context) DeinitializeNestedPassContext() {
	child := c.nested
	if child == nil {
		panic(fmt.Sprintf("passmanager: %s has no nested pass context", c.pass))
	}
	if n := len(c.pm.stack); n == 0 || c.pm.stack[n-1] != child {
		panic(fmt.Sprintf("passmanager: nested pass context of %s closed out of order", c.pass))
	}
	c.nested = nil
	c.pm.endTransform(child)
}

// WithNestedContext runs fn in a context nested on f and closes it
// afterwards.
func (c *Context) WithNestedContext(f *ir.Function, fn func(nested *Context)) {
	nested := c.InitializeNestedPassContext(f)
	defer c.DeinitializeNestedPassContext()
	fn(nested)
}

// AddFunctionToWorklist schedules f to be processed by the running
// function passes.
func (c *Context) AddFunctionToWorklist(f, derivedFrom *ir.Function) {
	c.pm.AddFunctionToWorklist(f, derivedFrom)
}

// LookupFunction returns the function named name without loading it.
func (c *Context) LookupFunction(name string) *ir.Function {
	return c.pm.module.LookupFunction(name)
}

// LoadFunction returns the function named name, materializing its body
// (and, with recursive set, the bodies of its callees) if needed.
func (c *Context) LoadFunction(name string, recursive bool) *ir.Function {
	f := c.pm.module.LookupFunction(name)
	if f == nil {
		return nil
	}
	c.LoadBody(f, recursive)
	return f
}

// LoadBody materializes the body of f if it is an external
// declaration. Failures are reported as diagnostics.
func (c *Context) LoadBody(f *ir.Function, recursive bool) {
	m := c.pm.module
	wasDecl := f.IsExternalDeclaration()
	vtables, witnessTables := len(m.VTables()), len(m.WitnessTables())
	err := m.LoadBody(f, recursive)
	if len(m.VTables()) != vtables || len(m.WitnessTables()) != witnessTables {
		c.pm.InvalidateFunctionTables()
	}
	if err != nil {
		m.Diagnostics.Errorf(f, "%v", err)
		return
	}
	if wasDecl && !f.IsExternalDeclaration() {
		c.pm.NotifyAddedFunction(f)
	}
}
