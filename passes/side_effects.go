package passes

import (
	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/callee"
	"github.com/picatz/silopt/funcorder"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passmanager"
)

// ComputeSideEffects fills in Function.Effects for every function with
// a body. Components of the call graph are visited callees first and
// iterated to a fixed point.
func ComputeSideEffects(ctx *passmanager.Context) {
	m := ctx.Module()
	bca := ctx.CalleeAnalysis()
	order := funcorder.New(m, bca)

	for _, scc := range order.SCCs() {
		for _, f := range scc {
			if !f.IsExternalDeclaration() {
				f.Effects = &ir.Effects{}
			}
		}
		for changed := true; changed; {
			changed = false
			for _, f := range scc {
				if f.IsExternalDeclaration() {
					continue
				}
				if f.Effects.Union(localEffects(bca, f)) {
					changed = true
				}
			}
		}
	}
	ctx.Logger().Debug("computed effects of %d functions", m.NumFunctions())
}

func localEffects(bca *analysis.BasicCallee, f *ir.Function) ir.Effects {
	var e ir.Effects
	deadEnds := analysis.ComputeDeadEndBlocks(f)
	funcorder.ForEachCallee(bca, f, func(inst ir.Instruction, l callee.List) {
		switch inst.(type) {
		case *ir.StrongRelease, *ir.ReleaseValue, *ir.DestroyValue:
			// releases on the way to a trap never run a deinit that matters
			if deadEnds.IsDeadEnd(inst.Block()) {
				return
			}
			e.Releases = true
		}
		e.Union(calleeEffects(l))
	})
	for inst := range f.Instructions() {
		switch inst := inst.(type) {
		case *ir.Load:
			e.Reads = true
		case *ir.Store:
			e.Writes = true
		case *ir.Opaque:
			e.Reads = e.Reads || inst.MayRead
			e.Writes = e.Writes || inst.MayWrite
		case *ir.Builtin:
			if inst.SideEffects {
				e.Unknown = true
			}
		}
	}
	return e
}

// calleeEffects merges the effects of every callee in l.
func calleeEffects(l callee.List) ir.Effects {
	if l.IsIncomplete() {
		return ir.Effects{Unknown: true}
	}
	var e ir.Effects
	for _, g := range l.Functions() {
		if g.Effects == nil {
			return ir.Effects{Unknown: true}
		}
		e.Union(*g.Effects)
	}
	return e
}

func memoryBehavior(site ir.FullApplySite, observeRetains bool, bca *analysis.BasicCallee) analysis.MemoryBehavior {
	e := calleeEffects(bca.CalleeList(site))
	switch {
	case e.Unknown, e.Releases && observeRetains:
		return analysis.MemoryMayHaveSideEffects
	case e.Reads && e.Writes:
		return analysis.MemoryMayReadWrite
	case e.Writes:
		return analysis.MemoryMayWrite
	case e.Reads:
		return analysis.MemoryMayRead
	}
	return analysis.MemoryNone
}

func isDeinitBarrier(inst ir.Instruction, bca *analysis.BasicCallee) bool {
	var l callee.List
	switch inst := inst.(type) {
	case ir.FullApplySite:
		l = bca.CalleeList(inst)
	case *ir.Builtin:
		closure := inst.RunOnceClosure()
		if closure == nil {
			return analysis.MayBeDeinitBarrierNotConsideringSideEffects(inst)
		}
		l = bca.CalleeListOfValue(closure)
	default:
		return analysis.MayBeDeinitBarrierNotConsideringSideEffects(inst)
	}
	e := calleeEffects(l)
	return e.Unknown || e.Reads || e.Writes || e.Releases
}
