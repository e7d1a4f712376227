package passes

import (
	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/callee"
	"github.com/picatz/silopt/funcorder"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passmanager"
)

// EliminateDeadFunctions removes every function that cannot be reached
// from a function visible outside the module or from a dispatch table.
func EliminateDeadFunctions(ctx *passmanager.Context) {
	m := ctx.Module()
	bca := ctx.CalleeAnalysis()

	alive := make(map[*ir.Function]bool)
	var work []*ir.Function
	mark := func(f *ir.Function) {
		if f != nil && !alive[f] {
			alive[f] = true
			work = append(work, f)
		}
	}

	for _, f := range m.Functions() {
		if f.Linkage.IsPossiblyUsedExternally(m.WholeModule) {
			mark(f)
		}
	}
	for _, vt := range m.VTables() {
		for _, e := range vt.Entries {
			mark(e.Impl)
		}
	}
	for _, wt := range m.WitnessTables() {
		for _, e := range wt.Entries {
			mark(e.Witness)
		}
	}
	for _, dt := range m.DefaultWitnessTables() {
		for _, e := range dt.Entries {
			mark(e.Witness)
		}
	}

	for len(work) > 0 {
		f := work[len(work)-1]
		work = work[:len(work)-1]
		for inst := range f.Instructions() {
			if ref, ok := inst.(*ir.FunctionRef); ok {
				mark(ref.Func)
			}
		}
		funcorder.ForEachCallee(bca, f, func(_ ir.Instruction, l callee.List) {
			for _, g := range l.Functions() {
				mark(g)
			}
		})
	}

	removed := 0
	for _, f := range m.Functions() {
		if alive[f] {
			continue
		}
		if !ctx.ContinueWithNextSubpassRun(nil) {
			break
		}
		ctx.NotifyWillDeleteFunction(f)
		m.RemoveFunction(f)
		removed++
	}
	if removed > 0 {
		ctx.Logger().Info("removed %d dead functions", removed)
		ctx.NotifyChanges(analysis.Everything)
	}
}
