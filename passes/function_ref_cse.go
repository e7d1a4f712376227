package passes

import (
	"slices"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passmanager"
)

// FunctionRefCSE replaces each function_ref with an earlier, dominating
// function_ref of the same function.
func FunctionRefCSE(ctx *passmanager.Context, f *ir.Function) {
	dom := ctx.DomTree()
	available := make(map[*ir.Function][]*ir.FunctionRef)
	removed := 0

	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		for _, inst := range slices.Clone(b.Instrs) {
			ref, ok := inst.(*ir.FunctionRef)
			if !ok {
				continue
			}
			replaced := false
			for _, prev := range available[ref.Func] {
				if !dom.InstructionDominates(prev, ref) {
					continue
				}
				if !ctx.ContinueWithNextSubpassRun(ref) {
					return
				}
				ir.ReplaceAllUsesWith(f, ref, prev)
				b.Remove(ref)
				removed++
				replaced = true
				break
			}
			if !replaced {
				available[ref.Func] = append(available[ref.Func], ref)
			}
		}
		for _, c := range dom.Children(b) {
			visit(c)
		}
	}
	for _, root := range dom.Roots() {
		visit(root)
	}

	if removed > 0 {
		ctx.Logger().Debug("removed %d redundant function_ref instructions in %s", removed, f.Name)
		ctx.NotifyChanges(analysis.Instructions)
	}
}
