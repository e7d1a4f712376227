package passes

import (
	"slices"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passmanager"
)

// InlineThreshold is the largest callee, in instructions, the early
// inliner considers.
const InlineThreshold = 12

// EarlyInline inlines direct calls to small single-block functions.
// Callees are devirtualized in a nested context first, so calls they
// make are direct by the time they are copied.
func EarlyInline(ctx *passmanager.Context, f *ir.Function) {
	bca := ctx.CalleeAnalysis()
	changed := false
	for _, b := range f.Blocks {
		for _, inst := range slices.Clone(b.Instrs) {
			apply, ok := inst.(*ir.Apply)
			if !ok || apply.Block() == nil {
				continue
			}
			target, ok := bca.CalleeList(apply).Single()
			if !ok || target == f {
				continue
			}
			if target.IsExternalDeclaration() {
				ctx.LoadBody(target, false)
				if target.IsExternalDeclaration() {
					continue
				}
			}
			ctx.WithNestedContext(target, func(nested *passmanager.Context) {
				if devirtualizeFunction(nested, target) {
					nested.NotifyChanges(analysis.Calls | analysis.Instructions)
				}
			})
			ctx.NotifyDependencyOnBodyOf(target)
			if !canInline(target, apply) {
				continue
			}
			if !ctx.ContinueWithNextSubpassRun(apply) {
				break
			}
			if inlineCall(f, apply, target) {
				ctx.NotifyInvalidatedStackNesting()
			}
			ctx.Logger().Debug("inlined %s into %s", target.Name, f.Name)
			changed = true
		}
	}
	if changed {
		ctx.NotifyChanges(analysis.Calls | analysis.Instructions)
	}
}

func canInline(callee *ir.Function, apply *ir.Apply) bool {
	if len(callee.Blocks) != 1 || callee.NumInstructions() > InlineThreshold {
		return false
	}
	entry := callee.Entry()
	if len(entry.Args) != len(apply.Args) {
		return false
	}
	if _, ok := entry.Terminator().(*ir.Return); !ok {
		return false
	}
	for inst := range callee.Instructions() {
		if ref, ok := inst.(*ir.FunctionRef); ok && ref.Func == callee {
			return false
		}
	}
	return true
}

// inlineCall replaces apply with a copy of the body of callee and
// reports whether stack allocations were copied.
func inlineCall(f *ir.Function, apply *ir.Apply, callee *ir.Function) bool {
	entry := callee.Entry()
	remap := make(map[ir.Value]ir.Value, len(entry.Args))
	for i, a := range entry.Args {
		remap[a] = apply.Args[i]
	}
	lookup := func(v ir.Value) ir.Value {
		if r, ok := remap[v]; ok {
			return r
		}
		return v
	}

	block := apply.Block()
	stack := false
	var result ir.Value
	for _, inst := range entry.Instrs {
		if ret, ok := inst.(*ir.Return); ok {
			if ret.Operand != nil {
				result = lookup(ret.Operand)
			}
			break
		}
		c := ir.Clone(inst, lookup)
		block.InsertBefore(c, apply)
		if v, ok := inst.(ir.Value); ok {
			remap[v] = c.(ir.Value)
		}
		if _, ok := inst.(*ir.AllocStack); ok {
			stack = true
		}
	}
	if result != nil {
		ir.ReplaceAllUsesWith(f, apply, result)
	}
	block.Remove(apply)
	removeDeadValues(f, apply.Callee)
	return stack
}
