package passes

import (
	"slices"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passmanager"
)

// Devirtualize replaces calls through class_method and witness_method
// whose callee list is complete and holds exactly one function with a
// direct call to that function.
func Devirtualize(ctx *passmanager.Context, f *ir.Function) {
	if devirtualizeFunction(ctx, f) {
		ctx.NotifyChanges(analysis.Calls | analysis.Instructions)
	}
}

func devirtualizeFunction(ctx *passmanager.Context, f *ir.Function) bool {
	bca := ctx.CalleeAnalysis()
	log := ctx.Logger()
	changed := false
	for _, b := range f.Blocks {
		for _, inst := range slices.Clone(b.Instrs) {
			site, ok := ir.IsFullApplySite(inst)
			if !ok {
				continue
			}
			old := site.CalleeValue()
			switch ir.StripFunctionConversions(old).(type) {
			case *ir.ClassMethod, *ir.WitnessMethod:
			default:
				continue
			}
			target, ok := bca.CalleeList(site).Single()
			if !ok {
				continue
			}
			if !ctx.ContinueWithNextSubpassRun(inst) {
				return changed
			}
			ref := ir.NewBuilderBefore(inst).FunctionRef(target)
			setCallee(site, ref)
			removeDeadValues(f, old)
			log.Debug("devirtualized call to %s in %s", target.Name, f.Name)
			changed = true
		}
	}
	return changed
}
