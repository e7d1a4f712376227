// Package passes contains the built-in optimization and utility passes.
package passes

import (
	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passmanager"
)

// Register adds every built-in pass to r.
func Register(r *passmanager.Registry) {
	r.RegisterModulePass("compute-side-effects",
		"compute effect summaries of all functions, callees first",
		passmanager.ModulePassFunc(ComputeSideEffects))
	r.RegisterFunctionPass("devirtualizer",
		"replace class and witness method calls with a single known callee by direct calls",
		passmanager.FunctionPassFunc(Devirtualize))
	r.RegisterFunctionPass("early-inliner",
		"inline small single-block callees",
		passmanager.FunctionPassFunc(EarlyInline))
	r.RegisterFunctionPass("function-ref-cse",
		"reuse dominating function_ref instructions",
		passmanager.FunctionPassFunc(FunctionRefCSE))
	r.RegisterModulePass("dead-function-elimination",
		"remove functions unreachable from external entry points and dispatch tables",
		passmanager.ModulePassFunc(EliminateDeadFunctions))
	r.RegisterModulePass("inst-count",
		"print instruction counts by kind",
		passmanager.ModulePassFunc(PrintInstCount))
	r.RegisterModulePass("callee-analysis-printer",
		"print the callee list of every call site",
		passmanager.ModulePassFunc(PrintCalleeAnalysis))
	r.RegisterModulePass("function-order-printer",
		"print the bottom-up function order",
		passmanager.ModulePassFunc(PrintFunctionOrder))
}

// NewRegistry returns a registry holding every built-in pass.
func NewRegistry() *passmanager.Registry {
	r := passmanager.NewRegistry()
	Register(r)
	return r
}

// InstallCallbacks makes bca answer memory behavior and deinit barrier
// queries from the effect summaries of ComputeSideEffects.
func InstallCallbacks(bca *analysis.BasicCallee) {
	bca.SetCallbacks(analysis.Callbacks{
		MemoryBehavior:  memoryBehavior,
		IsDeinitBarrier: isDeinitBarrier,
	})
}

func setCallee(site ir.FullApplySite, v ir.Value) {
	switch site := site.(type) {
	case *ir.Apply:
		site.Callee = v
	case *ir.TryApply:
		site.Callee = v
	case *ir.BeginApply:
		site.Callee = v
	}
}

// removeDeadValues deletes v and the conversions it was computed from
// once nothing in f uses them.
func removeDeadValues(f *ir.Function, v ir.Value) {
	for v != nil {
		inst, ok := v.(ir.Instruction)
		if !ok || inst.Block() == nil || ir.HasUses(f, v) {
			return
		}
		var next ir.Value
		switch x := v.(type) {
		case *ir.ConvertFunction:
			next = x.Operand
		case *ir.FunctionRef, *ir.ClassMethod, *ir.WitnessMethod:
		default:
			return
		}
		inst.Block().Remove(inst)
		v = next
	}
}
