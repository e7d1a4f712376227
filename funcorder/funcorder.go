// Package funcorder computes a bottom-up order of the functions of a
// module: callees before callers, with mutually recursive functions
// grouped into strongly connected components.
package funcorder

import (
	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/callee"
	"github.com/picatz/silopt/ir"
)

// BottomUp is the bottom-up function order of a module. It is computed
// on first use and then memoized; it has no invalidation hook, so
// create a new one after the call graph changes.
type BottomUp struct {
	module *ir.Module
	bca    *analysis.BasicCallee

	sccs  [][]*ir.Function
	order []*ir.Function

	dfsNum     map[*ir.Function]int
	minDFSNum  map[*ir.Function]int
	inStack    map[*ir.Function]bool
	stack      []*ir.Function
	nextDFSNum int
	computed   bool
}

// New returns the order for m using bca to resolve call edges.
func New(m *ir.Module, bca *analysis.BasicCallee) *BottomUp {
	return &BottomUp{module: m, bca: bca}
}

// SCCs returns the strongly connected components, each after every
// component it calls.
func (o *BottomUp) SCCs() [][]*ir.Function {
	o.compute()
	return o.sccs
}

// Functions returns every function, callees first.
func (o *BottomUp) Functions() []*ir.Function {
	o.compute()
	return o.order
}

func (o *BottomUp) compute() {
	if o.computed {
		return
	}
	o.computed = true
	o.dfsNum = make(map[*ir.Function]int)
	o.minDFSNum = make(map[*ir.Function]int)
	o.inStack = make(map[*ir.Function]bool)
	for _, f := range o.module.Functions() {
		if _, ok := o.dfsNum[f]; !ok {
			o.dfs(f)
		}
	}
	for _, scc := range o.sccs {
		o.order = append(o.order, scc...)
	}
	o.dfsNum, o.minDFSNum, o.inStack, o.stack = nil, nil, nil, nil
}

func (o *BottomUp) dfs(f *ir.Function) {
	o.dfsNum[f] = o.nextDFSNum
	o.minDFSNum[f] = o.nextDFSNum
	o.nextDFSNum++
	o.stack = append(o.stack, f)
	o.inStack[f] = true

	ForEachCallee(o.bca, f, func(_ ir.Instruction, l callee.List) {
		for _, g := range l.Functions() {
			if g.Module() != o.module {
				continue
			}
			if _, visited := o.dfsNum[g]; !visited {
				o.dfs(g)
				o.minDFSNum[f] = min(o.minDFSNum[f], o.minDFSNum[g])
			} else if o.inStack[g] {
				o.minDFSNum[f] = min(o.minDFSNum[f], o.dfsNum[g])
			}
		}
	})

	if o.minDFSNum[f] != o.dfsNum[f] {
		return
	}
	var scc []*ir.Function
	for {
		n := len(o.stack) - 1
		g := o.stack[n]
		o.stack = o.stack[:n]
		o.inStack[g] = false
		scc = append(scc, g)
		if g == f {
			break
		}
	}
	o.sccs = append(o.sccs, scc)
}

// ForEachCallee calls fn with the callee list of every instruction of
// f that may transfer control to another function: full apply sites,
// releases and destroys (through destructors) and run-once builtins.
func ForEachCallee(bca *analysis.BasicCallee, f *ir.Function, fn func(inst ir.Instruction, l callee.List)) {
	for inst := range f.Instructions() {
		switch inst := inst.(type) {
		case *ir.Apply:
			fn(inst, bca.CalleeList(inst))
		case *ir.TryApply:
			fn(inst, bca.CalleeList(inst))
		case *ir.BeginApply:
			fn(inst, bca.CalleeList(inst))
		case *ir.StrongRelease:
			fn(inst, destructorsOf(bca, inst.Operand))
		case *ir.ReleaseValue:
			fn(inst, destructorsOf(bca, inst.Operand))
		case *ir.DestroyValue:
			fn(inst, destructorsOf(bca, inst.Operand))
		case *ir.Builtin:
			if closure := inst.RunOnceClosure(); closure != nil {
				fn(inst, bca.CalleeListOfValue(closure))
			}
		}
	}
}

func destructorsOf(bca *analysis.BasicCallee, v ir.Value) callee.List {
	t := v.Type()
	if t == nil {
		return callee.Unknown()
	}
	return bca.Destructors(t, false)
}
