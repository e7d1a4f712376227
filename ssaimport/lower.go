package ssaimport

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"slices"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/picatz/silopt/ir"
)

// pureBuiltins are the Go builtins that neither read nor write memory.
var pureBuiltins = map[string]bool{
	"len":     true,
	"cap":     true,
	"min":     true,
	"max":     true,
	"real":    true,
	"imag":    true,
	"complex": true,
}

type lowerer struct {
	imp    *importer
	fn     *ssa.Function
	f      *ir.Function
	b      *ir.Builder
	blocks map[*ssa.BasicBlock]*ir.BasicBlock
	values map[ssa.Value]ir.Value
}

// lower builds the body of fn into its declared ir function. It only
// touches that function, so bodies may be lowered concurrently.
func (imp *importer) lower(fn *ssa.Function) {
	l := &lowerer{
		imp:    imp,
		fn:     fn,
		f:      imp.funcs[fn],
		blocks: make(map[*ssa.BasicBlock]*ir.BasicBlock, len(fn.Blocks)),
		values: make(map[ssa.Value]ir.Value),
	}
	for _, sb := range fn.Blocks {
		l.blocks[sb] = l.f.NewBlock()
	}
	entry := l.blocks[fn.Blocks[0]]
	for _, fv := range fn.FreeVars {
		l.values[fv] = entry.AddArgument(imp.typeOf(fv.Type()))
	}
	for _, p := range fn.Params {
		l.values[p] = entry.AddArgument(imp.typeOf(p.Type()))
	}
	for _, sb := range fn.Blocks {
		for _, instr := range sb.Instrs {
			phi, ok := instr.(*ssa.Phi)
			if !ok {
				break
			}
			l.values[phi] = l.blocks[sb].AddArgument(imp.typeOf(phi.Type()))
		}
	}

	// Definitions dominate their uses, so visiting blocks in dominator
	// preorder lowers every operand before it is needed.
	order := fn.DomPreorder()
	for _, sb := range fn.Blocks {
		if !slices.Contains(order, sb) {
			order = append(order, sb)
		}
	}
	for _, sb := range order {
		blk := l.blocks[sb]
		l.b = ir.NewBuilder(blk)
		for _, instr := range sb.Instrs {
			l.instruction(instr)
		}
		if blk.Terminator() == nil {
			l.b.Unreachable()
		}
	}
}

// value returns the ir value of v, materializing functions and
// constants at the insertion point.
func (l *lowerer) value(v ssa.Value) ir.Value {
	if iv, ok := l.values[v]; ok {
		return iv
	}
	t := l.imp.typeOf(v.Type())
	switch v := v.(type) {
	case *ssa.Function:
		return l.b.FunctionRef(l.imp.funcs[v])
	case *ssa.Const:
		if v.Value != nil && v.Value.Kind() == constant.Int {
			if n, exact := constant.Int64Val(v.Value); exact {
				return l.b.IntegerLiteral(n, t)
			}
		}
		return l.b.Opaque("const", t)
	case *ssa.Global:
		return l.b.Opaque("global_addr", t)
	}
	// Only operands of unreachable code get here.
	return l.b.Opaque("undef", t)
}

func (l *lowerer) operands(vs []ssa.Value) []ir.Value {
	out := make([]ir.Value, len(vs))
	for i, v := range vs {
		out[i] = l.value(v)
	}
	return out
}

func (l *lowerer) define(v ssa.Value, iv ir.Value) {
	if iv != nil {
		l.values[v] = iv
	}
}

func (l *lowerer) instruction(instr ssa.Instruction) {
	switch instr := instr.(type) {
	case *ssa.Phi, *ssa.DebugRef, *ssa.RunDefers:
	case *ssa.Call:
		l.define(instr, l.call(instr.Common(), instr.Type()))
	case *ssa.Go:
		l.call(instr.Common(), nil)
	case *ssa.Defer:
		l.call(instr.Common(), nil)
	case *ssa.MakeClosure:
		args := append([]ir.Value{l.value(instr.Fn)}, l.operands(instr.Bindings)...)
		l.define(instr, l.b.PartialApply(args[0], args[1:]...))
	case *ssa.UnOp:
		if instr.Op == token.MUL {
			l.define(instr, l.b.Load(l.value(instr.X), l.imp.typeOf(instr.Type())))
			return
		}
		op := l.opaque(instr.Op.String(), instr.Type(), instr.X)
		op.MayRead = instr.Op == token.ARROW
		op.MayWrite = instr.Op == token.ARROW
		l.define(instr, op)
	case *ssa.Store:
		l.b.Store(l.value(instr.Val), l.value(instr.Addr))
	case *ssa.ChangeType:
		l.define(instr, l.conversion(instr, instr.X))
	case *ssa.Convert:
		l.define(instr, l.conversion(instr, instr.X))
	case *ssa.Panic:
		p := l.b.Builtin("panic", l.value(instr.X))
		p.SideEffects = true
		l.b.Unreachable()
	case *ssa.Return:
		switch len(instr.Results) {
		case 0:
			l.b.Return(nil)
		case 1:
			l.b.Return(l.value(instr.Results[0]))
		default:
			tuple := l.b.Opaque("tuple", l.imp.typeOf(l.fn.Signature.Results()), l.operands(instr.Results)...)
			l.b.Return(tuple)
		}
	case *ssa.Jump:
		to := instr.Block().Succs[0]
		l.b.Branch(l.blocks[to], l.edgeArgs(instr.Block(), to)...)
	case *ssa.If:
		from := instr.Block()
		t, f := from.Succs[0], from.Succs[1]
		tArgs, fArgs := l.edgeArgs(from, t), l.edgeArgs(from, f)
		br := l.b.CondBranch(l.value(instr.Cond), l.blocks[t], l.blocks[f])
		br.TrueArgs, br.FalseArgs = tArgs, fArgs
	default:
		l.generic(instr)
	}
}

// generic lowers an instruction the optimizer does not model into an
// opaque operation with conservative memory flags.
func (l *lowerer) generic(instr ssa.Instruction) {
	var rands []*ssa.Value
	var args []ssa.Value
	for _, r := range instr.Operands(rands) {
		if r != nil && *r != nil {
			args = append(args, *r)
		}
	}
	var t types.Type
	v, isValue := instr.(ssa.Value)
	if isValue {
		t = v.Type()
	}
	op := l.opaque(opName(instr), t, args...)
	switch instr.(type) {
	case *ssa.MapUpdate:
		op.MayWrite = true
	case *ssa.Lookup, *ssa.Range:
		op.MayRead = true
	case *ssa.Send, *ssa.Select, *ssa.Next:
		op.MayRead, op.MayWrite = true, true
	}
	if isValue {
		l.define(v, op)
	}
}

func (l *lowerer) opaque(name string, t types.Type, args ...ssa.Value) *ir.Opaque {
	return l.b.Opaque(name, l.imp.typeOf(t), l.operands(args)...)
}

// opName returns the lower-case kind of instr, "field_addr" for an
// *ssa.FieldAddr.
func opName(instr ssa.Instruction) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", instr), "*ssa.")
	var sb strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// conversion lowers a type change. Conversions between function types
// keep the function a value refers to.
func (l *lowerer) conversion(v ssa.Value, x ssa.Value) ir.Value {
	if _, ok := v.Type().Underlying().(*types.Signature); ok {
		return l.b.ConvertFunction(l.value(x), l.imp.typeOf(v.Type()))
	}
	return l.opaque(opName(v.(ssa.Instruction)), v.Type(), x)
}

// edgeArgs returns the values passed along the edge from -> to, one per
// phi of to.
func (l *lowerer) edgeArgs(from, to *ssa.BasicBlock) []ir.Value {
	i := slices.Index(to.Preds, from)
	var args []ir.Value
	for _, instr := range to.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		args = append(args, l.value(phi.Edges[i]))
	}
	return args
}

func (l *lowerer) call(c *ssa.CallCommon, result types.Type) ir.Value {
	rt := l.imp.typeOf(result)
	switch {
	case isInterfaceInvoke(c):
		p := l.imp.protocol(c.Value.Type())
		wm := l.b.WitnessMethod(l.imp.typeOf(c.Value.Type()), p.Requirement(c.Method.Name()))
		args := append([]ir.Value{l.value(c.Value)}, l.operands(c.Args)...)
		return l.b.ApplyResult(rt, wm, args...)
	case c.IsInvoke():
		recv := l.value(c.Value)
		method := l.b.Opaque("method", ir.FunctionType(c.Method.FullName()), recv)
		args := append([]ir.Value{recv}, l.operands(c.Args)...)
		return l.b.ApplyResult(rt, method, args...)
	}

	if bi, ok := c.Value.(*ssa.Builtin); ok {
		v := l.b.Builtin(bi.Name(), l.operands(c.Args)...)
		v.Result = rt
		v.SideEffects = !pureBuiltins[bi.Name()]
		return v
	}
	if callee := c.StaticCallee(); callee != nil && isOnceDo(callee) && len(c.Args) == 2 {
		v := l.b.Builtin(ir.BuiltinOnce, l.operands(c.Args)...)
		v.SideEffects = true
		return v
	}
	callee := l.value(c.Value)
	return l.b.ApplyResult(rt, callee, l.operands(c.Args)...)
}

// isOnceDo reports whether fn is (*sync.Once).Do, which runs its
// argument at most once.
func isOnceDo(fn *ssa.Function) bool {
	return fn.String() == "(*sync.Once).Do"
}
