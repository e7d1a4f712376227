package ir

import (
	"fmt"
	"slices"
)

// ReplaceAllUsesWith rewrites every operand of f that refers to old so
// that it refers to new, returning the number of operands changed.
func ReplaceAllUsesWith(f *Function, old, new Value) int {
	n := 0
	var rands []*Value
	for inst := range f.Instructions() {
		rands = inst.Operands(rands[:0])
		for _, p := range rands {
			if *p == old {
				*p = new
				n++
			}
		}
	}
	return n
}

// HasUses reports whether any instruction of f uses v.
func HasUses(f *Function, v Value) bool {
	var rands []*Value
	for inst := range f.Instructions() {
		rands = inst.Operands(rands[:0])
		for _, p := range rands {
			if *p == v {
				return true
			}
		}
	}
	return false
}

// Clone returns an unattached copy of inst whose operands have been
// passed through remap. Successor blocks are copied unchanged.
func Clone(inst Instruction, remap func(Value) Value) Instruction {
	var c Instruction
	switch inst := inst.(type) {
	case *FunctionRef:
		c = &FunctionRef{Func: inst.Func}
	case *ClassMethod:
		c = &ClassMethod{Operand: inst.Operand, Method: inst.Method}
	case *WitnessMethod:
		c = &WitnessMethod{LookupType: inst.LookupType, Requirement: inst.Requirement}
	case *Metatype:
		c = &Metatype{Instance: inst.Instance}
	case *AllocRef:
		c = &AllocRef{Class: inst.Class}
	case *Upcast:
		c = &Upcast{Operand: inst.Operand, To: inst.To}
	case *ConvertFunction:
		c = &ConvertFunction{Operand: inst.Operand, To: inst.To}
	case *PartialApply:
		c = &PartialApply{Callee: inst.Callee, Args: slices.Clone(inst.Args)}
	case *Apply:
		c = &Apply{Callee: inst.Callee, Args: slices.Clone(inst.Args), Result: inst.Result}
	case *TryApply:
		c = &TryApply{Callee: inst.Callee, Args: slices.Clone(inst.Args), Normal: inst.Normal, Error: inst.Error}
	case *BeginApply:
		c = &BeginApply{Callee: inst.Callee, Args: slices.Clone(inst.Args), Result: inst.Result}
	case *Builtin:
		c = &Builtin{Name: inst.Name, Args: slices.Clone(inst.Args), Result: inst.Result, SideEffects: inst.SideEffects}
	case *StrongRelease:
		c = &StrongRelease{Operand: inst.Operand}
	case *ReleaseValue:
		c = &ReleaseValue{Operand: inst.Operand}
	case *DestroyValue:
		c = &DestroyValue{Operand: inst.Operand}
	case *Load:
		c = &Load{Address: inst.Address, Typ: inst.Typ}
	case *Store:
		c = &Store{Src: inst.Src, Dest: inst.Dest}
	case *AllocStack:
		c = &AllocStack{Elem: inst.Elem}
	case *DeallocStack:
		c = &DeallocStack{Operand: inst.Operand}
	case *IntegerLiteral:
		c = &IntegerLiteral{Value: inst.Value, Typ: inst.Typ}
	case *Opaque:
		c = &Opaque{Op: inst.Op, Args: slices.Clone(inst.Args), Typ: inst.Typ, MayRead: inst.MayRead, MayWrite: inst.MayWrite}
	case *Return:
		c = &Return{Operand: inst.Operand}
	case *Throw:
		c = &Throw{Operand: inst.Operand}
	case *Branch:
		c = &Branch{Dest: inst.Dest, Args: slices.Clone(inst.Args)}
	case *CondBranch:
		c = &CondBranch{Cond: inst.Cond, True: inst.True, False: inst.False, TrueArgs: slices.Clone(inst.TrueArgs), FalseArgs: slices.Clone(inst.FalseArgs)}
	case *Unreachable:
		c = &Unreachable{}
	default:
		panic(fmt.Sprintf("ir: cannot clone %T", inst))
	}
	for _, p := range c.Operands(nil) {
		*p = remap(*p)
	}
	return c
}
