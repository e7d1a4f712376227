package ir

import (
	"fmt"
	"strings"
)

// A VerifyError lists the problems found by Verify.
type VerifyError struct {
	Problems []string
}

func (e *VerifyError) Error() string {
	if len(e.Problems) == 1 {
		return "ir: verification failed: " + e.Problems[0]
	}
	return fmt.Sprintf("ir: verification failed with %d problems:\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}

type verifier struct {
	m        *Module
	problems []string
}

func (v *verifier) errorf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *verifier) result() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &VerifyError{Problems: v.problems}
}

// Verify checks the structural invariants of every function and table
// in m. It returns a *VerifyError describing every violation, or nil.
func Verify(m *Module) error {
	v := &verifier{m: m}
	for _, f := range m.functions {
		v.function(f)
	}
	for _, vt := range m.vtables {
		for _, e := range vt.Entries {
			if e.Impl == nil || e.Impl.module != m {
				v.errorf("vtable %s: entry %s refers to a function outside the module", vt.Class.Name, e.Method)
			}
		}
	}
	for _, wt := range m.witnessTables {
		for _, e := range wt.Entries {
			if e.Witness == nil || e.Witness.module != m {
				v.errorf("witness table %s: %s: entry %s refers to a function outside the module", wt.Type.Name, wt.Protocol.Name, e.Requirement)
			}
		}
	}
	for _, dt := range m.defaultWitnessTables {
		for _, e := range dt.Entries {
			if e.Witness == nil || e.Witness.module != m {
				v.errorf("default witness table %s: entry %s refers to a function outside the module", dt.Protocol.Name, e.Requirement)
			}
		}
	}
	return v.result()
}

// VerifyFunction checks the structural invariants of f alone.
func VerifyFunction(f *Function) error {
	v := &verifier{m: f.module}
	v.function(f)
	return v.result()
}

func (v *verifier) function(f *Function) {
	defined := make(map[Value]bool)
	for i, b := range f.Blocks {
		if b.parent != f {
			v.errorf("%s: %s has wrong parent", f.Name, b)
		}
		if b.Index != i {
			v.errorf("%s: %s is at position %d", f.Name, b, i)
		}
		for _, a := range b.Args {
			defined[a] = true
		}
		for _, inst := range b.Instrs {
			if val, ok := inst.(Value); ok {
				defined[val] = true
			}
		}
	}

	var rands []*Value
	for _, b := range f.Blocks {
		if len(b.Instrs) == 0 {
			v.errorf("%s: %s is empty", f.Name, b)
			continue
		}
		for j, inst := range b.Instrs {
			if inst.Block() != b {
				v.errorf("%s: %s: instruction %d has wrong parent block", f.Name, b, j)
			}
			_, isTerm := inst.(Terminator)
			last := j == len(b.Instrs)-1
			switch {
			case last && !isTerm:
				v.errorf("%s: %s does not end with a terminator", f.Name, b)
			case !last && isTerm:
				v.errorf("%s: %s has a terminator in the middle", f.Name, b)
			}

			rands = inst.Operands(rands[:0])
			for _, p := range rands {
				if *p == nil {
					v.errorf("%s: %s: instruction %d has a nil operand", f.Name, b, j)
				} else if !defined[*p] {
					v.errorf("%s: %s: instruction %d uses a value not defined in the function", f.Name, b, j)
				}
			}
			v.instruction(f, b, inst)
		}
	}
}

func (v *verifier) instruction(f *Function, b *BasicBlock, inst Instruction) {
	target := func(dest *BasicBlock, args []Value) {
		if dest == nil || dest.parent != f {
			v.errorf("%s: %s branches to a block outside the function", f.Name, b)
			return
		}
		if len(args) != len(dest.Args) {
			v.errorf("%s: %s passes %d arguments to %s which takes %d", f.Name, b, len(args), dest, len(dest.Args))
		}
	}
	switch inst := inst.(type) {
	case *FunctionRef:
		if inst.Func == nil || (v.m != nil && inst.Func.module != v.m) {
			v.errorf("%s: %s references a function outside the module", f.Name, b)
		}
	case *Branch:
		target(inst.Dest, inst.Args)
	case *CondBranch:
		target(inst.True, inst.TrueArgs)
		target(inst.False, inst.FalseArgs)
	case *TryApply:
		for _, s := range inst.Successors() {
			if s == nil || s.parent != f {
				v.errorf("%s: %s: try_apply continues in a block outside the function", f.Name, b)
			}
		}
	}
}
