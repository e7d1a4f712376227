package ir

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteFunction writes a textual form of f to w.
func WriteFunction(w io.Writer, f *Function) error {
	bw := bufio.NewWriter(w)
	writeFunction(bw, f)
	return bw.Flush()
}

// WriteModule writes a textual form of every function and table of m
// to w.
func WriteModule(w io.Writer, m *Module) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "sil_stage %s\n", m.Stage)
	for _, f := range m.functions {
		bw.WriteString("\n")
		writeFunction(bw, f)
	}
	for _, vt := range m.vtables {
		fmt.Fprintf(bw, "\nsil_vtable %s {\n", vt.Class.Name)
		for _, e := range vt.Entries {
			fmt.Fprintf(bw, "  %s: @%s", e.Method, e.Impl.Name)
			if e.Kind != VTableEntryNormal {
				fmt.Fprintf(bw, " [%s]", e.Kind)
			}
			bw.WriteString("\n")
		}
		bw.WriteString("}\n")
	}
	for _, wt := range m.witnessTables {
		if wt.IsDeclaration {
			fmt.Fprintf(bw, "\nsil_witness_table %s: %s\n", wt.Type.Name, wt.Protocol.Name)
			continue
		}
		fmt.Fprintf(bw, "\nsil_witness_table %s: %s {\n", wt.Type.Name, wt.Protocol.Name)
		writeWitnessEntries(bw, wt.Entries)
		bw.WriteString("}\n")
	}
	for _, dt := range m.defaultWitnessTables {
		fmt.Fprintf(bw, "\nsil_default_witness_table %s {\n", dt.Protocol.Name)
		writeWitnessEntries(bw, dt.Entries)
		bw.WriteString("}\n")
	}
	return bw.Flush()
}

func writeWitnessEntries(w *bufio.Writer, entries []WitnessEntry) {
	for _, e := range entries {
		fmt.Fprintf(w, "  method %s: @%s\n", e.Requirement, e.Witness.Name)
	}
}

func writeFunction(w *bufio.Writer, f *Function) {
	fmt.Fprintf(w, "sil %s @%s", f.Linkage, f.Name)
	if f.IsExternalDeclaration() {
		w.WriteString("\n")
		return
	}
	w.WriteString(" {\n")
	names := numberValues(f)
	name := func(v Value) string {
		if v == nil {
			return "<nil>"
		}
		if n, ok := names[v]; ok {
			return n
		}
		return "%?"
	}
	for _, b := range f.Blocks {
		w.WriteString(b.String())
		if len(b.Args) > 0 {
			args := make([]string, len(b.Args))
			for i, a := range b.Args {
				args[i] = fmt.Sprintf("%s : %s", name(a), a.Typ)
			}
			fmt.Fprintf(w, "(%s)", strings.Join(args, ", "))
		}
		w.WriteString(":\n")
		for _, inst := range b.Instrs {
			w.WriteString("  ")
			if v, ok := inst.(Value); ok {
				if n, ok := names[v]; ok {
					fmt.Fprintf(w, "%s = ", n)
				}
			}
			w.WriteString(formatInstruction(inst, name))
			w.WriteString("\n")
		}
	}
	w.WriteString("}\n")
}

func numberValues(f *Function) map[Value]string {
	names := make(map[Value]string)
	n := 0
	for _, b := range f.Blocks {
		for _, a := range b.Args {
			names[a] = fmt.Sprintf("%%%d", n)
			n++
		}
		for _, inst := range b.Instrs {
			if v, ok := inst.(Value); ok && v.Type() != nil {
				names[v] = fmt.Sprintf("%%%d", n)
				n++
			}
		}
	}
	return names
}

func formatArgs(vs []Value, name func(Value) string) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = name(v)
	}
	return strings.Join(s, ", ")
}

func formatTarget(b *BasicBlock, args []Value, name func(Value) string) string {
	if len(args) == 0 {
		return b.String()
	}
	return fmt.Sprintf("%s(%s)", b, formatArgs(args, name))
}

func formatInstruction(inst Instruction, name func(Value) string) string {
	switch i := inst.(type) {
	case *FunctionRef:
		return "function_ref @" + i.Func.Name
	case *ClassMethod:
		return fmt.Sprintf("class_method %s, %s", name(i.Operand), i.Method)
	case *WitnessMethod:
		return fmt.Sprintf("witness_method %s, %s", i.LookupType, i.Requirement)
	case *Metatype:
		return "metatype " + MetatypeOf(i.Instance).String()
	case *AllocRef:
		return "alloc_ref $" + i.Class.Name
	case *Upcast:
		return fmt.Sprintf("upcast %s to %s", name(i.Operand), i.To)
	case *ConvertFunction:
		return fmt.Sprintf("convert_function %s to %s", name(i.Operand), i.To)
	case *PartialApply:
		return fmt.Sprintf("partial_apply %s(%s)", name(i.Callee), formatArgs(i.Args, name))
	case *Apply:
		return fmt.Sprintf("apply %s(%s)", name(i.Callee), formatArgs(i.Args, name))
	case *TryApply:
		return fmt.Sprintf("try_apply %s(%s), normal %s, error %s", name(i.Callee), formatArgs(i.Args, name), i.Normal, i.Error)
	case *BeginApply:
		return fmt.Sprintf("begin_apply %s(%s)", name(i.Callee), formatArgs(i.Args, name))
	case *Builtin:
		return fmt.Sprintf("builtin %q(%s)", i.Name, formatArgs(i.Args, name))
	case *StrongRelease:
		return "strong_release " + name(i.Operand)
	case *ReleaseValue:
		return "release_value " + name(i.Operand)
	case *DestroyValue:
		return "destroy_value " + name(i.Operand)
	case *Load:
		return "load " + name(i.Address)
	case *Store:
		return fmt.Sprintf("store %s to %s", name(i.Src), name(i.Dest))
	case *AllocStack:
		return "alloc_stack " + i.Elem.String()
	case *DeallocStack:
		return "dealloc_stack " + name(i.Operand)
	case *IntegerLiteral:
		return fmt.Sprintf("integer_literal %s, %d", i.Typ, i.Value)
	case *Opaque:
		if len(i.Args) == 0 {
			return i.Op
		}
		return fmt.Sprintf("%s %s", i.Op, formatArgs(i.Args, name))
	case *Return:
		if i.Operand == nil {
			return "return"
		}
		return "return " + name(i.Operand)
	case *Throw:
		return "throw " + name(i.Operand)
	case *Branch:
		return "br " + formatTarget(i.Dest, i.Args, name)
	case *CondBranch:
		return fmt.Sprintf("cond_br %s, %s, %s", name(i.Cond), formatTarget(i.True, i.TrueArgs, name), formatTarget(i.False, i.FalseArgs, name))
	case *Unreachable:
		return "unreachable"
	}
	return fmt.Sprintf("<%T>", inst)
}
