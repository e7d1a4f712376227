package ir_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/ir/irtest"
)

func TestVerify(t *testing.T) {
	m := ir.NewModule("test")
	callee := irtest.Leaf(m, "callee")
	irtest.Calls(m, "caller", callee)

	if err := ir.Verify(m); err != nil {
		t.Fatal(err)
	}

	t.Run("missing terminator", func(t *testing.T) {
		m := ir.NewModule("test")
		f := m.NewFunction("f", ir.LinkagePublic)
		ir.NewBuilder(f.NewBlock()).IntegerLiteral(1, ir.BuiltinType("Int"))

		err := ir.Verify(m)
		var verr *ir.VerifyError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *ir.VerifyError, got %v", err)
		}
		if !strings.Contains(verr.Error(), "does not end with a terminator") {
			t.Fatalf("unexpected error: %v", verr)
		}
	})

	t.Run("branch argument count", func(t *testing.T) {
		m := ir.NewModule("test")
		f := m.NewFunction("f", ir.LinkagePublic)
		entry, exit := f.NewBlock(), f.NewBlock()
		exit.AddArgument(ir.BuiltinType("Int"))
		ir.NewBuilder(entry).Branch(exit)
		ir.NewBuilder(exit).Return(exit.Args[0])

		err := ir.VerifyFunction(f)
		if err == nil || !strings.Contains(err.Error(), "passes 0 arguments") {
			t.Fatalf("expected argument count problem, got %v", err)
		}
	})

	t.Run("foreign function ref", func(t *testing.T) {
		other := ir.NewModule("other")
		g := irtest.Leaf(other, "g")

		m := ir.NewModule("test")
		irtest.Calls(m, "f", g)
		if err := ir.Verify(m); err == nil {
			t.Fatal("expected an error for a function_ref into another module")
		}
	})
}

func TestReplaceAllUsesWith(t *testing.T) {
	m := ir.NewModule("test")
	a := irtest.Leaf(m, "a")
	b := irtest.Leaf(m, "b")

	var ref *ir.FunctionRef
	var call *ir.Apply
	f := irtest.Define(m, "f", func(bld *ir.Builder) {
		ref = bld.FunctionRef(a)
		call = bld.Apply(ref)
	})

	bld := ir.NewBuilderBefore(ref)
	newRef := bld.FunctionRef(b)

	if n := ir.ReplaceAllUsesWith(f, ref, newRef); n != 1 {
		t.Fatalf("expected 1 replaced use, got %d", n)
	}
	if call.Callee != newRef {
		t.Fatal("apply still refers to the old function_ref")
	}
	if ir.HasUses(f, ref) {
		t.Fatal("old function_ref still has uses")
	}
}

func TestClone(t *testing.T) {
	m := ir.NewModule("test")
	g := irtest.Leaf(m, "g")

	var arg *ir.Argument
	var call *ir.Apply
	f := m.NewFunction("f", ir.LinkagePublic)
	entry := f.NewBlock()
	arg = entry.AddArgument(ir.BuiltinType("Int"))
	b := ir.NewBuilder(entry)
	call = b.Apply(b.FunctionRef(g), arg)
	b.Return(nil)

	replacement := &ir.IntegerLiteral{Value: 7, Typ: ir.BuiltinType("Int")}
	c := ir.Clone(call, func(v ir.Value) ir.Value {
		if v == arg {
			return replacement
		}
		return v
	}).(*ir.Apply)

	if c == call || c.Block() != nil {
		t.Fatal("clone should be a new, unattached instruction")
	}
	if c.Args[0] != replacement {
		t.Fatalf("argument was not remapped: %v", c.Args[0])
	}
	if call.Args[0] != arg {
		t.Fatal("original instruction was modified")
	}
}

func TestStackNesting(t *testing.T) {
	m := ir.NewModule("test")
	f := irtest.Define(m, "f", func(b *ir.Builder) {
		a1 := b.AllocStack(ir.BuiltinType("Int"))
		a2 := b.AllocStack(ir.BuiltinType("Int"))
		b.DeallocStack(a1)
		b.DeallocStack(a2)
	})

	if problems := ir.VerifyStackNesting(f); len(problems) != 1 {
		t.Fatalf("expected one nesting problem, got %v", problems)
	}
	if !ir.FixStackNesting(f) {
		t.Fatal("expected FixStackNesting to reorder deallocations")
	}
	if problems := ir.VerifyStackNesting(f); len(problems) != 0 {
		t.Fatalf("unexpected problems after fix: %v", problems)
	}
	if ir.FixStackNesting(f) {
		t.Fatal("second fix should be a no-op")
	}
}

func TestWriteFunction(t *testing.T) {
	m := ir.NewModule("test")
	callee := irtest.Leaf(m, "callee")
	caller := irtest.Calls(m, "caller", callee)

	var sb strings.Builder
	if err := ir.WriteFunction(&sb, caller); err != nil {
		t.Fatal(err)
	}

	want := "sil public @caller {\nbb0:\n  %0 = function_ref @callee\n  apply %0()\n  return\n}\n"
	if sb.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", sb.String(), want)
	}
}

func TestWriteModule(t *testing.T) {
	m := ir.NewModule("test")
	irtest.NewHierarchy(m, ir.AccessInternal)

	var sb strings.Builder
	if err := ir.WriteModule(&sb, m); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{
		"sil_stage raw",
		"sil_vtable Derived1 {",
		"#Derived1.m: @Derived1.m [override]",
		"#Base.deinit!deallocator: @Base.deinit",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMethodSlot(t *testing.T) {
	m := ir.NewModule("test")
	h := irtest.NewHierarchy(m, ir.AccessPublic)

	vt := m.LookupVTable(h.Derived1)
	impl, ok := vt.Lookup(h.Method)
	if !ok || impl != h.Derived1Impl {
		t.Fatalf("expected Derived1.m for the Base.m slot, got %v", impl)
	}
	if !h.Derived2.IsSubclassOf(h.Base) || h.Base.IsSubclassOf(h.Derived2) {
		t.Fatal("unexpected subclass relation")
	}
}

type bodyLoader struct {
	bodies map[string]func(f *ir.Function)
	loaded []string
}

func (l *bodyLoader) LoadBody(m *ir.Module, f *ir.Function) error {
	fill, ok := l.bodies[f.Name]
	if !ok {
		return nil
	}
	l.loaded = append(l.loaded, f.Name)
	fill(f)
	return nil
}

func TestLoadFunction(t *testing.T) {
	m := ir.NewModule("test")
	leaf := m.NewFunction("leaf", ir.LinkagePublicExternal)
	mid := m.NewFunction("mid", ir.LinkagePublicExternal)

	loader := &bodyLoader{bodies: map[string]func(*ir.Function){
		"mid": func(f *ir.Function) {
			b := ir.NewBuilder(f.NewBlock())
			b.Apply(b.FunctionRef(leaf))
			b.Return(nil)
		},
		"leaf": func(f *ir.Function) {
			ir.NewBuilder(f.NewBlock()).Return(nil)
		},
	}}
	m.Loader = loader

	if f := m.LookupFunction("mid"); f != mid || !f.IsExternalDeclaration() {
		t.Fatal("LookupFunction must not load bodies")
	}

	f, err := m.LoadFunction("mid", false)
	if err != nil {
		t.Fatal(err)
	}
	if f.IsExternalDeclaration() || !leaf.IsExternalDeclaration() {
		t.Fatalf("non-recursive load should only load mid, loaded %v", loader.loaded)
	}

	if _, err := m.LoadFunction("mid", true); err != nil {
		t.Fatal(err)
	}
	if leaf.IsExternalDeclaration() {
		t.Fatal("recursive load should load callees")
	}

	if f, err := m.LoadFunction("missing", true); f != nil || err != nil {
		t.Fatalf("expected nil, nil for a missing function, got %v, %v", f, err)
	}
}
