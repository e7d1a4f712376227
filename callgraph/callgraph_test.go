package callgraph_test

import (
	"context"
	"slices"
	"testing"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/callgraph"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/ir/irtest"
)

func calleeNames(n *callgraph.Node) []string {
	var names []string
	for _, e := range n.Out {
		names = append(names, e.Callee.Func.Name)
	}
	return names
}

func TestNew(t *testing.T) {
	m := ir.NewModule("test")
	h := irtest.NewHierarchy(m, ir.AccessOpen)
	leaf := irtest.Leaf(m, "leaf")
	irtest.Define(m, "caller", func(b *ir.Builder) {
		b.Apply(b.FunctionRef(leaf))
		obj := b.Block().AddArgument(ir.ClassType(h.Base))
		b.Apply(b.ClassMethod(obj, h.Method), obj)
	})
	ext := m.NewFunction("ext", ir.LinkagePublicExternal)
	irtest.Calls(m, "callsExt", ext)

	g, err := callgraph.New(context.Background(), m, analysis.NewBasicCallee(m), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.All()) != m.NumFunctions() {
		t.Fatalf("expected a node per function, got %d", len(g.All()))
	}

	caller := g.Lookup("caller")
	if caller == nil {
		t.Fatal("caller has no node")
	}
	want := []string{"leaf", "Base.m", "Derived1.m", "Derived2.m"}
	if got := calleeNames(caller); !slices.Equal(got, want) {
		t.Fatalf("expected callees %v, got %v", want, got)
	}
	if !caller.Incomplete {
		t.Fatal("a call on an open class makes the caller incomplete")
	}
	if d := caller.Out[0].Description(); d != "static call" {
		t.Fatalf("unexpected description %q", d)
	}
	if d := caller.Out[1].Description(); d != "class method call" {
		t.Fatalf("unexpected description %q", d)
	}
	if caller.Out[0].Site.Incomplete || !caller.Out[1].Site.Incomplete {
		t.Fatal("unexpected site completeness")
	}

	base := g.Node(h.BaseImpl)
	if len(base.In) != 1 || base.In[0].Caller != caller {
		t.Fatalf("expected Base.m to be called by caller only, got %v", base.In)
	}

	if got := calleeNames(g.Lookup("callsExt")); !slices.Equal(got, []string{"ext"}) {
		t.Fatalf("unexpected callees of callsExt: %v", got)
	}
	if n := g.Lookup("ext"); len(n.Out) != 0 {
		t.Fatalf("declarations have no outgoing edges, got %v", n.Out)
	}

	edges := 0
	if err := g.VisitEdges(func(*callgraph.Edge) error { edges++; return nil }); err != nil {
		t.Fatal(err)
	}
	if edges != 5 {
		t.Fatalf("expected 5 edges, got %d", edges)
	}
}

func TestDeinitAndOnceEdges(t *testing.T) {
	m := ir.NewModule("test")
	deinit := irtest.Leaf(m, "S.deinit")
	initializer := irtest.Leaf(m, "init")
	s := ir.StructType("S", deinit)
	irtest.Define(m, "f", func(b *ir.Builder) {
		b.ReleaseValue(b.Opaque("make", s))
		b.Builtin(ir.BuiltinOnce, b.Opaque("token", ir.BuiltinType("Token")), b.FunctionRef(initializer))
	})

	g, err := callgraph.New(context.Background(), m, analysis.NewBasicCallee(m), 0)
	if err != nil {
		t.Fatal(err)
	}
	f := g.Lookup("f")
	var got []string
	for _, e := range f.Out {
		got = append(got, e.Callee.Func.Name+" ("+e.Description()+")")
	}
	want := []string{"S.deinit (deinit call)", "init (run-once call)"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRoots(t *testing.T) {
	m := ir.NewModule("test")
	m.WholeModule = true
	pub := irtest.Leaf(m, "pub")
	hidden := irtest.Leaf(m, "hidden")
	hidden.Linkage = ir.LinkageHidden

	g, err := callgraph.New(context.Background(), m, analysis.NewBasicCallee(m), 1)
	if err != nil {
		t.Fatal(err)
	}
	roots := g.Roots()
	if len(roots) != 1 || roots[0].Func != pub {
		t.Fatalf("expected only pub as root, got %v", roots)
	}
}

func TestCanceled(t *testing.T) {
	m := ir.NewModule("test")
	irtest.Leaf(m, "leaf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := callgraph.New(ctx, m, analysis.NewBasicCallee(m), 1); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}
