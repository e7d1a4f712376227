package funcorder_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/twmb/algoimpl/go/graph"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/funcorder"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/ir/irtest"
)

func sccNames(sccs [][]*ir.Function) [][]string {
	var out [][]string
	for _, scc := range sccs {
		var names []string
		for _, f := range scc {
			names = append(names, f.Name)
		}
		slices.Sort(names)
		out = append(out, names)
	}
	return out
}

func TestMutualRecursion(t *testing.T) {
	m := ir.NewModule("test")
	a := irtest.Leaf(m, "A")
	b := irtest.Leaf(m, "B")
	irtest.AddCall(a, b)
	irtest.AddCall(b, a)
	irtest.Calls(m, "C", a)

	order := funcorder.New(m, analysis.NewBasicCallee(m))
	got := sccNames(order.SCCs())
	want := [][]string{{"A", "B"}, {"C"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	fns := order.Functions()
	if len(fns) != 3 || fns[2].Name != "C" {
		t.Fatalf("expected C last, got %v", fns)
	}
	if !slices.Equal(order.Functions(), fns) {
		t.Fatal("order should be memoized")
	}
}

func TestCalleesFirst(t *testing.T) {
	m := ir.NewModule("test")
	leaf := irtest.Leaf(m, "leaf")
	mid := irtest.Calls(m, "mid", leaf)
	top := irtest.Calls(m, "top", mid, leaf)

	fns := funcorder.New(m, analysis.NewBasicCallee(m)).Functions()
	pos := func(f *ir.Function) int { return slices.Index(fns, f) }
	if !(pos(leaf) < pos(mid) && pos(mid) < pos(top)) {
		t.Fatalf("expected leaf, mid, top; got %v", fns)
	}
}

func TestDestructorAndOnceEdges(t *testing.T) {
	m := ir.NewModule("test")
	m.WholeModule = true
	h := irtest.NewHierarchy(m, ir.AccessInternal)
	initializer := irtest.Leaf(m, "initializer")

	f := m.NewFunction("f", ir.LinkagePublic)
	entry := f.NewBlock()
	obj := entry.AddArgument(ir.ClassType(h.Derived1))
	b := ir.NewBuilder(entry)
	b.StrongRelease(obj)
	token := b.Opaque("global_addr", ir.BuiltinType("Token"))
	b.Builtin(ir.BuiltinOnce, token, b.FunctionRef(initializer))
	b.Return(nil)

	fns := funcorder.New(m, analysis.NewBasicCallee(m)).Functions()
	pos := func(f *ir.Function) int { return slices.Index(fns, f) }
	for _, callee := range []*ir.Function{h.Derived1Deinit, initializer} {
		if pos(callee) > pos(f) {
			t.Errorf("expected %s before f in %v", callee.Name, fns)
		}
	}
}

// TestPartitionMatchesReference cross-checks the components against an
// independent Tarjan implementation on random call graphs.
func TestPartitionMatchesReference(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for iter := range 25 {
		n := 2 + r.IntN(20)
		m := ir.NewModule("random")
		fns := make([]*ir.Function, n)
		for i := range fns {
			fns[i] = irtest.Leaf(m, fmt.Sprintf("f%d", i))
		}

		ref := graph.New(graph.Directed)
		nodes := make([]graph.Node, n)
		for i := range nodes {
			nodes[i] = ref.MakeNode()
			*nodes[i].Value = i
		}

		edges := make(map[[2]int]bool)
		for range r.IntN(n * 3) {
			from, to := r.IntN(n), r.IntN(n)
			if edges[[2]int{from, to}] {
				continue
			}
			edges[[2]int{from, to}] = true
			irtest.AddCall(fns[from], fns[to])
			if err := ref.MakeEdge(nodes[from], nodes[to]); err != nil {
				t.Fatal(err)
			}
		}

		want := make([]int, n)
		for c, comp := range ref.StronglyConnectedComponents() {
			for _, node := range comp {
				want[(*node.Value).(int)] = c
			}
		}

		sccs := funcorder.New(m, analysis.NewBasicCallee(m)).SCCs()
		got := make([]int, n)
		seen := 0
		for c, scc := range sccs {
			for _, f := range scc {
				got[slices.Index(fns, f)] = c
				seen++
			}
		}
		if seen != n {
			t.Fatalf("iteration %d: %d functions in components, want %d", iter, seen, n)
		}

		for i := range n {
			for j := range n {
				if (want[i] == want[j]) != (got[i] == got[j]) {
					t.Fatalf("iteration %d: f%d and f%d grouped differently from the reference", iter, i, j)
				}
			}
		}

		// Callee components come first.
		for e := range edges {
			if got[e[0]] != got[e[1]] && got[e[1]] > got[e[0]] {
				t.Fatalf("iteration %d: f%d calls f%d but its component comes first", iter, e[0], e[1])
			}
		}
	}
}
