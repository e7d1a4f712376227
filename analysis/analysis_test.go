package analysis_test

import (
	"strings"
	"testing"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/ir/irtest"
)

func TestBasicCalleeInvalidation(t *testing.T) {
	m := ir.NewModule("test")
	m.WholeModule = true
	h := irtest.NewHierarchy(m, ir.AccessInternal)

	f := m.NewFunction("caller", ir.LinkagePublic)
	entry := f.NewBlock()
	self := entry.AddArgument(ir.ClassType(h.Base))
	b := ir.NewBuilder(entry)
	call := b.Apply(b.ClassMethod(self, h.Method), self)
	b.Return(nil)

	bca := analysis.NewBasicCallee(m)
	if bca.HasCache() {
		t.Fatal("cache should be built lazily")
	}
	if l := bca.CalleeList(call); l.Len() != 3 || l.IsIncomplete() {
		t.Fatalf("expected three complete callees, got %v", l)
	}
	if !bca.HasCache() {
		t.Fatal("query should build the cache")
	}

	bca.InvalidateFunction(f, analysis.Everything)
	if !bca.HasCache() {
		t.Fatal("function invalidation must not drop the cache")
	}

	// Add a third subclass overriding m.
	derived3 := &ir.Class{Name: "Derived3", Superclass: h.Base, Access: ir.AccessInternal}
	impl := irtest.Leaf(m, "Derived3.m")
	m.AddVTable(&ir.VTable{Class: derived3, Entries: []ir.VTableEntry{
		{Method: &ir.MethodDecl{Name: "m", Class: derived3, Overridden: h.Method}, Impl: impl, Kind: ir.VTableEntryOverride},
	}})

	bca.InvalidateFunctionTables()
	if bca.HasCache() {
		t.Fatal("table invalidation should drop the cache")
	}
	if l := bca.CalleeList(call); !l.Contains(impl) || l.Len() != 4 {
		t.Fatalf("expected Derived3.m after invalidation, got %v", l)
	}

	bca.UpdateCache()
	bca.UpdateCache()
	bca.NotifyWillDeleteFunction(impl)
	if bca.HasCache() {
		t.Fatal("deleting a function should drop the cache")
	}
}

func TestMemoryBehavior(t *testing.T) {
	m := ir.NewModule("test")
	g := irtest.Leaf(m, "g")
	var call *ir.Apply
	irtest.Define(m, "f", func(b *ir.Builder) {
		call = b.Apply(b.FunctionRef(g))
	})

	bca := analysis.NewBasicCallee(m)
	if got := bca.MemoryBehavior(call, true); got != analysis.MemoryMayHaveSideEffects {
		t.Fatalf("expected the conservative default, got %v", got)
	}

	bca.SetCallbacks(analysis.Callbacks{
		MemoryBehavior: func(site ir.FullApplySite, observeRetains bool, a *analysis.BasicCallee) analysis.MemoryBehavior {
			if a != bca {
				t.Error("callback received a different analysis")
			}
			if observeRetains {
				return analysis.MemoryMayRead
			}
			return analysis.MemoryNone
		},
	})
	if got := bca.MemoryBehavior(call, true); got != analysis.MemoryMayRead {
		t.Fatalf("expected may-read from the callback, got %v", got)
	}
	if got := bca.MemoryBehavior(call, false); got != analysis.MemoryNone {
		t.Fatalf("expected none from the callback, got %v", got)
	}

	other := analysis.NewBasicCallee(m)
	if got := other.MemoryBehavior(call, true); got != analysis.MemoryMayHaveSideEffects {
		t.Fatalf("callbacks must not leak between analyses, got %v", got)
	}
}

func TestIsDeinitBarrier(t *testing.T) {
	m := ir.NewModule("test")
	g := irtest.Leaf(m, "g")
	var call *ir.Apply
	var lit *ir.IntegerLiteral
	irtest.Define(m, "f", func(b *ir.Builder) {
		lit = b.IntegerLiteral(1, ir.BuiltinType("Int"))
		call = b.Apply(b.FunctionRef(g))
	})

	bca := analysis.NewBasicCallee(m)
	if !bca.IsDeinitBarrier(call) {
		t.Error("calls are barriers without effect information")
	}
	if bca.IsDeinitBarrier(lit) {
		t.Error("literals are never barriers")
	}

	bca.SetCallbacks(analysis.Callbacks{
		IsDeinitBarrier: func(inst ir.Instruction, _ *analysis.BasicCallee) bool { return false },
	})
	if bca.IsDeinitBarrier(call) {
		t.Error("callback should decide")
	}
}

func TestBasicCalleePrint(t *testing.T) {
	m := ir.NewModule("test")
	irtest.NewHierarchy(m, ir.AccessOpen)
	bca := analysis.NewBasicCallee(m)

	var sb strings.Builder
	bca.Print(&sb)
	if sb.String() != "<no cache>\n" {
		t.Fatalf("unexpected output %q", sb.String())
	}

	sb.Reset()
	bca.UpdateCache()
	bca.Print(&sb)
	if !strings.Contains(sb.String(), "callees for #Base.m:") {
		t.Fatalf("unexpected output %q", sb.String())
	}
}

// diamond builds bb0 -> {bb1, bb2} -> bb3 -> return.
func diamond(m *ir.Module) (*ir.Function, []*ir.BasicBlock) {
	f := m.NewFunction("diamond", ir.LinkagePublic)
	bbs := []*ir.BasicBlock{f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()}
	b := ir.NewBuilder(bbs[0])
	cond := b.IntegerLiteral(1, ir.BuiltinType("Int1"))
	b.CondBranch(cond, bbs[1], bbs[2])
	ir.NewBuilder(bbs[1]).Branch(bbs[3])
	ir.NewBuilder(bbs[2]).Branch(bbs[3])
	ir.NewBuilder(bbs[3]).Return(nil)
	return f, bbs
}

func TestDominance(t *testing.T) {
	m := ir.NewModule("test")
	f, bbs := diamond(m)

	dom := analysis.NewDominance()
	tree := dom.Get(f)
	if !tree.Dominates(bbs[0], bbs[3]) {
		t.Error("entry dominates the join")
	}
	if tree.Dominates(bbs[1], bbs[3]) {
		t.Error("a branch arm does not dominate the join")
	}
	if got := tree.ImmediateDominator(bbs[3]); got != bbs[0] {
		t.Errorf("expected bb0 as idom of bb3, got %v", got)
	}
	if got := tree.Children(bbs[0]); len(got) != 3 {
		t.Errorf("expected bb0 to immediately dominate three blocks, got %v", got)
	}

	post := analysis.NewPostDominance().Get(f)
	if !post.Dominates(bbs[3], bbs[0]) {
		t.Error("the exit post-dominates the entry")
	}
	if got := post.ImmediateDominator(bbs[0]); got != bbs[3] {
		t.Errorf("expected bb3 as immediate post-dominator of bb0, got %v", got)
	}

	if !dom.IsCached(f) {
		t.Fatal("tree should be cached")
	}
	dom.InvalidateFunction(f, analysis.Instructions)
	if !dom.IsCached(f) {
		t.Fatal("instruction changes keep the tree")
	}
	dom.InvalidateFunction(f, analysis.Branches)
	if dom.IsCached(f) {
		t.Fatal("branch changes drop the tree")
	}
}

func TestDominanceLoop(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("loop", ir.LinkagePublic)
	entry, header, body, exit := f.NewBlock(), f.NewBlock(), f.NewBlock(), f.NewBlock()
	ir.NewBuilder(entry).Branch(header)
	hb := ir.NewBuilder(header)
	hb.CondBranch(hb.IntegerLiteral(0, ir.BuiltinType("Int1")), body, exit)
	ir.NewBuilder(body).Branch(header)
	ir.NewBuilder(exit).Return(nil)

	tree := analysis.ComputeDomTree(f)
	if got := tree.ImmediateDominator(body); got != header {
		t.Errorf("expected header to dominate the body, got %v", got)
	}
	if got := tree.ImmediateDominator(exit); got != header {
		t.Errorf("expected header to dominate the exit, got %v", got)
	}
	if tree.Dominates(body, header) {
		t.Error("loop body does not dominate its header")
	}
}

func TestDeadEndBlocks(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("f", ir.LinkagePublic)
	entry, ok, trap := f.NewBlock(), f.NewBlock(), f.NewBlock()
	b := ir.NewBuilder(entry)
	b.CondBranch(b.IntegerLiteral(1, ir.BuiltinType("Int1")), ok, trap)
	ir.NewBuilder(ok).Return(nil)
	ir.NewBuilder(trap).Unreachable()

	a := analysis.NewDeadEndBlocks()
	deb := a.Get(f)
	if deb.IsDeadEnd(entry) || deb.IsDeadEnd(ok) {
		t.Error("entry and return blocks reach an exit")
	}
	if !deb.IsDeadEnd(trap) {
		t.Error("unreachable block is dead-end")
	}

	a.InvalidateFunction(f, analysis.Calls)
	if !a.IsCached(f) {
		t.Error("call changes keep dead-end blocks")
	}
	a.Invalidate()
	if a.IsCached(f) {
		t.Error("Invalidate drops everything")
	}
}

func TestInvalidationKind(t *testing.T) {
	if !analysis.Everything.Has(analysis.Calls | analysis.Effects) {
		t.Error("Everything includes calls and effects")
	}
	if analysis.FunctionBody.Has(analysis.Effects) {
		t.Error("FunctionBody excludes effects")
	}
	if got := (analysis.Calls | analysis.Branches).String(); got != "calls|branches" {
		t.Errorf("unexpected string %q", got)
	}
}
