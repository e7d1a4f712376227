package ssaimport_test

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"slices"
	"testing"

	"golang.org/x/tools/go/ssa"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/ssaimport"
)

type mapImporter map[string]*types.Package

func (m mapImporter) Import(path string) (*types.Package, error) {
	if p, ok := m[path]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("package %q not found", path)
}

// build type-checks and builds each source in order. Later sources may
// import earlier ones by path.
func build(t *testing.T, srcs ...[2]string) (*ssa.Program, []*ssa.Package) {
	t.Helper()
	fset := token.NewFileSet()
	prog := ssa.NewProgram(fset, ssa.InstantiateGenerics)
	imported := mapImporter{}
	var pkgs []*ssa.Package
	for _, src := range srcs {
		path, code := src[0], src[1]
		f, err := parser.ParseFile(fset, path+"/src.go", code, parser.SkipObjectResolution)
		if err != nil {
			t.Fatal(err)
		}
		info := &types.Info{
			Types:        make(map[ast.Expr]types.TypeAndValue),
			Defs:         make(map[*ast.Ident]types.Object),
			Uses:         make(map[*ast.Ident]types.Object),
			Implicits:    make(map[ast.Node]types.Object),
			Instances:    make(map[*ast.Ident]types.Instance),
			Scopes:       make(map[ast.Node]*types.Scope),
			Selections:   make(map[*ast.SelectorExpr]*types.Selection),
			FileVersions: make(map[*ast.File]string),
		}
		conf := types.Config{Importer: imported}
		pkg, err := conf.Check(path, fset, []*ast.File{f}, info)
		if err != nil {
			t.Fatal(err)
		}
		imported[path] = pkg
		pkgs = append(pkgs, prog.CreatePackage(pkg, []*ast.File{f}, info, true))
	}
	prog.Build()
	return prog, pkgs
}

const shapes = `package p

type shape interface{ area() int }

type Shape interface{ Area() int }

type square struct{ n int }

func (s square) area() int { return s.n * s.n }
func (s square) Area() int { return s.n }

func total(s shape) int { return s.area() + helper(1) }

func Total(s Shape) int { return s.Area() + total(s.(shape)) }

func helper(x int) int {
	if x > 0 {
		return x
	}
	return -x
}

func Sum(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	return s
}

func run(f func()) { f() }

func Closure(n int) int {
	run(func() { n++ })
	return n
}

func Fail() { panic("boom") }
`

func importShapes(t *testing.T, wholeModule bool) *ir.Module {
	t.Helper()
	prog, pkgs := build(t, [2]string{"example.com/p", shapes})
	m, err := ssaimport.Import(context.Background(), prog, pkgs, ssaimport.Config{WholeModule: wholeModule, Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := ir.Verify(m); err != nil {
		t.Fatal(err)
	}
	return m
}

func lookup(t *testing.T, m *ir.Module, name string) *ir.Function {
	t.Helper()
	f := m.LookupFunction(name)
	if f == nil {
		var names []string
		for _, fn := range m.Functions() {
			names = append(names, fn.Name)
		}
		t.Fatalf("no function %q in %v", name, names)
	}
	return f
}

func witnessCall(t *testing.T, f *ir.Function) *ir.Apply {
	t.Helper()
	for inst := range f.Instructions() {
		if a, ok := inst.(*ir.Apply); ok {
			if _, ok := a.Callee.(*ir.WitnessMethod); ok {
				return a
			}
		}
	}
	t.Fatalf("%s has no interface method call", f.Name)
	return nil
}

func count[T ir.Instruction](f *ir.Function) int {
	n := 0
	for inst := range f.Instructions() {
		if _, ok := inst.(T); ok {
			n++
		}
	}
	return n
}

func TestImport(t *testing.T) {
	m := importShapes(t, true)

	if m.Name != "example.com/p" || m.Stage != ir.StageCanonical || !m.WholeModule {
		t.Fatalf("unexpected module settings: %s %v %v", m.Name, m.Stage, m.WholeModule)
	}

	linkages := map[string]ir.Linkage{
		"example.com/p.Total":     ir.LinkagePublic,
		"example.com/p.total":     ir.LinkageHidden,
		"example.com/p.helper":    ir.LinkageHidden,
		"example.com/p.Closure$1": ir.LinkagePrivate,
		"example.com/p.init":      ir.LinkagePublic,
	}
	for name, want := range linkages {
		if got := lookup(t, m, name).Linkage; got != want {
			t.Errorf("%s: expected linkage %v, got %v", name, want, got)
		}
	}

	helper := lookup(t, m, "example.com/p.helper")
	if n := count[*ir.CondBranch](helper); n != 1 {
		t.Fatalf("expected one cond_br in helper, got %d", n)
	}
	if n := count[*ir.Return](helper); n != 2 {
		t.Fatalf("expected two returns in helper, got %d", n)
	}
	if args := helper.Entry().Args; len(args) != 1 || args[0].Type().Name != "int" {
		t.Fatalf("unexpected parameters of helper: %v", args)
	}
}

func TestImportLoopsUseBlockArguments(t *testing.T) {
	m := importShapes(t, false)
	sum := lookup(t, m, "example.com/p.Sum")
	found := false
	for _, b := range sum.Blocks[1:] {
		if len(b.Args) == 2 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a loop header with two block arguments")
	}
}

func TestImportInterfaceCalls(t *testing.T) {
	m := importShapes(t, true)
	bca := analysis.NewBasicCallee(m)

	l := bca.CalleeList(witnessCall(t, lookup(t, m, "example.com/p.total")))
	if l.IsIncomplete() {
		t.Fatalf("unexported interface should have a complete callee list, got %v", l)
	}
	var names []string
	for _, f := range l.Functions() {
		names = append(names, f.Name)
	}
	slices.Sort(names)
	want := []string{"(*example.com/p.square).area", "(example.com/p.square).area"}
	if !slices.Equal(names, want) {
		t.Fatalf("expected callees %v, got %v", want, names)
	}

	l = bca.CalleeList(witnessCall(t, lookup(t, m, "example.com/p.Total")))
	if !l.IsIncomplete() {
		t.Fatalf("exported interface may have unseen conformances, got %v", l)
	}
	if !l.Contains(lookup(t, m, "(example.com/p.square).Area")) {
		t.Fatalf("expected square.Area among %v", l)
	}

	// Without whole-module knowledge the unexported interface is open too.
	m = importShapes(t, false)
	bca = analysis.NewBasicCallee(m)
	if l := bca.CalleeList(witnessCall(t, lookup(t, m, "example.com/p.total"))); !l.IsIncomplete() {
		t.Fatalf("expected an incomplete list without whole-module, got %v", l)
	}
}

func TestImportClosuresAndPanics(t *testing.T) {
	m := importShapes(t, false)

	closure := lookup(t, m, "example.com/p.Closure")
	if n := count[*ir.PartialApply](closure); n != 1 {
		t.Fatalf("expected one partial_apply, got %d", n)
	}

	bca := analysis.NewBasicCallee(m)
	run := lookup(t, m, "example.com/p.run")
	for inst := range run.Instructions() {
		if a, ok := inst.(*ir.Apply); ok {
			if l := bca.CalleeList(a); !l.IsIncomplete() || l.Len() != 0 {
				t.Fatalf("calling a parameter should be unknown, got %v", l)
			}
		}
	}

	fail := lookup(t, m, "example.com/p.Fail")
	var panics int
	for inst := range fail.Instructions() {
		if bi, ok := inst.(*ir.Builtin); ok && bi.Name == "panic" && bi.SideEffects {
			panics++
		}
	}
	if panics != 1 || count[*ir.Unreachable](fail) != 1 {
		t.Fatal("expected a panic builtin followed by unreachable")
	}
}

const fakeSync = `package sync

type Once struct{ done bool }

func (o *Once) Do(f func()) {
	if !o.done {
		o.done = true
		f()
	}
}
`

const usesOnce = `package q

import "sync"

var once sync.Once

func setup() {}

func Init() { once.Do(setup) }
`

func TestImportOnce(t *testing.T) {
	prog, pkgs := build(t, [2]string{"sync", fakeSync}, [2]string{"example.com/q", usesOnce})
	m, err := ssaimport.Import(context.Background(), prog, pkgs[1:], ssaimport.Config{})
	if err != nil {
		t.Fatal(err)
	}

	initFn := lookup(t, m, "example.com/q.Init")
	var once *ir.Builtin
	for inst := range initFn.Instructions() {
		if bi, ok := inst.(*ir.Builtin); ok && bi.IsRunOnce() {
			once = bi
		}
	}
	if once == nil {
		t.Fatal("expected sync.Once.Do to become a run-once builtin")
	}
	ref, ok := once.RunOnceClosure().(*ir.FunctionRef)
	if !ok || ref.Func.Name != "example.com/q.setup" {
		t.Fatalf("unexpected run-once closure %v", once.RunOnceClosure())
	}

	do := lookup(t, m, "(*sync.Once).Do")
	if !do.IsExternalDeclaration() || do.Linkage != ir.LinkagePublicExternal {
		t.Fatalf("expected an external declaration of Do, got %v", do.Linkage)
	}
	if m.Loader != nil {
		t.Fatal("no loader without LoadDependencyBodies")
	}
}

func TestLoadDependencyBodies(t *testing.T) {
	prog, pkgs := build(t, [2]string{"sync", fakeSync}, [2]string{"example.com/q", usesOnce})
	m, err := ssaimport.Import(context.Background(), prog, pkgs[1:], ssaimport.Config{LoadDependencyBodies: true})
	if err != nil {
		t.Fatal(err)
	}
	do := lookup(t, m, "(*sync.Once).Do")
	if err := m.LoadBody(do, false); err != nil {
		t.Fatal(err)
	}
	if do.IsExternalDeclaration() {
		t.Fatal("expected Do to have a body after loading")
	}
	if err := ir.Verify(m); err != nil {
		t.Fatal(err)
	}

	setup := lookup(t, m, "example.com/q.setup")
	if err := m.LoadBody(setup, false); err != nil {
		t.Fatalf("loading a defined function is a no-op, got %v", err)
	}
}

func TestImportCanceled(t *testing.T) {
	prog, pkgs := build(t, [2]string{"example.com/p", shapes})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ssaimport.Import(ctx, prog, pkgs, ssaimport.Config{}); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}

func TestLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("loading packages runs the go command")
	}
	ctx := context.Background()
	prog, pkgs, err := ssaimport.Load(ctx, "testdata/hello", ssaimport.Config{}, ".")
	if err != nil {
		t.Fatal(err)
	}
	m, err := ssaimport.Import(ctx, prog, pkgs, ssaimport.Config{WholeModule: true})
	if err != nil {
		t.Fatal(err)
	}
	greet := lookup(t, m, "example.com/hello.Greet")
	l := analysis.NewBasicCallee(m).CalleeList(witnessCall(t, greet))
	if l.IsIncomplete() || !l.Contains(lookup(t, m, "(example.com/hello.english).greet")) {
		t.Fatalf("unexpected callees of greet: %v", l)
	}
}
