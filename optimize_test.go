package silopt_test

import (
	"bytes"
	"context"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/picatz/silopt"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/ir/irtest"
	"github.com/picatz/silopt/logging"
	"github.com/picatz/silopt/passes"
	"github.com/picatz/silopt/passmanager"
	"github.com/picatz/silopt/ssaimport"
)

const program = `package p

type runner interface{ run() int }

type impl struct{}

func (*impl) run() int { return 1 }

func call(r runner) int { return r.run() }

func Entry() int { return call(&impl{}) }

func unused() int { return 2 }
`

func importProgram(t *testing.T) *ir.Module {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", program, parser.SkipObjectResolution)
	if err != nil {
		t.Fatal(err)
	}
	pkg := types.NewPackage("example.com/p", "p")
	ssaPkg, _, err := ssautil.BuildPackage(&types.Config{}, fset, pkg, []*ast.File{f}, ssa.InstantiateGenerics)
	if err != nil {
		t.Fatal(err)
	}
	m, err := ssaimport.Import(context.Background(), ssaPkg.Prog, []*ssa.Package{ssaPkg}, ssaimport.Config{WholeModule: true})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDefaultPlanIsRegistered(t *testing.T) {
	if err := silopt.DefaultPlan().Validate(passes.NewRegistry()); err != nil {
		t.Fatal(err)
	}
}

func TestOptimize(t *testing.T) {
	m := importProgram(t)

	var logs bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.New(logging.LevelDebug, &logs))
	if err := silopt.Optimize(ctx, m, silopt.DefaultPlan(), passmanager.Options{VerifyAll: true}); err != nil {
		t.Fatal(err)
	}

	if m.LookupFunction("example.com/p.unused") != nil {
		t.Fatal("expected the unused hidden function to be eliminated")
	}
	call := m.LookupFunction("example.com/p.call")
	if call == nil {
		t.Fatal("call was eliminated")
	}
	for inst := range call.Instructions() {
		if _, ok := inst.(*ir.WitnessMethod); ok {
			t.Fatal("expected the interface call to be devirtualized")
		}
	}
	if logs.Len() == 0 {
		t.Fatal("expected the pass manager to log through the context logger")
	}
}

func TestOptimizeReturnsVerifyErrors(t *testing.T) {
	m := ir.NewModule("test")
	f := irtest.Leaf(m, "broken")
	f.Entry().Remove(f.Entry().Terminator())

	err := silopt.Optimize(context.Background(), m, silopt.DefaultPlan(), passmanager.Options{VerifyAll: true})
	var verr *ir.VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a *ir.VerifyError, got %v", err)
	}
}

func TestOptimizeStopsOnDiagnostics(t *testing.T) {
	m := ir.NewModule("test")
	irtest.Leaf(m, "f")
	m.Diagnostics.Errorf(nil, "bad input")

	err := silopt.Optimize(context.Background(), m, silopt.DefaultPlan(), passmanager.Options{})
	if !silopt.IsDiagnosed(err) {
		t.Fatalf("expected a diagnosed error, got %v", err)
	}
}

func TestOptimizeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := silopt.Optimize(ctx, ir.NewModule("test"), silopt.DefaultPlan(), passmanager.Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
