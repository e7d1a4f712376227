// Package ssaimport lowers Go SSA programs, as built by
// golang.org/x/tools/go/ssa, into an ir.Module the optimizer can run
// passes over.
//
// Interfaces become protocols and every named type that implements one
// gets a witness table, so interface method calls are resolved by the
// callee analysis the same way protocol requirements are. Functions of
// packages outside the imported set become external declarations;
// with LoadDependencyBodies set their bodies are lowered on demand
// through the module's Loader.
package ssaimport

import (
	"cmp"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
	"golang.org/x/tools/go/types/typeutil"

	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
)

// DefaultConcurrency is the number of function bodies lowered at once
// when Config leaves it unset.
const DefaultConcurrency = 10

// Config controls an import.
type Config struct {
	// WholeModule marks the resulting module as the whole program, so
	// unexported interfaces have no conformances outside of it.
	WholeModule bool

	// Concurrency bounds the number of bodies lowered at once.
	Concurrency int64

	// LoadDependencyBodies keeps the SSA bodies of functions outside
	// the imported packages available to Module.LoadBody.
	LoadDependencyBodies bool
}

const loadMode = packages.NeedName |
	packages.NeedDeps |
	packages.NeedFiles |
	packages.NeedModule |
	packages.NeedTypes |
	packages.NeedImports |
	packages.NeedSyntax |
	packages.NeedTypesInfo

// Load loads the packages matching patterns in dir and builds their
// SSA form. Dependencies only get bodies with LoadDependencyBodies.
func Load(ctx context.Context, dir string, cfg Config, patterns ...string) (*ssa.Program, []*ssa.Package, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	pkgs, err := packages.Load(&packages.Config{
		Mode:    loadMode,
		Context: ctx,
		Env:     os.Environ(),
		Dir:     dir,
		Tests:   false,
		ParseFile: func(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
			return parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
		},
	}, patterns...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load packages: %w", err)
	}
	log := logging.FromContext(ctx).WithPrefix("ssaimport")
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, perr := range p.Errors {
			log.Warning("package load error: %v", perr)
		}
	})

	var (
		prog    *ssa.Program
		ssaPkgs []*ssa.Package
	)
	if cfg.LoadDependencyBodies {
		prog, ssaPkgs = ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	} else {
		prog, ssaPkgs = ssautil.Packages(pkgs, ssa.InstantiateGenerics)
	}
	ssaPkgs = slices.DeleteFunc(ssaPkgs, func(p *ssa.Package) bool { return p == nil })
	if len(ssaPkgs) == 0 {
		return nil, nil, fmt.Errorf("no packages matched %v in %s", patterns, dir)
	}
	prog.Build()
	return prog, ssaPkgs, nil
}

// Import lowers pkgs into a new module. Functions of pkgs, and the
// synthetic functions they need, get bodies; everything else they
// reference is declared.
func Import(ctx context.Context, prog *ssa.Program, pkgs []*ssa.Package, cfg Config) (*ir.Module, error) {
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages to import")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	log := logging.FromContext(ctx).WithPrefix("ssaimport")
	start := time.Now()

	m := ir.NewModule(pkgs[0].Pkg.Path())
	m.WholeModule = cfg.WholeModule
	m.Stage = ir.StageCanonical

	imp := newImporter(prog, pkgs, m, cfg)
	if err := imp.declareAll(); err != nil {
		return nil, err
	}
	log.Debug("declared %d functions, %d protocols and %d witness tables", m.NumFunctions(), len(imp.protocols), len(m.WitnessTables()))

	progress := logging.NewProgressTracker(logging.WithLogger(ctx, log), "lowering function bodies", len(imp.bodies))
	s := semaphore.NewWeighted(cfg.Concurrency)
	eg, ctx := errgroup.WithContext(ctx)
	for _, fn := range imp.bodies {
		if err := s.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
		}
		eg.Go(func() error {
			defer s.Release(1)
			imp.lower(fn)
			progress.Update(fn.String())
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("error from errgroup: %w", err)
	}
	progress.Complete()
	imp.bodies = nil

	if cfg.LoadDependencyBodies {
		m.Loader = imp
	}
	log.Info("imported %d functions from %d packages in %v", m.NumFunctions(), len(pkgs), time.Since(start))
	return m, nil
}

type importer struct {
	prog  *ssa.Program
	m     *ir.Module
	cfg   Config
	owned map[*ssa.Package]bool

	funcs     map[*ssa.Function]*ir.Function
	sources   map[*ir.Function]*ssa.Function
	names     map[string]int
	queue     []*ssa.Function
	bodies    []*ssa.Function
	protocols map[string]*protocolInfo
	concrete  []types.Type

	typesMu sync.Mutex
	types   typeutil.Map
}

type protocolInfo struct {
	proto  *ir.Protocol
	iface  *types.Interface
	tabled bool
}

func newImporter(prog *ssa.Program, pkgs []*ssa.Package, m *ir.Module, cfg Config) *importer {
	imp := &importer{
		prog:      prog,
		m:         m,
		cfg:       cfg,
		owned:     make(map[*ssa.Package]bool),
		funcs:     make(map[*ssa.Function]*ir.Function),
		sources:   make(map[*ir.Function]*ssa.Function),
		names:     make(map[string]int),
		protocols: make(map[string]*protocolInfo),
	}
	for _, p := range pkgs {
		imp.owned[p] = true
	}
	return imp
}

// owns reports whether fn is lowered with a body. Shared synthetic
// functions (wrappers and bound methods) have no package.
func (imp *importer) owns(fn *ssa.Function) bool {
	return len(fn.Blocks) > 0 && (fn.Pkg == nil || imp.owned[fn.Pkg])
}

// declareAll creates every function, protocol and witness table before
// bodies are lowered, so lowering only reads shared state.
func (imp *importer) declareAll() error {
	var pkgs []*ssa.Package
	for p := range imp.owned {
		pkgs = append(pkgs, p)
	}
	slices.SortFunc(pkgs, func(a, b *ssa.Package) int {
		return cmp.Compare(a.Pkg.Path(), b.Pkg.Path())
	})

	for _, p := range pkgs {
		for _, name := range sortedMembers(p) {
			switch mem := p.Members[name].(type) {
			case *ssa.Function:
				imp.declare(mem)
			case *ssa.Type:
				imp.declareType(mem.Type())
			}
		}
	}

	return imp.resolve()
}

// resolve scans queued functions until every function, protocol and
// witness table they lead to is declared.
func (imp *importer) resolve() error {
	for {
		for len(imp.queue) > 0 {
			fn := imp.queue[0]
			imp.queue = imp.queue[1:]
			if err := imp.scan(fn); err != nil {
				return err
			}
		}
		if !imp.addWitnessTables() {
			return nil
		}
	}
}

func sortedMembers(p *ssa.Package) []string {
	names := make([]string, 0, len(p.Members))
	for name := range p.Members {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// declareType records a named type of an imported package: interfaces
// become protocols, everything else a candidate conformer whose
// methods are declared.
func (imp *importer) declareType(t types.Type) {
	named, ok := t.(*types.Named)
	if !ok || named.TypeParams().Len() > 0 {
		return
	}
	if _, ok := named.Underlying().(*types.Interface); ok {
		imp.protocol(named)
		return
	}
	for _, recv := range []types.Type{named, types.NewPointer(named)} {
		imp.concrete = append(imp.concrete, recv)
		mset := imp.prog.MethodSets.MethodSet(recv)
		for i := range mset.Len() {
			if fn := imp.prog.MethodValue(mset.At(i)); fn != nil {
				imp.declare(fn)
			}
		}
	}
}

// declare returns the ir function of fn, creating it on first use.
func (imp *importer) declare(fn *ssa.Function) *ir.Function {
	if f, ok := imp.funcs[fn]; ok {
		return f
	}
	name := fn.String()
	if n := imp.names[name]; n > 0 {
		imp.names[name] = n + 1
		name = fmt.Sprintf("%s#%d", name, n)
	} else {
		imp.names[name] = 1
	}

	var f *ir.Function
	if imp.owns(fn) {
		f = imp.m.NewFunction(name, linkage(fn))
		imp.queue = append(imp.queue, fn)
		imp.bodies = append(imp.bodies, fn)
	} else {
		l := ir.LinkagePublicExternal
		if !token.IsExported(fn.Name()) {
			l = ir.LinkageHiddenExternal
		}
		f = imp.m.NewFunction(name, l)
	}
	imp.funcs[fn] = f
	imp.sources[f] = fn
	return f
}

func linkage(fn *ssa.Function) ir.Linkage {
	switch {
	case fn.Synthetic == "package initializer":
		return ir.LinkagePublic
	case fn.Synthetic != "" || fn.Parent() != nil:
		return ir.LinkagePrivate
	case token.IsExported(fn.Name()):
		return ir.LinkagePublic
	case fn.Name() == "main" && fn.Pkg != nil && fn.Pkg.Pkg.Name() == "main":
		return ir.LinkagePublic
	}
	return ir.LinkageHidden
}

// scan declares everything the body of fn refers to: called and
// referenced functions, closures and the protocols of interface method
// calls.
func (imp *importer) scan(fn *ssa.Function) error {
	for _, anon := range fn.AnonFuncs {
		imp.declare(anon)
	}
	var rands []*ssa.Value
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if call, ok := instr.(ssa.CallInstruction); ok {
				if c := call.Common(); isInterfaceInvoke(c) {
					p := imp.protocol(c.Value.Type())
					if p.Requirement(c.Method.Name()) == nil {
						return fmt.Errorf("%s: %s has no method %s", fn, p.Name, c.Method.Name())
					}
				}
			}
			rands = instr.Operands(rands[:0])
			for _, r := range rands {
				if r == nil || *r == nil {
					continue
				}
				if callee, ok := (*r).(*ssa.Function); ok {
					imp.declare(callee)
				}
			}
		}
	}
	return nil
}

// protocol returns the protocol of the interface type t, creating it
// on first use.
func (imp *importer) protocol(t types.Type) *ir.Protocol {
	name := types.TypeString(t, nil)
	if info, ok := imp.protocols[name]; ok {
		return info.proto
	}
	iface := t.Underlying().(*types.Interface)
	p := &ir.Protocol{Name: name, Access: ir.AccessPublic}
	if named, ok := types.Unalias(t).(*types.Named); ok {
		obj := named.Obj()
		switch {
		case obj.Pkg() == nil || !imp.ownsPackage(obj.Pkg()):
			// Types of other packages may conform without this module
			// seeing it.
			p.Resilient = true
		case !obj.Exported() || hasUnexportedMethod(iface):
			p.Access = ir.AccessInternal
		}
	}
	for i := range iface.NumMethods() {
		p.AddRequirement(iface.Method(i).Name())
	}
	imp.protocols[name] = &protocolInfo{proto: p, iface: iface}
	return p
}

// isInterfaceInvoke reports whether c calls an interface method.
// Method calls on type parameters in generic bodies are also invoke
// mode but have no protocol.
func isInterfaceInvoke(c *ssa.CallCommon) bool {
	if !c.IsInvoke() {
		return false
	}
	_, isParam := types.Unalias(c.Value.Type()).(*types.TypeParam)
	return !isParam
}

func (imp *importer) ownsPackage(p *types.Package) bool {
	for sp := range imp.owned {
		if sp.Pkg == p {
			return true
		}
	}
	return false
}

func hasUnexportedMethod(iface *types.Interface) bool {
	for i := range iface.NumMethods() {
		if !iface.Method(i).Exported() {
			return true
		}
	}
	return false
}

// addWitnessTables adds the witness tables of protocols that have none
// yet and reports whether any were added.
func (imp *importer) addWitnessTables() bool {
	var names []string
	for name, info := range imp.protocols {
		if !info.tabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		info := imp.protocols[name]
		info.tabled = true
		for _, t := range imp.concrete {
			if !types.Implements(t, info.iface) {
				continue
			}
			wt := &ir.WitnessTable{Type: imp.typeOf(t), Protocol: info.proto}
			mset := imp.prog.MethodSets.MethodSet(t)
			for _, r := range info.proto.Requirements {
				m := lookupMethod(info.iface, r.Name)
				sel := mset.Lookup(m.Pkg(), m.Name())
				if sel == nil {
					continue
				}
				if fn := imp.prog.MethodValue(sel); fn != nil {
					wt.SetEntry(r, imp.declare(fn))
				}
			}
			imp.m.AddWitnessTable(wt)
		}
	}
	return len(names) > 0
}

func lookupMethod(iface *types.Interface, name string) *types.Func {
	for i := range iface.NumMethods() {
		if m := iface.Method(i); m.Name() == name {
			return m
		}
	}
	return nil
}

// typeOf maps a Go type to the ir type with the same name. Results are
// shared between concurrent lowerings.
func (imp *importer) typeOf(t types.Type) *ir.Type {
	if t == nil {
		return nil
	}
	if tup, ok := t.(*types.Tuple); ok && tup.Len() == 0 {
		return nil
	}
	imp.typesMu.Lock()
	defer imp.typesMu.Unlock()
	if it, ok := imp.types.At(t).(*ir.Type); ok {
		return it
	}
	it := imp.newType(t)
	imp.types.Set(t, it)
	return it
}

func (imp *importer) newType(t types.Type) *ir.Type {
	name := types.TypeString(t, nil)
	switch t.Underlying().(type) {
	case *types.Signature:
		return ir.FunctionType(name)
	case *types.Interface:
		if info, ok := imp.protocols[name]; ok {
			return ir.ExistentialType(info.proto)
		}
		return &ir.Type{Kind: ir.TypeExistential, Name: name}
	}
	switch t := types.Unalias(t).(type) {
	case *types.Named:
		return ir.StructType(name, nil)
	case *types.Pointer:
		if _, ok := types.Unalias(t.Elem()).(*types.Named); ok {
			return ir.StructType(name, nil)
		}
	}
	return ir.BuiltinType(name)
}

// LoadBody lowers the SSA body of a dependency function declared by
// Import. It implements ir.Loader.
func (imp *importer) LoadBody(m *ir.Module, f *ir.Function) error {
	fn, ok := imp.sources[f]
	if !ok || m != imp.m {
		return fmt.Errorf("%s was not imported from Go SSA", f.Name)
	}
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("no SSA body available for %s", fn)
	}
	imp.queue = append(imp.queue, fn)
	if err := imp.resolve(); err != nil {
		return err
	}
	bodies := imp.bodies
	imp.bodies = nil
	imp.lower(fn)
	for _, b := range bodies {
		imp.lower(b)
	}
	return nil
}
