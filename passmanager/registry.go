package passmanager

import (
	"errors"
	"fmt"

	"github.com/picatz/silopt/ir"
)

// ErrPassNotRegistered is returned when a pipeline names a pass that no
// one registered.
var ErrPassNotRegistered = errors.New("pass is not registered")

// A ModulePass transforms or inspects the whole module.
type ModulePass interface {
	RunModule(ctx *Context)
}

// A FunctionPass transforms a single function.
type FunctionPass interface {
	RunFunction(ctx *Context, f *ir.Function)
}

// ModulePassFunc adapts a function to a ModulePass.
type ModulePassFunc func(ctx *Context)

func (fn ModulePassFunc) RunModule(ctx *Context) { fn(ctx) }

// FunctionPassFunc adapts a function to a FunctionPass.
type FunctionPassFunc func(ctx *Context, f *ir.Function)

func (fn FunctionPassFunc) RunFunction(ctx *Context, f *ir.Function) { fn(ctx, f) }

// PassKind tells module passes from function passes.
type PassKind int

const (
	ModuleKind PassKind = iota
	FunctionKind
)

func (k PassKind) String() string {
	if k == FunctionKind {
		return "function"
	}
	return "module"
}

// PassInfo describes a registered pass.
type PassInfo struct {
	Name        string
	Description string
	Kind        PassKind
}

// A Registry maps pass names to passes.
type Registry struct {
	modulePasses   map[string]ModulePass
	functionPasses map[string]FunctionPass
	infos          map[string]PassInfo
	order          []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modulePasses:   make(map[string]ModulePass),
		functionPasses: make(map[string]FunctionPass),
		infos:          make(map[string]PassInfo),
	}
}

func (r *Registry) add(info PassInfo) {
	if _, ok := r.infos[info.Name]; ok {
		panic(fmt.Sprintf("passmanager: pass %q registered twice", info.Name))
	}
	r.infos[info.Name] = info
	r.order = append(r.order, info.Name)
}

// RegisterModulePass registers p under name. Registering a name twice
// panics.
func (r *Registry) RegisterModulePass(name, description string, p ModulePass) {
	r.add(PassInfo{Name: name, Description: description, Kind: ModuleKind})
	r.modulePasses[name] = p
}

// RegisterFunctionPass registers p under name. Registering a name
// twice panics.
func (r *Registry) RegisterFunctionPass(name, description string, p FunctionPass) {
	r.add(PassInfo{Name: name, Description: description, Kind: FunctionKind})
	r.functionPasses[name] = p
}

// Lookup returns the pass registered under name.
func (r *Registry) Lookup(name string) (PassInfo, error) {
	info, ok := r.infos[name]
	if !ok {
		return PassInfo{}, fmt.Errorf("pass %q: %w", name, ErrPassNotRegistered)
	}
	return info, nil
}

// MustLookup is like Lookup but panics if the pass is not registered.
func (r *Registry) MustLookup(name string) PassInfo {
	info, err := r.Lookup(name)
	if err != nil {
		panic(fmt.Sprintf("passmanager: %v", err))
	}
	return info
}

// Passes returns every registered pass in registration order.
func (r *Registry) Passes() []PassInfo {
	infos := make([]PassInfo, len(r.order))
	for i, name := range r.order {
		infos[i] = r.infos[name]
	}
	return infos
}
