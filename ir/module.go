package ir

import (
	"fmt"
	"slices"
)

// Stage is the compilation stage a module is in.
type Stage int

const (
	StageRaw Stage = iota
	StageCanonical
	StageLowered
)

func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageCanonical:
		return "canonical"
	case StageLowered:
		return "lowered"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// A Loader materializes the body of an external declaration, for
// example by deserializing it from another module.
type Loader interface {
	LoadBody(m *Module, f *Function) error
}

// A Module is the unit of optimization: all functions and dispatch
// tables being compiled together.
type Module struct {
	Name string

	// WholeModule reports that no code outside this module can subclass
	// its internal classes or conform to its internal protocols.
	WholeModule bool

	Stage       Stage
	Serialized  bool
	Diagnostics Diagnostics
	Loader      Loader

	functions            []*Function
	byName               map[string]*Function
	vtables              []*VTable
	witnessTables        []*WitnessTable
	defaultWitnessTables []*DefaultWitnessTable
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:   name,
		byName: make(map[string]*Function),
	}
}

// NewFunction creates an empty function (an external declaration until
// blocks are added). It panics if the name is already taken.
func (m *Module) NewFunction(name string, linkage Linkage) *Function {
	if _, ok := m.byName[name]; ok {
		panic(fmt.Sprintf("ir: function %q already exists in module %s", name, m.Name))
	}
	f := &Function{Name: name, Linkage: linkage, module: m}
	m.functions = append(m.functions, f)
	m.byName[name] = f
	return f
}

// Functions returns the functions of m in creation order. The returned
// slice is a copy.
func (m *Module) Functions() []*Function {
	return slices.Clone(m.functions)
}

// NumFunctions returns the number of functions in m.
func (m *Module) NumFunctions() int { return len(m.functions) }

// LookupFunction returns the function named name, or nil. It never
// loads bodies.
func (m *Module) LookupFunction(name string) *Function {
	return m.byName[name]
}

// RemoveFunction deletes f from m.
func (m *Module) RemoveFunction(f *Function) {
	if m.byName[f.Name] != f {
		return
	}
	delete(m.byName, f.Name)
	m.functions = slices.DeleteFunc(m.functions, func(g *Function) bool { return g == f })
	f.module = nil
}

// LoadFunction looks up the function named name and, if it is an
// external declaration, asks the module's Loader for its body. With
// recursive set, functions referenced from loaded bodies are loaded as
// well. It returns nil if no function has that name.
func (m *Module) LoadFunction(name string, recursive bool) (*Function, error) {
	f := m.LookupFunction(name)
	if f == nil {
		return nil, nil
	}
	if err := m.LoadBody(f, recursive); err != nil {
		return f, err
	}
	return f, nil
}

// LoadBody materializes the body of f if it is an external declaration
// and a Loader is configured.
func (m *Module) LoadBody(f *Function, recursive bool) error {
	if m.Loader == nil {
		return nil
	}
	seen := make(map[*Function]bool)
	work := []*Function{f}
	for len(work) > 0 {
		fn := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[fn] {
			continue
		}
		seen[fn] = true
		if fn.IsExternalDeclaration() {
			if err := m.Loader.LoadBody(m, fn); err != nil {
				return fmt.Errorf("failed to load body of %s: %w", fn.Name, err)
			}
		}
		if !recursive {
			continue
		}
		for inst := range fn.Instructions() {
			if ref, ok := inst.(*FunctionRef); ok && !seen[ref.Func] {
				work = append(work, ref.Func)
			}
		}
	}
	return nil
}

// VTables returns the v-tables of m.
func (m *Module) VTables() []*VTable { return m.vtables }

// AddVTable adds vt to m.
func (m *Module) AddVTable(vt *VTable) { m.vtables = append(m.vtables, vt) }

// RemoveVTable removes vt from m.
func (m *Module) RemoveVTable(vt *VTable) {
	m.vtables = slices.DeleteFunc(m.vtables, func(t *VTable) bool { return t == vt })
}

// LookupVTable returns the v-table of c, or nil.
func (m *Module) LookupVTable(c *Class) *VTable {
	for _, vt := range m.vtables {
		if vt.Class == c {
			return vt
		}
	}
	return nil
}

// WitnessTables returns the witness tables of m.
func (m *Module) WitnessTables() []*WitnessTable { return m.witnessTables }

// AddWitnessTable adds wt to m.
func (m *Module) AddWitnessTable(wt *WitnessTable) {
	m.witnessTables = append(m.witnessTables, wt)
}

// LookupWitnessTable returns the table for the conformance of t to p,
// or nil.
func (m *Module) LookupWitnessTable(t *Type, p *Protocol) *WitnessTable {
	for _, wt := range m.witnessTables {
		if wt.Protocol == p && wt.Type.Identical(t) {
			return wt
		}
	}
	return nil
}

// DefaultWitnessTables returns the default witness tables of m.
func (m *Module) DefaultWitnessTables() []*DefaultWitnessTable { return m.defaultWitnessTables }

// AddDefaultWitnessTable adds dt to m.
func (m *Module) AddDefaultWitnessTable(dt *DefaultWitnessTable) {
	m.defaultWitnessTables = append(m.defaultWitnessTables, dt)
}

// LookupDefaultWitnessTable returns the default witness table of p, or
// nil.
func (m *Module) LookupDefaultWitnessTable(p *Protocol) *DefaultWitnessTable {
	for _, dt := range m.defaultWitnessTables {
		if dt.Protocol == p {
			return dt
		}
	}
	return nil
}
