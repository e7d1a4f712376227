// Package irtest provides helpers for building small IR modules in
// tests.
package irtest

import (
	"github.com/picatz/silopt/ir"
)

// Define creates a public function named name with a single entry
// block and lets body fill it. A return is appended if body leaves
// the block unterminated.
func Define(m *ir.Module, name string, body func(b *ir.Builder)) *ir.Function {
	f := m.NewFunction(name, ir.LinkagePublic)
	entry := f.NewBlock()
	b := ir.NewBuilder(entry)
	if body != nil {
		body(b)
	}
	if b.Block().Terminator() == nil {
		b.Return(nil)
	}
	return f
}

// Leaf defines a function that immediately returns.
func Leaf(m *ir.Module, name string) *ir.Function {
	return Define(m, name, nil)
}

// Calls defines a function that directly calls each callee in order.
func Calls(m *ir.Module, name string, callees ...*ir.Function) *ir.Function {
	return Define(m, name, func(b *ir.Builder) {
		for _, c := range callees {
			b.Apply(b.FunctionRef(c))
		}
	})
}

// AddCall appends a direct call of callee to f, before its terminator.
func AddCall(f, callee *ir.Function) *ir.Apply {
	term := f.Entry().Terminator()
	b := ir.NewBuilderBefore(term)
	return b.Apply(b.FunctionRef(callee))
}

// A Hierarchy is a three class hierarchy Base <- Derived1, Derived2
// where both subclasses override Base.m and every class has a
// deallocator.
type Hierarchy struct {
	Base, Derived1, Derived2 *ir.Class

	Method       *ir.MethodDecl
	BaseImpl     *ir.Function
	Derived1Impl *ir.Function
	Derived2Impl *ir.Function

	BaseDeinit     *ir.Function
	Derived1Deinit *ir.Function
	Derived2Deinit *ir.Function
}

// NewHierarchy adds the classes, implementations and v-tables of a
// Hierarchy to m. All classes get the given access level.
func NewHierarchy(m *ir.Module, access ir.AccessLevel) *Hierarchy {
	h := &Hierarchy{}
	h.Base = &ir.Class{Name: "Base", Access: access}
	h.Derived1 = &ir.Class{Name: "Derived1", Superclass: h.Base, Access: access}
	h.Derived2 = &ir.Class{Name: "Derived2", Superclass: h.Base, Access: access}

	h.Method = &ir.MethodDecl{Name: "m", Class: h.Base}
	d1m := &ir.MethodDecl{Name: "m", Class: h.Derived1, Overridden: h.Method}
	d2m := &ir.MethodDecl{Name: "m", Class: h.Derived2, Overridden: h.Method}

	h.Base.Deinit = &ir.MethodDecl{Name: "deinit", Class: h.Base, Kind: ir.MethodDeallocator}
	h.Derived1.Deinit = &ir.MethodDecl{Name: "deinit", Class: h.Derived1, Kind: ir.MethodDeallocator, Overridden: h.Base.Deinit}
	h.Derived2.Deinit = &ir.MethodDecl{Name: "deinit", Class: h.Derived2, Kind: ir.MethodDeallocator, Overridden: h.Base.Deinit}

	h.BaseImpl = Leaf(m, "Base.m")
	h.Derived1Impl = Leaf(m, "Derived1.m")
	h.Derived2Impl = Leaf(m, "Derived2.m")
	h.BaseDeinit = Leaf(m, "Base.deinit")
	h.Derived1Deinit = Leaf(m, "Derived1.deinit")
	h.Derived2Deinit = Leaf(m, "Derived2.deinit")

	m.AddVTable(&ir.VTable{Class: h.Base, Entries: []ir.VTableEntry{
		{Method: h.Method, Impl: h.BaseImpl},
		{Method: h.Base.Deinit, Impl: h.BaseDeinit},
	}})
	m.AddVTable(&ir.VTable{Class: h.Derived1, Entries: []ir.VTableEntry{
		{Method: d1m, Impl: h.Derived1Impl, Kind: ir.VTableEntryOverride},
		{Method: h.Derived1.Deinit, Impl: h.Derived1Deinit, Kind: ir.VTableEntryOverride},
	}})
	m.AddVTable(&ir.VTable{Class: h.Derived2, Entries: []ir.VTableEntry{
		{Method: d2m, Impl: h.Derived2Impl, Kind: ir.VTableEntryOverride},
		{Method: h.Derived2.Deinit, Impl: h.Derived2Deinit, Kind: ir.VTableEntryOverride},
	}})
	return h
}

// Conformance describes a protocol P with one requirement and the
// types conforming to it.
type Conformance struct {
	Protocol    *ir.Protocol
	Requirement *ir.Requirement
	Tables      []*ir.WitnessTable
}

// NewProtocol adds a protocol with a single requirement named req.
func NewProtocol(name, req string, access ir.AccessLevel) *Conformance {
	p := &ir.Protocol{Name: name, Access: access}
	return &Conformance{Protocol: p, Requirement: p.AddRequirement(req)}
}

// Conform adds a witness table for t whose witness for the
// requirement is a new leaf function.
func (c *Conformance) Conform(m *ir.Module, t *ir.Type) *ir.Function {
	w := Leaf(m, t.Name+"."+c.Requirement.Name)
	wt := &ir.WitnessTable{Type: t, Protocol: c.Protocol}
	wt.SetEntry(c.Requirement, w)
	m.AddWitnessTable(wt)
	c.Tables = append(c.Tables, wt)
	return w
}
