// Package callee answers "which functions can this call site invoke?"
// from the v-tables and witness tables of a module.
//
// A Cache is built by scanning every dispatch table once. Queries are
// pure lookups plus local reasoning about the call site, so a built
// Cache is safe for concurrent use. It goes stale when functions or
// tables change and must then be rebuilt.
package callee

import (
	"fmt"
	"io"
	"slices"

	"github.com/picatz/silopt/ir"
)

type classImpl struct {
	class *ir.Class
	fn    *ir.Function
}

type deallocator struct {
	classImpl
	decl *ir.MethodDecl
}

type slotCallees struct {
	impls      []classImpl
	incomplete bool
}

type requirementCallees struct {
	funcs      []*ir.Function
	incomplete bool
}

type conformanceKey struct {
	protocol *ir.Protocol
	kind     ir.TypeKind
	name     string
}

func keyOf(t *ir.Type, p *ir.Protocol) conformanceKey {
	return conformanceKey{protocol: p, kind: t.Kind, name: t.Name}
}

// A Cache maps method slots and protocol requirements to the functions
// implementing them.
type Cache struct {
	wholeModule bool

	slots     map[*ir.MethodDecl]*slotCallees
	slotOrder []*ir.MethodDecl
	dispatch  map[*ir.Class]map[*ir.MethodDecl]*ir.Function

	// deallocators holds the deallocator entry of every v-table, in
	// table order.
	deallocators []deallocator

	requirements map[*ir.Requirement]*requirementCallees
	witnesses    map[conformanceKey]map[*ir.Requirement]*ir.Function
	declarations map[conformanceKey]bool
	defaults     map[*ir.Requirement]*ir.Function
	conformers   map[*ir.Protocol][]*ir.Type
}

// NewCache scans the tables of m and returns the resulting cache.
func NewCache(m *ir.Module) *Cache {
	c := &Cache{
		wholeModule:  m.WholeModule,
		slots:        make(map[*ir.MethodDecl]*slotCallees),
		dispatch:     make(map[*ir.Class]map[*ir.MethodDecl]*ir.Function),
		requirements: make(map[*ir.Requirement]*requirementCallees),
		witnesses:    make(map[conformanceKey]map[*ir.Requirement]*ir.Function),
		declarations: make(map[conformanceKey]bool),
		defaults:     make(map[*ir.Requirement]*ir.Function),
		conformers:   make(map[*ir.Protocol][]*ir.Type),
	}
	c.computeClassMethodCallees(m)
	c.computeWitnessMethodCallees(m)
	return c
}

func (c *Cache) computeClassMethodCallees(m *ir.Module) {
	for _, vt := range m.VTables() {
		table := make(map[*ir.MethodDecl]*ir.Function, len(vt.Entries))
		for _, e := range vt.Entries {
			slot := e.Method.Slot()
			table[slot] = e.Impl

			sc, ok := c.slots[slot]
			if !ok {
				sc = &slotCallees{}
				c.slots[slot] = sc
				c.slotOrder = append(c.slotOrder, slot)
			}
			sc.impls = append(sc.impls, classImpl{class: vt.Class, fn: e.Impl})
			if e.Method.Kind == ir.MethodDeallocator {
				c.deallocators = append(c.deallocators, deallocator{classImpl{vt.Class, e.Impl}, e.Method})
			}
			if !c.chainKnowable(e.Method) {
				sc.incomplete = true
			}
		}
		c.dispatch[vt.Class] = table
	}
}

func (c *Cache) computeWitnessMethodCallees(m *ir.Module) {
	missing := make(map[*ir.Requirement]bool)
	for _, wt := range m.WitnessTables() {
		key := keyOf(wt.Type, wt.Protocol)
		c.conformers[wt.Protocol] = append(c.conformers[wt.Protocol], wt.Type)
		if wt.IsDeclaration {
			c.declarations[key] = true
			for _, r := range wt.Protocol.Requirements {
				c.requirement(r).incomplete = true
			}
			continue
		}
		entries := make(map[*ir.Requirement]*ir.Function, len(wt.Entries))
		for _, e := range wt.Entries {
			entries[e.Requirement] = e.Witness
			rc := c.requirement(e.Requirement)
			rc.add(e.Witness)
		}
		for _, r := range wt.Protocol.Requirements {
			if _, ok := entries[r]; !ok {
				missing[r] = true
			}
		}
		c.witnesses[key] = entries
	}
	for _, dt := range m.DefaultWitnessTables() {
		for _, e := range dt.Entries {
			c.defaults[e.Requirement] = e.Witness
			if missing[e.Requirement] || !c.protocolKnowable(dt.Protocol) {
				c.requirement(e.Requirement).add(e.Witness)
			}
		}
	}
}

func (c *Cache) requirement(r *ir.Requirement) *requirementCallees {
	rc, ok := c.requirements[r]
	if !ok {
		rc = &requirementCallees{incomplete: !c.protocolKnowable(r.Protocol)}
		c.requirements[r] = rc
	}
	return rc
}

func (rc *requirementCallees) add(f *ir.Function) {
	if !slices.Contains(rc.funcs, f) {
		rc.funcs = append(rc.funcs, f)
	}
}

// methodKnowable reports whether every override of d is visible to the
// module.
func (c *Cache) methodKnowable(d *ir.MethodDecl) bool {
	if d.Dynamic {
		return false
	}
	if d.Final || d.Class.Final {
		return true
	}
	if d.Class.Access <= ir.AccessFilePrivate {
		return true
	}
	return c.wholeModule && d.Class.Access != ir.AccessOpen
}

// classKnowable reports whether every subclass of cls is visible to
// the module.
func (c *Cache) classKnowable(cls *ir.Class) bool {
	if cls.Final || cls.Access <= ir.AccessFilePrivate {
		return true
	}
	return c.wholeModule && cls.Access != ir.AccessOpen
}

func (c *Cache) chainKnowable(d *ir.MethodDecl) bool {
	for ; d != nil; d = d.Overridden {
		if !c.methodKnowable(d) {
			return false
		}
	}
	return true
}

// protocolKnowable reports whether every conformance to p is visible
// to the module.
func (c *Cache) protocolKnowable(p *ir.Protocol) bool {
	if p.Resilient {
		return false
	}
	if p.Access <= ir.AccessFilePrivate {
		return true
	}
	return c.wholeModule && p.Access <= ir.AccessInternal
}

// MethodCallees returns the implementations the slot of m may dispatch
// to on a receiver whose static class is static. A nil static class
// means any class.
func (c *Cache) MethodCallees(m *ir.MethodDecl, static *ir.Class) List {
	slot := m.Slot()
	incomplete := !c.chainKnowable(m)
	sc, ok := c.slots[slot]
	if !ok {
		return List{incomplete: incomplete}
	}
	var funcs []*ir.Function
	for _, ci := range sc.impls {
		if static != nil && !ci.class.IsSubclassOf(static) {
			continue
		}
		funcs = append(funcs, ci.fn)
	}
	return NewList(funcs, incomplete || sc.incomplete)
}

// RequirementCallees returns every witness that may implement r.
func (c *Cache) RequirementCallees(r *ir.Requirement) List {
	rc, ok := c.requirements[r]
	if !ok {
		if d, ok := c.defaults[r]; ok {
			return NewList([]*ir.Function{d}, !c.protocolKnowable(r.Protocol))
		}
		return List{incomplete: !c.protocolKnowable(r.Protocol)}
	}
	return NewList(rc.funcs, rc.incomplete)
}

// CalleeList returns the possible callees of a full apply site.
func (c *Cache) CalleeList(site ir.FullApplySite) List {
	return c.CalleeListOfValue(site.CalleeValue())
}

// CalleeListOfValue returns the functions a callee value may refer to.
func (c *Cache) CalleeListOfValue(v ir.Value) List {
	switch v := ir.StripFunctionConversions(v).(type) {
	case *ir.FunctionRef:
		return Exact(v.Func)
	case *ir.PartialApply:
		return c.CalleeListOfValue(v.Callee)
	case *ir.ClassMethod:
		return c.classMethodCallees(v)
	case *ir.WitnessMethod:
		return c.witnessMethodCallees(v)
	}
	return Unknown()
}

func (c *Cache) classMethodCallees(cm *ir.ClassMethod) List {
	slot := cm.Method.Slot()
	if cls := ir.ExactDynamicClass(cm.Operand); cls != nil {
		if fn, ok := c.dispatch[cls][slot]; ok {
			return Exact(fn)
		}
		return c.MethodCallees(cm.Method, cls)
	}
	return c.MethodCallees(cm.Method, ir.StaticClass(cm.Operand.Type()))
}

func (c *Cache) witnessMethodCallees(wm *ir.WitnessMethod) List {
	r := wm.Requirement
	if wm.LookupType.IsConcrete() {
		key := keyOf(wm.LookupType, r.Protocol)
		if entries, ok := c.witnesses[key]; ok && !c.declarations[key] {
			if fn, ok := entries[r]; ok {
				return Exact(fn)
			}
			if fn, ok := c.defaults[r]; ok {
				return Exact(fn)
			}
		}
	}
	return c.RequirementCallees(r)
}

// Destructors returns the deinitializers that may run when a value of
// type t is destroyed. With isExactType set, t is known to be the
// dynamic type of the value.
func (c *Cache) Destructors(t *ir.Type, isExactType bool) List {
	switch t.Kind {
	case ir.TypeClass:
		if !isExactType {
			return c.classDestructors(t.Class)
		}
		for _, d := range c.deallocators {
			if d.class == t.Class {
				return Exact(d.fn)
			}
		}
		decl := t.Class.DeinitDecl()
		if decl == nil {
			return List{}
		}
		return c.MethodCallees(decl, t.Class)
	case ir.TypeStruct:
		if t.Deinit != nil {
			return Exact(t.Deinit)
		}
		return List{}
	case ir.TypeExistential:
		var funcs []*ir.Function
		for _, p := range t.Protocols {
			for _, ct := range c.conformers[p] {
				switch {
				case ct.Kind == ir.TypeStruct && ct.Deinit != nil:
					funcs = append(funcs, ct.Deinit)
				case ct.Kind == ir.TypeClass:
					funcs = append(funcs, c.classDestructors(ct.Class).Functions()...)
				}
			}
		}
		return NewList(funcs, true)
	}
	return List{}
}

// classDestructors returns the deallocators of static and of every
// subclass of it that has a v-table. Deallocators are found per class,
// not per slot, so a subclass deallocator that overrides nothing is
// still listed.
func (c *Cache) classDestructors(static *ir.Class) List {
	var funcs []*ir.Function
	incomplete := !c.classKnowable(static)
	for _, d := range c.deallocators {
		if !d.class.IsSubclassOf(static) {
			continue
		}
		funcs = append(funcs, d.fn)
		if d.decl.Dynamic || !c.classKnowable(d.class) {
			incomplete = true
		}
	}
	return NewList(funcs, incomplete)
}

// Print writes the callee list of every method slot to w.
func (c *Cache) Print(w io.Writer) {
	for _, slot := range c.slotOrder {
		fmt.Fprintf(w, "callees for %s:\n", slot)
		c.MethodCallees(slot, nil).Print(w)
	}
}
