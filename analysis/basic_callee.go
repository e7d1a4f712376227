package analysis

import (
	"fmt"
	"io"

	"github.com/picatz/silopt/callee"
	"github.com/picatz/silopt/ir"
)

// MemoryBehavior classifies what an instruction may do to memory.
type MemoryBehavior int

const (
	MemoryNone MemoryBehavior = iota
	MemoryMayRead
	MemoryMayWrite
	MemoryMayReadWrite
	MemoryMayHaveSideEffects
)

func (b MemoryBehavior) String() string {
	switch b {
	case MemoryNone:
		return "none"
	case MemoryMayRead:
		return "may-read"
	case MemoryMayWrite:
		return "may-write"
	case MemoryMayReadWrite:
		return "may-read-write"
	case MemoryMayHaveSideEffects:
		return "may-have-side-effects"
	default:
		return fmt.Sprintf("memory(%d)", int(b))
	}
}

// MayWrite reports whether b includes writes.
func (b MemoryBehavior) MayWrite() bool { return b >= MemoryMayWrite }

// Callbacks let a later component, usually the side-effect pass,
// refine the conservative answers of BasicCallee.
type Callbacks struct {
	// MemoryBehavior classifies a call using callee effects.
	MemoryBehavior func(site ir.FullApplySite, observeRetains bool, bca *BasicCallee) MemoryBehavior

	// IsDeinitBarrier reports whether inst may synchronize with a
	// deinitializer.
	IsDeinitBarrier func(inst ir.Instruction, bca *BasicCallee) bool
}

// BasicCallee is the analysis owning the callee cache of a module. The
// cache is built lazily on first query and dropped whenever function
// tables change.
type BasicCallee struct {
	module    *ir.Module
	cache     *callee.Cache
	callbacks Callbacks
}

// NewBasicCallee returns the analysis for m with an empty cache.
func NewBasicCallee(m *ir.Module) *BasicCallee {
	return &BasicCallee{module: m}
}

// SetCallbacks installs the refinement callbacks for this analysis.
func (a *BasicCallee) SetCallbacks(cb Callbacks) { a.callbacks = cb }

func (a *BasicCallee) Kind() Kind { return KindBasicCallee }

// Invalidate drops the cache.
func (a *BasicCallee) Invalidate() { a.cache = nil }

// InvalidateFunction does nothing: function bodies never change the
// tables the cache is built from.
func (a *BasicCallee) InvalidateFunction(*ir.Function, InvalidationKind) {}

// InvalidateFunctionTables drops the cache.
func (a *BasicCallee) InvalidateFunctionTables() { a.cache = nil }

func (a *BasicCallee) NotifyAddedOrModifiedFunction(*ir.Function) {}

// NotifyWillDeleteFunction drops the cache, which may list f as a
// callee.
func (a *BasicCallee) NotifyWillDeleteFunction(*ir.Function) { a.cache = nil }

// HasCache reports whether a cache is currently built.
func (a *BasicCallee) HasCache() bool { return a.cache != nil }

// UpdateCache builds the cache if there is none.
func (a *BasicCallee) UpdateCache() {
	if a.cache == nil {
		a.cache = callee.NewCache(a.module)
	}
}

// Cache returns the current cache, building it if necessary.
func (a *BasicCallee) Cache() *callee.Cache {
	a.UpdateCache()
	return a.cache
}

// CalleeList returns the possible callees of site.
func (a *BasicCallee) CalleeList(site ir.FullApplySite) callee.List {
	return a.Cache().CalleeList(site)
}

// CalleeListOfValue returns the functions callee value v may refer to.
func (a *BasicCallee) CalleeListOfValue(v ir.Value) callee.List {
	return a.Cache().CalleeListOfValue(v)
}

// Destructors returns the deinitializers that may run when a value of
// type t is destroyed.
func (a *BasicCallee) Destructors(t *ir.Type, isExactType bool) callee.List {
	return a.Cache().Destructors(t, isExactType)
}

// MemoryBehavior classifies the effect of site on memory. Without a
// callback every call may have side effects.
func (a *BasicCallee) MemoryBehavior(site ir.FullApplySite, observeRetains bool) MemoryBehavior {
	if a.callbacks.MemoryBehavior == nil {
		return MemoryMayHaveSideEffects
	}
	return a.callbacks.MemoryBehavior(site, observeRetains, a)
}

// IsDeinitBarrier reports whether inst may synchronize with a
// deinitializer, which forbids moving the end of a lifetime across it.
func (a *BasicCallee) IsDeinitBarrier(inst ir.Instruction) bool {
	if a.callbacks.IsDeinitBarrier == nil {
		return MayBeDeinitBarrierNotConsideringSideEffects(inst)
	}
	return a.callbacks.IsDeinitBarrier(inst, a)
}

// MayBeDeinitBarrierNotConsideringSideEffects is the structural answer
// used before effects are known: calls, memory accesses, releases and
// side-effecting builtins are barriers.
func MayBeDeinitBarrierNotConsideringSideEffects(inst ir.Instruction) bool {
	switch inst := inst.(type) {
	case *ir.Apply, *ir.TryApply, *ir.BeginApply:
		return true
	case *ir.Load, *ir.Store:
		return true
	case *ir.StrongRelease, *ir.ReleaseValue, *ir.DestroyValue:
		return true
	case *ir.Builtin:
		return inst.SideEffects || inst.IsRunOnce()
	case *ir.Opaque:
		return inst.MayRead || inst.MayWrite
	}
	return false
}

// Print writes the callee cache to w.
func (a *BasicCallee) Print(w io.Writer) {
	if a.cache == nil {
		fmt.Fprintln(w, "<no cache>")
		return
	}
	a.cache.Print(w)
}
