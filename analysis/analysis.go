// Package analysis holds the analyses the pass manager keeps cached
// across passes, and the protocol it uses to invalidate them.
package analysis

import (
	"fmt"
	"strings"

	"github.com/picatz/silopt/ir"
)

// Kind identifies an analysis.
type Kind int

const (
	KindBasicCallee Kind = iota
	KindDeadEndBlocks
	KindDominance
	KindPostDominance
)

func (k Kind) String() string {
	switch k {
	case KindBasicCallee:
		return "basic-callee"
	case KindDeadEndBlocks:
		return "dead-end-blocks"
	case KindDominance:
		return "dominance"
	case KindPostDominance:
		return "post-dominance"
	default:
		return fmt.Sprintf("analysis(%d)", int(k))
	}
}

// InvalidationKind describes what a pass changed in a function.
type InvalidationKind uint

const (
	Instructions InvalidationKind = 1 << iota
	Calls
	Branches
	Effects

	Nothing      InvalidationKind = 0
	FunctionBody                  = Instructions | Calls | Branches
	Everything                    = FunctionBody | Effects
)

// Has reports whether k includes every bit of o.
func (k InvalidationKind) Has(o InvalidationKind) bool { return k&o == o }

func (k InvalidationKind) String() string {
	if k == Nothing {
		return "nothing"
	}
	var parts []string
	for _, b := range []struct {
		bit  InvalidationKind
		name string
	}{
		{Instructions, "instructions"},
		{Calls, "calls"},
		{Branches, "branches"},
		{Effects, "effects"},
	} {
		if k&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}

// An Analysis is a cached fact about the module that the pass manager
// invalidates as passes change the IR.
type Analysis interface {
	Kind() Kind

	// Invalidate drops everything the analysis has cached.
	Invalidate()

	// InvalidateFunction drops what is cached for f after changes of
	// the given kind.
	InvalidateFunction(f *ir.Function, kind InvalidationKind)

	// InvalidateFunctionTables is called when v-tables or witness
	// tables changed.
	InvalidateFunctionTables()

	// NotifyAddedOrModifiedFunction is called after f was created or
	// its body was loaded.
	NotifyAddedOrModifiedFunction(f *ir.Function)

	// NotifyWillDeleteFunction is called before f is removed from the
	// module.
	NotifyWillDeleteFunction(f *ir.Function)
}

// functionCache memoizes a per-function result.
type functionCache[T any] struct {
	entries map[*ir.Function]T
}

func (c *functionCache[T]) get(f *ir.Function, compute func(*ir.Function) T) T {
	if v, ok := c.entries[f]; ok {
		return v
	}
	if c.entries == nil {
		c.entries = make(map[*ir.Function]T)
	}
	v := compute(f)
	c.entries[f] = v
	return v
}

func (c *functionCache[T]) has(f *ir.Function) bool {
	_, ok := c.entries[f]
	return ok
}

func (c *functionCache[T]) invalidate(f *ir.Function) { delete(c.entries, f) }

func (c *functionCache[T]) invalidateAll() { c.entries = nil }
