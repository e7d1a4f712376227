package callee

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/picatz/silopt/ir"
)

// A List is the set of functions a call may invoke. An incomplete list
// may miss callees that are not visible to the analysis; a complete
// list is exact. The empty complete list means the call provably
// invokes nothing.
type List struct {
	funcs      []*ir.Function
	incomplete bool
}

// NewList returns a list of the given functions. Duplicates are
// dropped, order is kept.
func NewList(funcs []*ir.Function, incomplete bool) List {
	l := List{incomplete: incomplete}
	for _, f := range funcs {
		if !slices.Contains(l.funcs, f) {
			l.funcs = append(l.funcs, f)
		}
	}
	return l
}

// Exact returns the complete list containing only f.
func Exact(f *ir.Function) List {
	return List{funcs: []*ir.Function{f}}
}

// Unknown returns the empty incomplete list.
func Unknown() List {
	return List{incomplete: true}
}

// Len returns the number of known callees.
func (l List) Len() int { return len(l.funcs) }

// At returns the i'th known callee.
func (l List) At(i int) *ir.Function { return l.funcs[i] }

// Functions returns a copy of the known callees.
func (l List) Functions() []*ir.Function { return slices.Clone(l.funcs) }

// IsIncomplete reports whether callees may be missing from l.
func (l List) IsIncomplete() bool { return l.incomplete }

// AllCalleesKnown reports whether l is complete.
func (l List) AllCalleesKnown() bool { return !l.incomplete }

// AllCalleesVisible reports whether l is complete and every callee has
// a body in the module.
func (l List) AllCalleesVisible() bool {
	if l.incomplete {
		return false
	}
	for _, f := range l.funcs {
		if f.IsExternalDeclaration() {
			return false
		}
	}
	return true
}

// Contains reports whether f is a known callee.
func (l List) Contains(f *ir.Function) bool { return slices.Contains(l.funcs, f) }

// Single returns the only callee of a complete singleton list.
func (l List) Single() (*ir.Function, bool) {
	if l.incomplete || len(l.funcs) != 1 {
		return nil, false
	}
	return l.funcs[0], true
}

func (l List) String() string {
	names := make([]string, len(l.funcs))
	for i, f := range l.funcs {
		names[i] = f.Name
	}
	s := "[" + strings.Join(names, ", ") + "]"
	if l.incomplete {
		s += " (incomplete)"
	}
	return s
}

// Print writes a multi-line description of l to w.
func (l List) Print(w io.Writer) {
	yes := "No"
	if l.incomplete {
		yes = "Yes"
	}
	fmt.Fprintf(w, "Incomplete callee list? : %s\n", yes)
	fmt.Fprintln(w, "Known callees:")
	for _, f := range l.funcs {
		fmt.Fprintf(w, "  %s\n", f.Name)
	}
}
