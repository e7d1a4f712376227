package passes

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/picatz/silopt/funcorder"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/passmanager"
)

// InstructionKind returns the printed name of the kind of inst, such
// as "apply" or "class_method".
func InstructionKind(inst ir.Instruction) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", inst), "*ir.")
	var b strings.Builder
	for i, r := range name {
		if 'A' <= r && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PrintInstCount writes the number of instructions of each kind in the
// module.
func PrintInstCount(ctx *passmanager.Context) {
	counts := make(map[string]int)
	total := 0
	for _, f := range ctx.Module().Functions() {
		for inst := range f.Instructions() {
			counts[InstructionKind(inst)]++
			total++
		}
	}
	w := ctx.Output()
	fmt.Fprintln(w, "instruction counts:")
	for _, kind := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(w, "  %s: %d\n", kind, counts[kind])
	}
	ctx.Logger().Info("%d instructions in %d functions", total, ctx.Module().NumFunctions())
}

// PrintCalleeAnalysis writes the callee list of every call site in the
// module.
func PrintCalleeAnalysis(ctx *passmanager.Context) {
	bca := ctx.CalleeAnalysis()
	w := ctx.Output()
	for _, f := range sortedFunctions(ctx.Module()) {
		if f.IsExternalDeclaration() {
			continue
		}
		n := 0
		for inst := range f.Instructions() {
			site, ok := ir.IsFullApplySite(inst)
			if !ok {
				continue
			}
			if n == 0 {
				fmt.Fprintf(w, "%s:\n", f.Name)
			}
			fmt.Fprintf(w, "  %s #%d in %s: %s\n", InstructionKind(inst), n, inst.Block(), bca.CalleeList(site))
			n++
		}
	}
}

// PrintFunctionOrder writes the bottom-up function order, one strongly
// connected component at a time.
func PrintFunctionOrder(ctx *passmanager.Context) {
	w := ctx.Output()
	fmt.Fprintln(w, "Bottom up function order:")
	for i, scc := range funcorder.New(ctx.Module(), ctx.CalleeAnalysis()).SCCs() {
		fmt.Fprintf(w, " SCC #%d:\n", i)
		for _, f := range scc {
			fmt.Fprintf(w, "  %s\n", f.Name)
		}
	}
}

func sortedFunctions(m *ir.Module) []*ir.Function {
	fns := m.Functions()
	slices.SortFunc(fns, func(a, b *ir.Function) int { return cmp.Compare(a.Name, b.Name) })
	return fns
}
