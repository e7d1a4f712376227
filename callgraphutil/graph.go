package callgraphutil

import (
	"fmt"
	"strings"

	"github.com/picatz/silopt/callgraph"
)

// GraphString returns a string representation of the call graph,
// which is a sequence of nodes separated by newlines, with the
// callees of each node indented by a tab. Nodes with call sites that
// may reach unknown functions are marked with a trailing "?".
func GraphString(g *callgraph.Graph) string {
	var b strings.Builder
	for _, n := range g.All() {
		b.WriteString(n.String())
		if n.Incomplete {
			b.WriteString(" ?")
		}
		b.WriteByte('\n')
		for _, callee := range CalleesOf(n) {
			fmt.Fprintf(&b, "\t→ %s\n", callee)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
