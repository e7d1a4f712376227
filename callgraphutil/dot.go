package callgraphutil

import (
	"bufio"
	"fmt"
	"io"

	"github.com/picatz/silopt/callgraph"
)

// WriteDOT writes the given callgraph.Graph to the given io.Writer in the
// DOT format, which can be used to generate a visual representation of the
// call graph using Graphviz. Nodes of functions with call sites that may
// reach unknown code are dashed, and so are the edges of those sites.
func WriteDOT(w io.Writer, g *callgraph.Graph) error {
	b := bufio.NewWriter(w)

	b.WriteString("digraph callgraph {\n")
	b.WriteString("\tgraph [fontname=\"Helvetica\"];\n")
	b.WriteString("\tnode [fontname=\"Helvetica\"];\n")
	b.WriteString("\tedge [fontname=\"Helvetica\"];\n")

	var edges Edges
	for _, n := range g.All() {
		style := ""
		if n.Incomplete {
			style = " style=dashed"
		}
		fmt.Fprintf(b, "\t%q [label=%q%s];\n", fmt.Sprint(n.ID), n.Func.Name, style)
		edges = append(edges, n.Out...)
	}

	for _, e := range edges {
		style := ""
		if e.Site.Incomplete {
			style = " style=dashed"
		}
		fmt.Fprintf(b, "\t%q -> %q [label=%q%s];\n", fmt.Sprint(e.Caller.ID), fmt.Sprint(e.Callee.ID), e.Description(), style)
	}

	b.WriteString("}\n")
	return b.Flush()
}
