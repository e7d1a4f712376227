package callgraphutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/picatz/silopt/callgraph"
)

// WriteCSV writes the edges of the given callgraph.Graph to the given
// io.Writer in CSV format, one row per edge.
func WriteCSV(w io.Writer, g *callgraph.Graph) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{
		"source_func",
		"source_linkage",
		"target_func",
		"target_linkage",
		"call_kind",
		"site_index",
		"incomplete",
	}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, n := range g.All() {
		for _, e := range n.Out {
			if err := cw.Write([]string{
				n.Func.Name,
				n.Func.Linkage.String(),
				e.Callee.Func.Name,
				e.Callee.Func.Linkage.String(),
				e.Description(),
				strconv.Itoa(e.Site.Index),
				strconv.FormatBool(e.Site.Incomplete),
			}); err != nil {
				return fmt.Errorf("failed to write edge: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
