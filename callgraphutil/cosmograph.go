package callgraphutil

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/picatz/silopt/callgraph"
)

// WriteCosmograph writes the given callgraph.Graph as two CSV files,
// the edges to graph and per-node metadata to metadata, which can be
// used to generate a visual representation of the call graph using
// Cosmograph.
//
// https://cosmograph.app/run/
func WriteCosmograph(graph, metadata io.Writer, g *callgraph.Graph) error {
	graphWriter := csv.NewWriter(graph)
	metadataWriter := csv.NewWriter(metadata)

	if err := graphWriter.Write([]string{"source", "target", "site"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := metadataWriter.Write([]string{"id", "linkage", "func", "incomplete"}); err != nil {
		return fmt.Errorf("failed to write metadata header: %w", err)
	}

	for _, n := range g.All() {
		if err := metadataWriter.Write([]string{
			strconv.Itoa(n.ID),
			n.Func.Linkage.String(),
			n.Func.Name,
			strconv.FormatBool(n.Incomplete),
		}); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}

		for _, e := range n.Out {
			if err := graphWriter.Write([]string{
				strconv.Itoa(n.ID),
				strconv.Itoa(e.Callee.ID),
				e.Description(),
			}); err != nil {
				return fmt.Errorf("failed to write edge: %w", err)
			}
		}
	}

	graphWriter.Flush()
	metadataWriter.Flush()
	if err := graphWriter.Error(); err != nil {
		return err
	}
	return metadataWriter.Error()
}
