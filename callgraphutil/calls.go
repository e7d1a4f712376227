package callgraphutil

import (
	"cmp"
	"slices"

	"github.com/picatz/silopt/callgraph"
)

// CalleesOf returns the nodes called by the caller node, in ID order.
func CalleesOf(caller *callgraph.Node) Nodes {
	callees := make(Nodes, 0, len(caller.Out))
	for _, e := range caller.Out {
		callees = append(callees, e.Callee)
	}
	return uniqueByID(callees)
}

// CallersOf returns the nodes that call the callee node, in ID order.
func CallersOf(callee *callgraph.Node) Nodes {
	callers := make(Nodes, 0, len(callee.In))
	for _, e := range callee.In {
		callers = append(callers, e.Caller)
	}
	return uniqueByID(callers)
}

func uniqueByID(nodes Nodes) Nodes {
	slices.SortFunc(nodes, func(a, b *callgraph.Node) int { return cmp.Compare(a.ID, b.ID) })
	return slices.Compact(nodes)
}
