package callgraphutil

import (
	"strings"

	"github.com/picatz/silopt/callgraph"
)

// Path is a sequence of callgraph.Edges, where each edge
// represents a call from a caller to a callee, making up
// a "chain" of calls, e.g.: main → foo → bar → baz.
type Path []*callgraph.Edge

// Empty returns true if the path is empty, false otherwise.
func (p Path) Empty() bool {
	return len(p) == 0
}

// First returns the first edge in the path, or nil if the path is empty.
func (p Path) First() *callgraph.Edge {
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

// Last returns the last edge in the path, or nil if the path is empty.
func (p Path) Last() *callgraph.Edge {
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

// String returns the path as function names separated by " → ".
func (p Path) String() string {
	var b strings.Builder
	for i, e := range p {
		if i == 0 {
			b.WriteString(e.Caller.Func.Name)
		}
		b.WriteString(" → ")
		b.WriteString(e.Callee.Func.Name)
	}
	return b.String()
}

// Paths is a collection of paths, which may be logically grouped
// together, e.g.: all paths from main to foo.
type Paths []Path

// Shortest returns the shortest path in the collection of paths, or
// nil. Of several paths of the same length the first one wins.
func (p Paths) Shortest() Path {
	if len(p) == 0 {
		return nil
	}
	shortest := p[0]
	for _, path := range p {
		if len(path) < len(shortest) {
			shortest = path
		}
	}
	return shortest
}

// Longest returns the longest path in the collection of paths, or nil.
// Of several paths of the same length the first one wins.
func (p Paths) Longest() Path {
	if len(p) == 0 {
		return nil
	}
	longest := p[0]
	for _, path := range p {
		if len(path) > len(longest) {
			longest = path
		}
	}
	return longest
}

// PathSearch returns the first path found from the start node
// to a node that matches the isMatch function. This is a depth
// first search, so it will return the first path found, which
// may not be the shortest path.
//
// A start node that matches yields an empty, non-nil path.
func PathSearch(start *callgraph.Node, isMatch func(*callgraph.Node) bool) Path {
	var (
		stack = make(Path, 0, 32)
		seen  = make(map[*callgraph.Node]bool)

		search func(n *callgraph.Node) Path
	)

	search = func(n *callgraph.Node) Path {
		if !seen[n] {
			seen[n] = true
			if isMatch(n) {
				return stack
			}
			for _, e := range n.Out {
				stack = append(stack, e) // push
				if found := search(e.Callee); found != nil {
					return found
				}
				stack = stack[:len(stack)-1] // pop
			}
		}
		return nil
	}
	return search(start)
}

// PathsSearch returns every distinct path from the start node to a
// node that matches the isMatch function. Paths end at the first
// matching node and do not revisit a node.
func PathsSearch(start *callgraph.Node, isMatch func(*callgraph.Node) bool) Paths {
	var (
		paths   Paths
		stack   = make(Path, 0, 32)
		onStack = make(map[*callgraph.Node]bool)

		search func(n *callgraph.Node)
	)

	search = func(n *callgraph.Node) {
		if n == nil || onStack[n] {
			return
		}
		if isMatch(n) {
			paths = append(paths, append(Path(nil), stack...))
			return
		}
		onStack[n] = true
		for _, e := range n.Out {
			stack = append(stack, e) // push
			search(e.Callee)
			stack = stack[:len(stack)-1] // pop
		}
		onStack[n] = false
	}
	search(start)

	return paths
}

// PathSearchCallTo returns the first path found from the start node
// to the function named fn.
func PathSearchCallTo(start *callgraph.Node, fn string) Path {
	return PathSearch(start, func(n *callgraph.Node) bool {
		return n.Func.Name == fn
	})
}

// PathsSearchCallTo returns the paths from the start node to the
// function named fn.
func PathsSearchCallTo(start *callgraph.Node, fn string) Paths {
	return PathsSearch(start, func(n *callgraph.Node) bool {
		return n != nil && n.Func != nil && n.Func.Name == fn
	})
}
