// Package callgraph builds an explicit call graph of an ir.Module from
// the callee analysis.
package callgraph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/picatz/silopt/analysis"
	"github.com/picatz/silopt/callee"
	"github.com/picatz/silopt/funcorder"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
)

// DefaultConcurrency is the number of functions scanned at once when
// New is given no explicit limit.
const DefaultConcurrency = 10

// A Graph represents a call graph.
//
// Every function of the module has a node, including functions that
// nothing calls.
type Graph struct {
	sync.RWMutex
	Nodes map[*ir.Function]*Node // all nodes by function
	nodes []*Node                // all nodes by ID
}

// New returns the call graph of m. Callee lists come from bca, whose
// cache is built first so functions can be scanned concurrently.
// At most concurrency functions are scanned at once.
func New(ctx context.Context, m *ir.Module, bca *analysis.BasicCallee, concurrency int64) (*Graph, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	log := logging.FromContext(ctx).WithPrefix("callgraph")

	g := &Graph{Nodes: make(map[*ir.Function]*Node)}
	fns := m.Functions()
	for _, fn := range fns {
		g.CreateNode(fn)
	}
	bca.UpdateCache()

	var (
		ops   int64
		total = len(fns)
		s     = semaphore.NewWeighted(concurrency)
	)
	eg, ctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		if fn.IsExternalDeclaration() {
			continue
		}
		if err := s.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
		}
		eg.Go(func() error {
			defer s.Release(1)
			start := time.Now()
			g.addCalls(bca, fn)
			log.Trace("done processing %s (%d/%d) after %v", fn.Name, atomic.AddInt64(&ops, 1), total, time.Since(start))
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("error from errgroup: %w", err)
	}

	for _, n := range g.nodes {
		n.sortEdges()
	}
	log.Debug("built call graph with %d nodes", len(g.nodes))
	return g, nil
}

func (g *Graph) addCalls(bca *analysis.BasicCallee, fn *ir.Function) {
	caller := g.Node(fn)
	index := make(map[ir.Instruction]int)
	i := 0
	for inst := range fn.Instructions() {
		index[inst] = i
		i++
	}
	funcorder.ForEachCallee(bca, fn, func(inst ir.Instruction, l callee.List) {
		if l.IsIncomplete() {
			caller.Lock()
			caller.Incomplete = true
			caller.Unlock()
		}
		for _, target := range l.Functions() {
			AddEdge(caller, &Site{Instr: inst, Index: index[inst], Incomplete: l.IsIncomplete()}, g.CreateNode(target))
		}
	})
}

// CreateNode returns the Node for fn, creating it if not present.
func (g *Graph) CreateNode(fn *ir.Function) *Node {
	g.Lock()
	defer g.Unlock()
	n, ok := g.Nodes[fn]
	if !ok {
		n = &Node{Func: fn, ID: len(g.nodes)}
		g.Nodes[fn] = n
		g.nodes = append(g.nodes, n)
	}
	return n
}

// Node returns the node of fn, or nil.
func (g *Graph) Node(fn *ir.Function) *Node {
	g.RLock()
	defer g.RUnlock()
	return g.Nodes[fn]
}

// All returns every node in ID order.
func (g *Graph) All() []*Node {
	g.RLock()
	defer g.RUnlock()
	return slices.Clone(g.nodes)
}

// Lookup returns the node of the function named name, or nil.
func (g *Graph) Lookup(name string) *Node {
	for _, n := range g.All() {
		if n.Func.Name == name {
			return n
		}
	}
	return nil
}

// Roots returns the nodes of functions that may be called from outside
// the module, in ID order.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, n := range g.All() {
		if m := n.Func.Module(); n.Func.Linkage.IsPossiblyUsedExternally(m != nil && m.WholeModule) {
			roots = append(roots, n)
		}
	}
	return roots
}

// A Node represents a node in a call graph.
type Node struct {
	sync.RWMutex
	Func       *ir.Function // the function this node represents
	ID         int          // 0-based sequence number
	In         []*Edge      // incoming call edges (n.In[*].Callee == n)
	Out        []*Edge      // outgoing call edges (n.Out[*].Caller == n)
	Incomplete bool         // some call site of Func may reach unknown functions
}

func (n *Node) String() string {
	return fmt.Sprintf("n%d:%s", n.ID, n.Func.Name)
}

func (n *Node) sortEdges() {
	slices.SortFunc(n.Out, func(a, b *Edge) int {
		return cmp.Or(cmp.Compare(a.Site.Index, b.Site.Index), cmp.Compare(a.Callee.ID, b.Callee.ID))
	})
	slices.SortFunc(n.In, func(a, b *Edge) int {
		return cmp.Or(cmp.Compare(a.Caller.ID, b.Caller.ID), cmp.Compare(a.Site.Index, b.Site.Index))
	})
}

// A Site is the instruction an edge originates from.
type Site struct {
	Instr      ir.Instruction
	Index      int  // position of Instr in the caller
	Incomplete bool // the callee list of Instr is incomplete
}

// A Edge represents an edge in the call graph.
type Edge struct {
	Caller *Node
	Site   *Site
	Callee *Node
}

func (e Edge) String() string {
	return fmt.Sprintf("%s --> %s", e.Caller, e.Callee)
}

// Description says how the call is made.
func (e Edge) Description() string {
	switch inst := e.Site.Instr.(type) {
	case *ir.StrongRelease, *ir.ReleaseValue, *ir.DestroyValue:
		return "deinit call"
	case *ir.Builtin:
		return "run-once call"
	case ir.FullApplySite:
		switch ir.StripFunctionConversions(inst.CalleeValue()).(type) {
		case *ir.FunctionRef:
			return "static call"
		case *ir.ClassMethod:
			return "class method call"
		case *ir.WitnessMethod:
			return "witness method call"
		case *ir.PartialApply:
			return "closure call"
		}
		return "dynamic call"
	}
	return "synthetic call"
}

// AddEdge adds the edge (caller, site, callee) to the call graph,
// unless an edge for the same site and callee exists.
func AddEdge(caller *Node, site *Site, callee *Node) {
	e := &Edge{caller, site, callee}
	same := func(o *Edge) bool {
		return o.Caller == caller && o.Callee == callee && o.Site.Instr == site.Instr
	}

	callee.Lock()
	if !slices.ContainsFunc(callee.In, same) {
		callee.In = append(callee.In, e)
	}
	callee.Unlock()

	caller.Lock()
	if !slices.ContainsFunc(caller.Out, same) {
		caller.Out = append(caller.Out, e)
	}
	caller.Unlock()
}

// VisitEdges visits all the edges in graph g in depth-first order.
// The edge function is called for each edge in postorder. If it
// returns non-nil, visitation stops and VisitEdges returns that
// value.
func (g *Graph) VisitEdges(edge func(*Edge) error) error {
	seen := make(map[*Node]bool)
	var visit func(n *Node) error
	visit = func(n *Node) error {
		if !seen[n] {
			seen[n] = true
			for _, e := range n.Out {
				if err := visit(e.Callee); err != nil {
					return err
				}
				if err := edge(e); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, n := range g.All() {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
