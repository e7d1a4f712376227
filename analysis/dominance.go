package analysis

import (
	"slices"

	"github.com/picatz/silopt/ir"
)

// A DomTree is the (post-)dominator tree of a function. For
// post-dominance, blocks that cannot reach an exit are not in the
// tree.
type DomTree struct {
	idom     map[*ir.BasicBlock]*ir.BasicBlock
	children map[*ir.BasicBlock][]*ir.BasicBlock
	roots    []*ir.BasicBlock
}

// ComputeDomTree computes the dominator tree of f.
func ComputeDomTree(f *ir.Function) *DomTree {
	entry := f.Entry()
	if entry == nil {
		return &DomTree{}
	}
	return buildDomTree([]*ir.BasicBlock{entry}, (*ir.BasicBlock).Successors)
}

// ComputePostDomTree computes the post-dominator tree of f, rooted at
// a virtual exit joining every returning or throwing block.
func ComputePostDomTree(f *ir.Function) *DomTree {
	preds := make(map[*ir.BasicBlock][]*ir.BasicBlock)
	var exits []*ir.BasicBlock
	for _, b := range f.Blocks {
		for _, s := range b.Successors() {
			preds[s] = append(preds[s], b)
		}
		switch b.Terminator().(type) {
		case *ir.Return, *ir.Throw:
			exits = append(exits, b)
		}
	}
	return buildDomTree(exits, func(b *ir.BasicBlock) []*ir.BasicBlock { return preds[b] })
}

// buildDomTree implements "A Simple, Fast Dominance Algorithm" by
// Cooper, Harvey and Kennedy over the graph defined by succs. The
// entries hang off a virtual root, represented by nil.
func buildDomTree(entries []*ir.BasicBlock, succs func(*ir.BasicBlock) []*ir.BasicBlock) *DomTree {
	// Postorder numbering from the virtual root.
	po := make(map[*ir.BasicBlock]int)
	var order []*ir.BasicBlock
	visited := make(map[*ir.BasicBlock]bool)
	var dfs func(b *ir.BasicBlock)
	dfs = func(b *ir.BasicBlock) {
		visited[b] = true
		for _, s := range succs(b) {
			if !visited[s] {
				dfs(s)
			}
		}
		po[b] = len(order)
		order = append(order, b)
	}
	for _, e := range entries {
		if !visited[e] {
			dfs(e)
		}
	}
	rootNum := len(order)

	preds := make(map[*ir.BasicBlock][]*ir.BasicBlock)
	for _, b := range order {
		for _, s := range succs(b) {
			preds[s] = append(preds[s], b)
		}
	}
	isEntry := make(map[*ir.BasicBlock]bool, len(entries))
	for _, e := range entries {
		isEntry[e] = true
	}

	num := func(b *ir.BasicBlock) int {
		if b == nil {
			return rootNum
		}
		return po[b]
	}
	idom := make(map[*ir.BasicBlock]*ir.BasicBlock, len(order))
	done := make(map[*ir.BasicBlock]bool, len(order))
	intersect := func(a, b *ir.BasicBlock) *ir.BasicBlock {
		for a != b {
			for num(a) < num(b) {
				a = idom[a]
			}
			for num(b) < num(a) {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for i := len(order) - 1; i >= 0; i-- {
			b := order[i]
			var newIdom *ir.BasicBlock
			found := false
			if isEntry[b] {
				found = true // the virtual root
			}
			for _, p := range preds[b] {
				if !done[p] {
					continue
				}
				if !found {
					newIdom, found = p, true
					continue
				}
				newIdom = intersect(p, newIdom)
			}
			if !found {
				continue
			}
			if !done[b] || idom[b] != newIdom {
				idom[b] = newIdom
				done[b] = true
				changed = true
			}
		}
	}

	t := &DomTree{
		idom:     idom,
		children: make(map[*ir.BasicBlock][]*ir.BasicBlock),
	}
	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		if !done[b] {
			continue
		}
		if p := idom[b]; p == nil {
			t.roots = append(t.roots, b)
		} else {
			t.children[p] = append(t.children[p], b)
		}
	}
	return t
}

// Contains reports whether b is in the tree.
func (t *DomTree) Contains(b *ir.BasicBlock) bool {
	_, ok := t.idom[b]
	return ok
}

// ImmediateDominator returns the parent of b in the tree, or nil for
// roots and blocks not in the tree.
func (t *DomTree) ImmediateDominator(b *ir.BasicBlock) *ir.BasicBlock { return t.idom[b] }

// Children returns the blocks immediately dominated by b.
func (t *DomTree) Children(b *ir.BasicBlock) []*ir.BasicBlock { return slices.Clone(t.children[b]) }

// Roots returns the roots of the tree: the entry block for dominance,
// the exit blocks for post-dominance.
func (t *DomTree) Roots() []*ir.BasicBlock { return slices.Clone(t.roots) }

// Dominates reports whether a dominates b. Every block in the tree
// dominates itself.
func (t *DomTree) Dominates(a, b *ir.BasicBlock) bool {
	if !t.Contains(a) || !t.Contains(b) {
		return false
	}
	for x := b; x != nil; x = t.idom[x] {
		if x == a {
			return true
		}
	}
	return false
}

// InstructionDominates reports whether a dominates b at instruction
// granularity.
func (t *DomTree) InstructionDominates(a, b ir.Instruction) bool {
	ab, bb := a.Block(), b.Block()
	if ab == bb {
		return ab.IndexOf(a) <= ab.IndexOf(b)
	}
	return t.Dominates(ab, bb)
}

// DominanceAnalysis caches dominator trees per function.
type DominanceAnalysis struct {
	kind    Kind
	compute func(*ir.Function) *DomTree
	cache   functionCache[*DomTree]
}

// NewDominance returns the dominator tree analysis.
func NewDominance() *DominanceAnalysis {
	return &DominanceAnalysis{kind: KindDominance, compute: ComputeDomTree}
}

// NewPostDominance returns the post-dominator tree analysis.
func NewPostDominance() *DominanceAnalysis {
	return &DominanceAnalysis{kind: KindPostDominance, compute: ComputePostDomTree}
}

// Get returns the tree of f.
func (a *DominanceAnalysis) Get(f *ir.Function) *DomTree { return a.cache.get(f, a.compute) }

// IsCached reports whether a tree for f is cached.
func (a *DominanceAnalysis) IsCached(f *ir.Function) bool { return a.cache.has(f) }

func (a *DominanceAnalysis) Kind() Kind { return a.kind }
func (a *DominanceAnalysis) Invalidate() { a.cache.invalidateAll() }

func (a *DominanceAnalysis) InvalidateFunction(f *ir.Function, k InvalidationKind) {
	if k&Branches != 0 {
		a.cache.invalidate(f)
	}
}

func (a *DominanceAnalysis) InvalidateFunctionTables() {}

func (a *DominanceAnalysis) NotifyAddedOrModifiedFunction(f *ir.Function) { a.cache.invalidate(f) }
func (a *DominanceAnalysis) NotifyWillDeleteFunction(f *ir.Function) { a.cache.invalidate(f) }
