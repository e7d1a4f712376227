package analysis

import "github.com/picatz/silopt/ir"

// DeadEndBlocks records the blocks of a function from which no
// function exit is reachable, such as blocks leading to unreachable.
type DeadEndBlocks struct {
	live map[*ir.BasicBlock]bool
}

// ComputeDeadEndBlocks walks f backwards from its exits.
func ComputeDeadEndBlocks(f *ir.Function) *DeadEndBlocks {
	d := &DeadEndBlocks{live: make(map[*ir.BasicBlock]bool)}
	preds := make(map[*ir.BasicBlock][]*ir.BasicBlock)
	var work []*ir.BasicBlock
	for _, b := range f.Blocks {
		for _, s := range b.Successors() {
			preds[s] = append(preds[s], b)
		}
		switch b.Terminator().(type) {
		case *ir.Return, *ir.Throw:
			d.live[b] = true
			work = append(work, b)
		}
	}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, p := range preds[b] {
			if !d.live[p] {
				d.live[p] = true
				work = append(work, p)
			}
		}
	}
	return d
}

// IsDeadEnd reports whether no exit is reachable from b.
func (d *DeadEndBlocks) IsDeadEnd(b *ir.BasicBlock) bool { return !d.live[b] }

// DeadEndBlocksAnalysis caches DeadEndBlocks per function.
type DeadEndBlocksAnalysis struct {
	cache functionCache[*DeadEndBlocks]
}

// NewDeadEndBlocks returns an empty analysis.
func NewDeadEndBlocks() *DeadEndBlocksAnalysis { return &DeadEndBlocksAnalysis{} }

// Get returns the dead-end blocks of f.
func (a *DeadEndBlocksAnalysis) Get(f *ir.Function) *DeadEndBlocks {
	return a.cache.get(f, ComputeDeadEndBlocks)
}

// IsCached reports whether a result for f is cached.
func (a *DeadEndBlocksAnalysis) IsCached(f *ir.Function) bool { return a.cache.has(f) }

func (a *DeadEndBlocksAnalysis) Kind() Kind { return KindDeadEndBlocks }
func (a *DeadEndBlocksAnalysis) Invalidate() { a.cache.invalidateAll() }

func (a *DeadEndBlocksAnalysis) InvalidateFunction(f *ir.Function, k InvalidationKind) {
	if k&Branches != 0 {
		a.cache.invalidate(f)
	}
}

func (a *DeadEndBlocksAnalysis) InvalidateFunctionTables() {}

func (a *DeadEndBlocksAnalysis) NotifyAddedOrModifiedFunction(f *ir.Function) { a.cache.invalidate(f) }
func (a *DeadEndBlocksAnalysis) NotifyWillDeleteFunction(f *ir.Function) { a.cache.invalidate(f) }
