package ir

import (
	"fmt"
	"iter"
	"slices"
)

// Linkage describes where a function is visible and whether its body
// lives in this module.
type Linkage int

const (
	LinkagePublic Linkage = iota
	LinkagePublicNonABI
	LinkageHidden
	LinkageShared
	LinkagePrivate
	LinkagePublicExternal
	LinkageHiddenExternal
)

func (l Linkage) String() string {
	switch l {
	case LinkagePublic:
		return "public"
	case LinkagePublicNonABI:
		return "public_non_abi"
	case LinkageHidden:
		return "hidden"
	case LinkageShared:
		return "shared"
	case LinkagePrivate:
		return "private"
	case LinkagePublicExternal:
		return "public_external"
	case LinkageHiddenExternal:
		return "hidden_external"
	default:
		return fmt.Sprintf("linkage(%d)", int(l))
	}
}

// IsExternal reports whether the definition of a function with this
// linkage lives in another module.
func (l Linkage) IsExternal() bool {
	return l == LinkagePublicExternal || l == LinkageHiddenExternal
}

// IsPossiblyUsedExternally reports whether code outside the module may
// reference a function with this linkage. Hidden symbols are only
// visible to other files of the same module, which is the whole
// program when wholeModule is set.
func (l Linkage) IsPossiblyUsedExternally(wholeModule bool) bool {
	switch l {
	case LinkagePublic, LinkagePublicNonABI, LinkagePublicExternal:
		return true
	case LinkageHidden, LinkageHiddenExternal:
		return !wholeModule
	}
	return false
}

// Effects summarizes what a function may do when called, as computed
// by the side-effect pass. A nil *Effects means nothing is known.
type Effects struct {
	Reads    bool
	Writes   bool
	Releases bool // may release a reference, running arbitrary deinits
	Unknown  bool
}

// Union merges o into e and reports whether e changed.
func (e *Effects) Union(o Effects) bool {
	before := *e
	e.Reads = e.Reads || o.Reads
	e.Writes = e.Writes || o.Writes
	e.Releases = e.Releases || o.Releases
	e.Unknown = e.Unknown || o.Unknown
	return before != *e
}

func (e *Effects) String() string {
	if e == nil {
		return "unknown"
	}
	return fmt.Sprintf("reads=%v writes=%v releases=%v unknown=%v", e.Reads, e.Writes, e.Releases, e.Unknown)
}

// A Function is a named unit of code. A function without blocks is an
// external declaration.
type Function struct {
	Name       string
	Linkage    Linkage
	Serialized bool
	Blocks     []*BasicBlock
	Effects    *Effects

	module *Module
}

// Module returns the module that owns f.
func (f *Function) Module() *Module { return f.module }

// IsExternalDeclaration reports whether f has no body in this module.
func (f *Function) IsExternalDeclaration() bool { return len(f.Blocks) == 0 }

// Entry returns the entry block of f, or nil for declarations.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock appends a new, empty block to f.
func (f *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{Index: len(f.Blocks), parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// RemoveBlock removes b from f and renumbers the remaining blocks.
func (f *Function) RemoveBlock(b *BasicBlock) {
	i := slices.Index(f.Blocks, b)
	if i < 0 {
		return
	}
	f.Blocks = slices.Delete(f.Blocks, i, i+1)
	for j, blk := range f.Blocks {
		blk.Index = j
	}
	for _, inst := range b.Instrs {
		inst.setBlock(nil)
	}
	b.parent = nil
}

// Instructions iterates over every instruction of f in block order.
// The function must not be mutated during iteration.
func (f *Function) Instructions() iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		for _, b := range f.Blocks {
			for _, inst := range b.Instrs {
				if !yield(inst) {
					return
				}
			}
		}
	}
}

// NumInstructions returns the number of instructions in f.
func (f *Function) NumInstructions() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

func (f *Function) String() string { return f.Name }

// A BasicBlock is a straight-line sequence of instructions ending in a
// Terminator.
type BasicBlock struct {
	Index  int
	Args   []*Argument
	Instrs []Instruction

	parent *Function
}

// Parent returns the function containing b.
func (b *BasicBlock) Parent() *Function { return b.parent }

// AddArgument appends a block argument of type t.
func (b *BasicBlock) AddArgument(t *Type) *Argument {
	a := &Argument{Index: len(b.Args), Typ: t, block: b}
	b.Args = append(b.Args, a)
	return a
}

// Append adds inst to the end of b.
func (b *BasicBlock) Append(inst Instruction) {
	inst.setBlock(b)
	b.Instrs = append(b.Instrs, inst)
}

// InsertBefore inserts inst immediately before the instruction before,
// which must be in b.
func (b *BasicBlock) InsertBefore(inst, before Instruction) {
	i := slices.Index(b.Instrs, before)
	if i < 0 {
		panic(fmt.Sprintf("ir: instruction not in %s", b))
	}
	inst.setBlock(b)
	b.Instrs = slices.Insert(b.Instrs, i, inst)
}

// Remove deletes inst from b. It reports whether inst was found.
func (b *BasicBlock) Remove(inst Instruction) bool {
	i := slices.Index(b.Instrs, inst)
	if i < 0 {
		return false
	}
	b.Instrs = slices.Delete(b.Instrs, i, i+1)
	inst.setBlock(nil)
	return true
}

// IndexOf returns the position of inst in b, or -1.
func (b *BasicBlock) IndexOf(inst Instruction) int {
	return slices.Index(b.Instrs, inst)
}

// Terminator returns the final instruction of b if it is a terminator.
func (b *BasicBlock) Terminator() Terminator {
	if len(b.Instrs) == 0 {
		return nil
	}
	t, _ := b.Instrs[len(b.Instrs)-1].(Terminator)
	return t
}

// Successors returns the successor blocks of b.
func (b *BasicBlock) Successors() []*BasicBlock {
	if t := b.Terminator(); t != nil {
		return t.Successors()
	}
	return nil
}

// Predecessors returns the blocks of the parent function that branch
// to b, in block order.
func (b *BasicBlock) Predecessors() []*BasicBlock {
	var preds []*BasicBlock
	if b.parent == nil {
		return nil
	}
	for _, p := range b.parent.Blocks {
		if slices.Contains(p.Successors(), b) {
			preds = append(preds, p)
		}
	}
	return preds
}

func (b *BasicBlock) String() string { return fmt.Sprintf("bb%d", b.Index) }
