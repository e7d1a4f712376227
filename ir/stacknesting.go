package ir

import "fmt"

// VerifyStackNesting checks that stack allocations of f are freed in
// last-in first-out order along every path. Each violation is reported
// as a string.
func VerifyStackNesting(f *Function) []string {
	var problems []string
	entry := f.Entry()
	if entry == nil {
		return nil
	}
	seen := make(map[*BasicBlock]bool)
	var walk func(b *BasicBlock, stack []*AllocStack)
	walk = func(b *BasicBlock, stack []*AllocStack) {
		if seen[b] {
			return
		}
		seen[b] = true
		stack = append([]*AllocStack(nil), stack...)
		for _, inst := range b.Instrs {
			switch inst := inst.(type) {
			case *AllocStack:
				stack = append(stack, inst)
			case *DeallocStack:
				alloc, _ := inst.Operand.(*AllocStack)
				if len(stack) == 0 || stack[len(stack)-1] != alloc {
					problems = append(problems, fmt.Sprintf("%s: %s: dealloc_stack does not free the most recent allocation", f.Name, b))
					for i := len(stack) - 1; i >= 0; i-- {
						if stack[i] == alloc {
							stack = append(stack[:i], stack[i+1:]...)
							break
						}
					}
					continue
				}
				stack = stack[:len(stack)-1]
			}
		}
		for _, s := range b.Successors() {
			walk(s, stack)
		}
	}
	walk(entry, nil)
	return problems
}

// FixStackNesting restores last-in first-out order of stack
// deallocations by reordering each contiguous run of dealloc_stack
// instructions in a block so that later allocations are freed first.
// It reports whether anything moved.
func FixStackNesting(f *Function) bool {
	order := make(map[*AllocStack]int)
	for inst := range f.Instructions() {
		if a, ok := inst.(*AllocStack); ok {
			order[a] = len(order)
		}
	}
	changed := false
	for _, b := range f.Blocks {
		for i := 0; i < len(b.Instrs); {
			if _, ok := b.Instrs[i].(*DeallocStack); !ok {
				i++
				continue
			}
			j := i
			for j < len(b.Instrs) {
				if _, ok := b.Instrs[j].(*DeallocStack); !ok {
					break
				}
				j++
			}
			if sortDeallocs(b.Instrs[i:j], order) {
				changed = true
			}
			i = j
		}
	}
	return changed
}

func sortDeallocs(run []Instruction, order map[*AllocStack]int) bool {
	rank := func(inst Instruction) int {
		a, _ := inst.(*DeallocStack).Operand.(*AllocStack)
		return order[a]
	}
	changed := false
	// insertion sort by descending allocation order; runs are short
	for i := 1; i < len(run); i++ {
		for j := i; j > 0 && rank(run[j]) > rank(run[j-1]); j-- {
			run[j], run[j-1] = run[j-1], run[j]
			changed = true
		}
	}
	return changed
}
