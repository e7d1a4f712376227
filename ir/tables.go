package ir

// VTableEntryKind records how a v-table entry came to be.
type VTableEntryKind int

const (
	VTableEntryNormal VTableEntryKind = iota
	VTableEntryInherited
	VTableEntryOverride
)

func (k VTableEntryKind) String() string {
	switch k {
	case VTableEntryInherited:
		return "inherited"
	case VTableEntryOverride:
		return "override"
	default:
		return "normal"
	}
}

// A VTableEntry maps a method declaration to the function implementing
// it for the table's class.
type VTableEntry struct {
	Method *MethodDecl
	Impl   *Function
	Kind   VTableEntryKind
}

// A VTable lists the implementation of every dispatchable method of a
// class.
type VTable struct {
	Class   *Class
	Entries []VTableEntry
}

// Lookup returns the implementation of the slot of m.
func (vt *VTable) Lookup(m *MethodDecl) (*Function, bool) {
	slot := m.Slot()
	for _, e := range vt.Entries {
		if e.Method.Slot() == slot {
			return e.Impl, true
		}
	}
	return nil, false
}

// SetEntry adds e, replacing any entry for the same slot.
func (vt *VTable) SetEntry(e VTableEntry) {
	slot := e.Method.Slot()
	for i := range vt.Entries {
		if vt.Entries[i].Method.Slot() == slot {
			vt.Entries[i] = e
			return
		}
	}
	vt.Entries = append(vt.Entries, e)
}

// A WitnessEntry maps a requirement to its witness.
type WitnessEntry struct {
	Requirement *Requirement
	Witness     *Function
}

// A WitnessTable records how Type conforms to Protocol. A declaration
// table is known to exist but its entries are not available.
type WitnessTable struct {
	Type          *Type
	Protocol      *Protocol
	Entries       []WitnessEntry
	IsDeclaration bool
}

// Lookup returns the witness for r, if the table has one.
func (wt *WitnessTable) Lookup(r *Requirement) (*Function, bool) {
	return lookupWitness(wt.Entries, r)
}

// SetEntry adds or replaces the witness for r.
func (wt *WitnessTable) SetEntry(r *Requirement, fn *Function) {
	wt.Entries = setWitness(wt.Entries, r, fn)
}

// A DefaultWitnessTable supplies witnesses for requirements a
// conformance leaves out.
type DefaultWitnessTable struct {
	Protocol *Protocol
	Entries  []WitnessEntry
}

// Lookup returns the default witness for r.
func (dt *DefaultWitnessTable) Lookup(r *Requirement) (*Function, bool) {
	return lookupWitness(dt.Entries, r)
}

// SetEntry adds or replaces the default witness for r.
func (dt *DefaultWitnessTable) SetEntry(r *Requirement, fn *Function) {
	dt.Entries = setWitness(dt.Entries, r, fn)
}

func lookupWitness(entries []WitnessEntry, r *Requirement) (*Function, bool) {
	for _, e := range entries {
		if e.Requirement == r {
			return e.Witness, true
		}
	}
	return nil, false
}

func setWitness(entries []WitnessEntry, r *Requirement, fn *Function) []WitnessEntry {
	for i := range entries {
		if entries[i].Requirement == r {
			entries[i].Witness = fn
			return entries
		}
	}
	return append(entries, WitnessEntry{Requirement: r, Witness: fn})
}
