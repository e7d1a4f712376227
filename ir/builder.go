package ir

// A Builder appends instructions to a block, or inserts them before a
// fixed instruction.
type Builder struct {
	block  *BasicBlock
	before Instruction
}

// NewBuilder returns a builder appending to b.
func NewBuilder(b *BasicBlock) *Builder {
	return &Builder{block: b}
}

// NewBuilderBefore returns a builder inserting before inst.
func NewBuilderBefore(inst Instruction) *Builder {
	return &Builder{block: inst.Block(), before: inst}
}

// SetInsertionBlock makes the builder append to b.
func (b *Builder) SetInsertionBlock(blk *BasicBlock) {
	b.block = blk
	b.before = nil
}

// Block returns the block the builder inserts into.
func (b *Builder) Block() *BasicBlock { return b.block }

// Insert places inst at the builder's insertion point.
func (b *Builder) Insert(inst Instruction) {
	if b.before != nil {
		b.block.InsertBefore(inst, b.before)
		return
	}
	b.block.Append(inst)
}

func (b *Builder) FunctionRef(f *Function) *FunctionRef {
	v := &FunctionRef{Func: f}
	b.Insert(v)
	return v
}

func (b *Builder) ClassMethod(operand Value, m *MethodDecl) *ClassMethod {
	v := &ClassMethod{Operand: operand, Method: m}
	b.Insert(v)
	return v
}

func (b *Builder) WitnessMethod(lookup *Type, r *Requirement) *WitnessMethod {
	v := &WitnessMethod{LookupType: lookup, Requirement: r}
	b.Insert(v)
	return v
}

func (b *Builder) Metatype(instance *Type) *Metatype {
	v := &Metatype{Instance: instance}
	b.Insert(v)
	return v
}

func (b *Builder) AllocRef(c *Class) *AllocRef {
	v := &AllocRef{Class: c}
	b.Insert(v)
	return v
}

func (b *Builder) Upcast(operand Value, to *Type) *Upcast {
	v := &Upcast{Operand: operand, To: to}
	b.Insert(v)
	return v
}

func (b *Builder) ConvertFunction(operand Value, to *Type) *ConvertFunction {
	v := &ConvertFunction{Operand: operand, To: to}
	b.Insert(v)
	return v
}

func (b *Builder) PartialApply(callee Value, args ...Value) *PartialApply {
	v := &PartialApply{Callee: callee, Args: args}
	b.Insert(v)
	return v
}

// Apply inserts a call of callee with no result.
func (b *Builder) Apply(callee Value, args ...Value) *Apply {
	return b.ApplyResult(nil, callee, args...)
}

// ApplyResult inserts a call of callee producing a value of type result.
func (b *Builder) ApplyResult(result *Type, callee Value, args ...Value) *Apply {
	v := &Apply{Callee: callee, Args: args, Result: result}
	b.Insert(v)
	return v
}

func (b *Builder) TryApply(callee Value, normal, errBlock *BasicBlock, args ...Value) *TryApply {
	v := &TryApply{Callee: callee, Args: args, Normal: normal, Error: errBlock}
	b.Insert(v)
	return v
}

func (b *Builder) BeginApply(callee Value, args ...Value) *BeginApply {
	v := &BeginApply{Callee: callee, Args: args}
	b.Insert(v)
	return v
}

func (b *Builder) Builtin(name string, args ...Value) *Builtin {
	v := &Builtin{Name: name, Args: args}
	b.Insert(v)
	return v
}

func (b *Builder) StrongRelease(operand Value) *StrongRelease {
	v := &StrongRelease{Operand: operand}
	b.Insert(v)
	return v
}

func (b *Builder) ReleaseValue(operand Value) *ReleaseValue {
	v := &ReleaseValue{Operand: operand}
	b.Insert(v)
	return v
}

func (b *Builder) DestroyValue(operand Value) *DestroyValue {
	v := &DestroyValue{Operand: operand}
	b.Insert(v)
	return v
}

func (b *Builder) Load(addr Value, t *Type) *Load {
	v := &Load{Address: addr, Typ: t}
	b.Insert(v)
	return v
}

func (b *Builder) Store(src, dest Value) *Store {
	v := &Store{Src: src, Dest: dest}
	b.Insert(v)
	return v
}

func (b *Builder) AllocStack(elem *Type) *AllocStack {
	v := &AllocStack{Elem: elem}
	b.Insert(v)
	return v
}

func (b *Builder) DeallocStack(operand Value) *DeallocStack {
	v := &DeallocStack{Operand: operand}
	b.Insert(v)
	return v
}

func (b *Builder) IntegerLiteral(value int64, t *Type) *IntegerLiteral {
	v := &IntegerLiteral{Value: value, Typ: t}
	b.Insert(v)
	return v
}

func (b *Builder) Opaque(op string, t *Type, args ...Value) *Opaque {
	v := &Opaque{Op: op, Typ: t, Args: args}
	b.Insert(v)
	return v
}

func (b *Builder) Return(operand Value) *Return {
	v := &Return{Operand: operand}
	b.Insert(v)
	return v
}

func (b *Builder) Throw(operand Value) *Throw {
	v := &Throw{Operand: operand}
	b.Insert(v)
	return v
}

func (b *Builder) Branch(dest *BasicBlock, args ...Value) *Branch {
	v := &Branch{Dest: dest, Args: args}
	b.Insert(v)
	return v
}

func (b *Builder) CondBranch(cond Value, t, f *BasicBlock) *CondBranch {
	v := &CondBranch{Cond: cond, True: t, False: f}
	b.Insert(v)
	return v
}

func (b *Builder) Unreachable() *Unreachable {
	v := &Unreachable{}
	b.Insert(v)
	return v
}
