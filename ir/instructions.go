package ir

// A Value is anything an instruction can use as an operand: block
// arguments and value-producing instructions.
type Value interface {
	// Type returns the type of the value, or nil for instructions that
	// produce no result.
	Type() *Type
}

// An Instruction is a single operation inside a BasicBlock.
//
// The set of instruction kinds is closed; use a type switch to
// recover the concrete kind.
type Instruction interface {
	// Block returns the block containing the instruction, or nil if it
	// has not been inserted yet or has been removed.
	Block() *BasicBlock

	// Operands appends the addresses of the instruction's operands to
	// rands and returns the result. Writing through an element rewrites
	// the operand in place.
	Operands(rands []*Value) []*Value

	setBlock(b *BasicBlock)
}

// A Terminator ends a basic block and names its successors.
type Terminator interface {
	Instruction
	Successors() []*BasicBlock
}

// A FullApplySite is an instruction that fully applies a callee:
// Apply, TryApply or BeginApply.
type FullApplySite interface {
	Instruction
	CalleeValue() Value
	Arguments() []Value
}

type anInstruction struct {
	block *BasicBlock
}

func (i *anInstruction) Block() *BasicBlock { return i.block }
func (i *anInstruction) setBlock(b *BasicBlock) { i.block = b }

// An Argument is a basic block argument. The entry block's arguments
// are the function parameters.
type Argument struct {
	Index int
	Typ   *Type
	block *BasicBlock
}

func (a *Argument) Type() *Type { return a.Typ }
func (a *Argument) Block() *BasicBlock { return a.block }

// FunctionRef produces a reference to a statically known function.
type FunctionRef struct {
	anInstruction
	Func *Function
}

func (v *FunctionRef) Type() *Type { return FunctionType(v.Func.Name) }

// ClassMethod looks a method up in the v-table of its operand's
// dynamic class.
type ClassMethod struct {
	anInstruction
	Operand Value
	Method  *MethodDecl
}

func (v *ClassMethod) Type() *Type { return FunctionType(v.Method.String()) }

// WitnessMethod looks a protocol requirement up in the witness table
// of LookupType.
type WitnessMethod struct {
	anInstruction
	LookupType  *Type
	Requirement *Requirement
}

func (v *WitnessMethod) Type() *Type { return FunctionType(v.Requirement.String()) }

// Metatype produces the metatype value of Instance.
type Metatype struct {
	anInstruction
	Instance *Type
}

func (v *Metatype) Type() *Type { return MetatypeOf(v.Instance) }

// AllocRef allocates an object whose dynamic class is exactly Class.
type AllocRef struct {
	anInstruction
	Class *Class
}

func (v *AllocRef) Type() *Type { return ClassType(v.Class) }

// Upcast converts a class reference to a superclass type.
type Upcast struct {
	anInstruction
	Operand Value
	To      *Type
}

func (v *Upcast) Type() *Type { return v.To }

// ConvertFunction changes the type of a function value without
// changing the function it refers to.
type ConvertFunction struct {
	anInstruction
	Operand Value
	To      *Type
}

func (v *ConvertFunction) Type() *Type { return v.To }

// PartialApply binds Args to Callee, producing a closure.
type PartialApply struct {
	anInstruction
	Callee Value
	Args   []Value
}

func (v *PartialApply) Type() *Type { return FunctionType("closure") }

// Apply calls Callee with Args.
type Apply struct {
	anInstruction
	Callee Value
	Args   []Value
	Result *Type
}

func (v *Apply) Type() *Type { return v.Result }
func (v *Apply) CalleeValue() Value { return v.Callee }
func (v *Apply) Arguments() []Value { return v.Args }

// TryApply calls a throwing callee and continues in Normal or Error.
type TryApply struct {
	anInstruction
	Callee Value
	Args   []Value
	Normal *BasicBlock
	Error  *BasicBlock
}

func (v *TryApply) Type() *Type { return nil }
func (v *TryApply) CalleeValue() Value { return v.Callee }
func (v *TryApply) Arguments() []Value { return v.Args }
func (v *TryApply) Successors() []*BasicBlock { return []*BasicBlock{v.Normal, v.Error} }

// BeginApply starts a coroutine call.
type BeginApply struct {
	anInstruction
	Callee Value
	Args   []Value
	Result *Type
}

func (v *BeginApply) Type() *Type { return v.Result }
func (v *BeginApply) CalleeValue() Value { return v.Callee }
func (v *BeginApply) Arguments() []Value { return v.Args }

// Names of the run-once builtins. Their closure argument is Args[1].
const (
	BuiltinOnce            = "once"
	BuiltinOnceWithContext = "onceWithContext"
)

// Builtin is a call to a compiler builtin.
type Builtin struct {
	anInstruction
	Name        string
	Args        []Value
	Result      *Type
	SideEffects bool
}

func (v *Builtin) Type() *Type { return v.Result }

// IsRunOnce reports whether v is one of the run-once builtins.
func (v *Builtin) IsRunOnce() bool {
	return v.Name == BuiltinOnce || v.Name == BuiltinOnceWithContext
}

// RunOnceClosure returns the closure invoked by a run-once builtin, or
// nil.
func (v *Builtin) RunOnceClosure() Value {
	if !v.IsRunOnce() || len(v.Args) < 2 {
		return nil
	}
	return v.Args[1]
}

// StrongRelease decrements the strong reference count of Operand.
type StrongRelease struct {
	anInstruction
	Operand Value
}

func (v *StrongRelease) Type() *Type { return nil }

// ReleaseValue releases every reference held by Operand.
type ReleaseValue struct {
	anInstruction
	Operand Value
}

func (v *ReleaseValue) Type() *Type { return nil }

// DestroyValue ends the lifetime of an owned value.
type DestroyValue struct {
	anInstruction
	Operand Value
}

func (v *DestroyValue) Type() *Type { return nil }

// Load reads a value of type Typ from Address.
type Load struct {
	anInstruction
	Address Value
	Typ     *Type
}

func (v *Load) Type() *Type { return v.Typ }

// Store writes Src to Dest.
type Store struct {
	anInstruction
	Src  Value
	Dest Value
}

func (v *Store) Type() *Type { return nil }

// AllocStack allocates stack memory for a value of type Elem.
type AllocStack struct {
	anInstruction
	Elem *Type
}

func (v *AllocStack) Type() *Type { return BuiltinType("*" + v.Elem.Name) }

// DeallocStack frees the stack allocation Operand.
type DeallocStack struct {
	anInstruction
	Operand Value
}

func (v *DeallocStack) Type() *Type { return nil }

// IntegerLiteral is an integer constant.
type IntegerLiteral struct {
	anInstruction
	Value int64
	Typ   *Type
}

func (v *IntegerLiteral) Type() *Type { return v.Typ }

// Opaque stands for any operation the optimizer does not model. Its
// memory flags describe what it may do.
type Opaque struct {
	anInstruction
	Op       string
	Args     []Value
	Typ      *Type
	MayRead  bool
	MayWrite bool
}

func (v *Opaque) Type() *Type { return v.Typ }

// Return leaves the function, optionally with a value.
type Return struct {
	anInstruction
	Operand Value
}

func (v *Return) Successors() []*BasicBlock { return nil }

// Throw leaves the function with an error.
type Throw struct {
	anInstruction
	Operand Value
}

func (v *Throw) Successors() []*BasicBlock { return nil }

// Branch jumps to Dest passing Args as its block arguments.
type Branch struct {
	anInstruction
	Dest *BasicBlock
	Args []Value
}

func (v *Branch) Successors() []*BasicBlock { return []*BasicBlock{v.Dest} }

// CondBranch jumps to True or False depending on Cond.
type CondBranch struct {
	anInstruction
	Cond      Value
	True      *BasicBlock
	False     *BasicBlock
	TrueArgs  []Value
	FalseArgs []Value
}

func (v *CondBranch) Successors() []*BasicBlock { return []*BasicBlock{v.True, v.False} }

// Unreachable marks a point control never reaches.
type Unreachable struct {
	anInstruction
}

func (v *Unreachable) Successors() []*BasicBlock { return nil }

// Operands.

func (v *FunctionRef) Operands(rands []*Value) []*Value { return rands }
func (v *ClassMethod) Operands(rands []*Value) []*Value { return append(rands, &v.Operand) }
func (v *WitnessMethod) Operands(rands []*Value) []*Value { return rands }
func (v *Metatype) Operands(rands []*Value) []*Value { return rands }
func (v *AllocRef) Operands(rands []*Value) []*Value { return rands }
func (v *Upcast) Operands(rands []*Value) []*Value { return append(rands, &v.Operand) }
func (v *ConvertFunction) Operands(rands []*Value) []*Value {
	return append(rands, &v.Operand)
}

func (v *PartialApply) Operands(rands []*Value) []*Value {
	return valueOperands(append(rands, &v.Callee), v.Args)
}

func (v *Apply) Operands(rands []*Value) []*Value {
	return valueOperands(append(rands, &v.Callee), v.Args)
}

func (v *TryApply) Operands(rands []*Value) []*Value {
	return valueOperands(append(rands, &v.Callee), v.Args)
}

func (v *BeginApply) Operands(rands []*Value) []*Value {
	return valueOperands(append(rands, &v.Callee), v.Args)
}

func (v *Builtin) Operands(rands []*Value) []*Value { return valueOperands(rands, v.Args) }
func (v *StrongRelease) Operands(rands []*Value) []*Value { return append(rands, &v.Operand) }
func (v *ReleaseValue) Operands(rands []*Value) []*Value { return append(rands, &v.Operand) }
func (v *DestroyValue) Operands(rands []*Value) []*Value { return append(rands, &v.Operand) }
func (v *Load) Operands(rands []*Value) []*Value { return append(rands, &v.Address) }
func (v *Store) Operands(rands []*Value) []*Value { return append(rands, &v.Src, &v.Dest) }
func (v *AllocStack) Operands(rands []*Value) []*Value { return rands }
func (v *DeallocStack) Operands(rands []*Value) []*Value { return append(rands, &v.Operand) }
func (v *IntegerLiteral) Operands(rands []*Value) []*Value {
	return rands
}
func (v *Opaque) Operands(rands []*Value) []*Value { return valueOperands(rands, v.Args) }
func (v *Unreachable) Operands(rands []*Value) []*Value { return rands }

func (v *Return) Operands(rands []*Value) []*Value {
	if v.Operand == nil {
		return rands
	}
	return append(rands, &v.Operand)
}

func (v *Throw) Operands(rands []*Value) []*Value { return append(rands, &v.Operand) }
func (v *Branch) Operands(rands []*Value) []*Value {
	return valueOperands(rands, v.Args)
}

func (v *CondBranch) Operands(rands []*Value) []*Value {
	rands = append(rands, &v.Cond)
	rands = valueOperands(rands, v.TrueArgs)
	return valueOperands(rands, v.FalseArgs)
}

func valueOperands(rands []*Value, vs []Value) []*Value {
	for i := range vs {
		rands = append(rands, &vs[i])
	}
	return rands
}

// IsFullApplySite reports whether inst is a full apply site, returning
// it as one.
func IsFullApplySite(inst Instruction) (FullApplySite, bool) {
	switch inst := inst.(type) {
	case *Apply:
		return inst, true
	case *TryApply:
		return inst, true
	case *BeginApply:
		return inst, true
	}
	return nil, false
}

// StripFunctionConversions looks through ConvertFunction instructions.
func StripFunctionConversions(v Value) Value {
	for {
		cf, ok := v.(*ConvertFunction)
		if !ok {
			return v
		}
		v = cf.Operand
	}
}

// StripUpcasts looks through Upcast instructions.
func StripUpcasts(v Value) Value {
	for {
		up, ok := v.(*Upcast)
		if !ok {
			return v
		}
		v = up.Operand
	}
}

// ExactDynamicClass returns the class a value is proven to be an
// instance (or metatype) of, or nil when the dynamic class is unknown.
func ExactDynamicClass(v Value) *Class {
	switch v := StripUpcasts(v).(type) {
	case *AllocRef:
		return v.Class
	case *Metatype:
		if v.Instance != nil && v.Instance.Kind == TypeClass {
			return v.Instance.Class
		}
	}
	return nil
}

// StaticClass returns the class a class-typed or class-metatype value
// is statically known to be a subclass of, or nil.
func StaticClass(t *Type) *Class {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeClass:
		return t.Class
	case TypeMetatype:
		return StaticClass(t.Instance)
	}
	return nil
}

var (
	_ FullApplySite = (*Apply)(nil)
	_ FullApplySite = (*TryApply)(nil)
	_ FullApplySite = (*BeginApply)(nil)
	_ Terminator    = (*TryApply)(nil)
	_ Terminator    = (*Return)(nil)
	_ Terminator    = (*Throw)(nil)
	_ Terminator    = (*Branch)(nil)
	_ Terminator    = (*CondBranch)(nil)
	_ Terminator    = (*Unreachable)(nil)
)
