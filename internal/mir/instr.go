package mir

// Op is the opcode of an Instruction.
type Op int

const (
	// Pure compute
	OpConst Op = iota
	OpCopy
	OpBinOp
	OpUnOp
	OpCmp
	OpCast
	OpBitCast

	// Memory
	OpAlloc
	OpLoad
	OpStore
	OpGetElementPtr
	OpPtrAdd
	OpFree

	// Ownership
	OpMove
	OpBorrowImmutable
	OpBorrowMutable
	OpClone
	OpEndBorrow

	// Aggregates
	OpCreateStruct
	OpCreateUnion
	OpExtractValue

	// Calls / closures
	OpCallDirect
	OpCallIndirect
	OpFunctionRef
	OpMakeClosure
	OpClosureFunc
	OpClosureEnv

	// SIMD
	OpVectorLoad
	OpVectorStore
	OpVectorSplat
	OpVectorExtract
	OpVectorInsert
	OpVectorBinOp
	OpVectorUnaryOp
	OpVectorMinMax
	OpVectorReduce

	// Globals
	OpLoadGlobal
	OpStoreGlobal

	// SSA completeness
	OpUndef
)

// BinOpKind enumerates binary arithmetic/bitwise operators.
type BinOpKind int

const (
	BinAdd BinOpKind = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
)

// UnOpKind enumerates unary operators.
type UnOpKind int

const (
	UnNeg UnOpKind = iota
	UnNot
	UnBitNot
)

// CmpKind enumerates comparison predicates.
type CmpKind int

const (
	CmpEq CmpKind = iota
	CmpNeq
	CmpLt
	CmpLeq
	CmpGt
	CmpGeq
)

// Instruction is a three-address-form MIR instruction with an explicit
// destination register (Dest). Not every field applies to every Op; the
// comment on each field names the Ops that use it.
type Instruction struct {
	Op   Op
	Dest Id   // destination register; unused for Store/Free/EndBorrow/VectorStore
	Type *Type // result type of Dest, when Op defines one

	// OpConst
	Const Value

	// OpCopy / OpMove / OpClone / OpBorrowImmutable / OpBorrowMutable / OpFree / OpEndBorrow
	Src Value

	// OpBinOp / OpVectorBinOp
	BinOp BinOpKind
	LHS   Value
	RHS   Value

	// OpUnOp / OpVectorUnaryOp
	UnOp UnOpKind
	Operand Value

	// OpCmp
	Cmp CmpKind

	// OpCast / OpBitCast
	CastFrom Value
	CastTo   *Type

	// OpAlloc
	AllocType  *Type
	AllocCount int

	// OpLoad / OpGetElementPtr / OpPtrAdd / OpVectorLoad
	Ptr Value

	// OpStore / OpVectorStore
	StoreValue Value

	// OpGetElementPtr
	Indices []Value

	// OpPtrAdd
	Offset Value

	// OpCreateStruct
	StructType   *Type
	FieldValues  []Value

	// OpCreateUnion
	UnionType    *Type
	Discriminant int
	UnionValue   Value

	// OpExtractValue
	Aggregate  Value
	ExtractIdx []int

	// OpCallDirect
	CallFunc      FuncID
	Args          []Value
	ArgOwnership  []Ownership
	TypeArgs      []*Type
	IsTail        bool

	// OpCallIndirect
	FuncPtr   Value
	Signature *Type

	// OpFunctionRef
	RefFunc FuncID

	// OpMakeClosure
	ClosureFunc     FuncID
	CapturedValues  []Value

	// OpClosureFunc / OpClosureEnv
	Closure Value

	// OpVectorSplat / OpVectorExtract / OpVectorInsert / OpVectorMinMax / OpVectorReduce
	VecValue  Value
	VecIndex  Value
	VecElem   Value
	VecReduce BinOpKind

	// OpLoadGlobal / OpStoreGlobal
	Global GlobalID

	// Source span, when available (§7 "errors are surfaced with a source
	// location when available").
	Line, Col int
}
