package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond builds:
//
//	entry: CondBranch(cond, then, els)
//	then:  Branch(merge)
//	els:   Branch(merge)
//	merge: phi(%x) <- (then,a),(els,b); Return %x
func buildDiamond(t *testing.T) *Function {
	t.Helper()
	f := NewFunction(0, "diamond", Signature{ReturnType: I64()})
	f.CFG = NewCFG(0)

	entry := &Block{ID: 0}
	a := f.FreshReg(Bool())
	entry.Instructions = []Instruction{{Op: OpConst, Dest: a, Type: Bool(), Const: ConstBool(true)}}
	entry.Terminator = CondBranch(RegValue(Bool(), a), 1, 2)
	f.CFG.AddBlock(entry)

	thenB := &Block{ID: 1}
	x1 := f.FreshReg(I64())
	thenB.Instructions = []Instruction{{Op: OpConst, Dest: x1, Type: I64(), Const: ConstInt(I64(), 10)}}
	thenB.Terminator = Branch(3)
	f.CFG.AddBlock(thenB)

	elseB := &Block{ID: 2}
	x2 := f.FreshReg(I64())
	elseB.Instructions = []Instruction{{Op: OpConst, Dest: x2, Type: I64(), Const: ConstInt(I64(), 20)}}
	elseB.Terminator = Branch(3)
	f.CFG.AddBlock(elseB)

	merge := &Block{ID: 3}
	phiDest := f.FreshReg(I64())
	merge.PhiNodes = []PhiNode{{
		Dest: phiDest, Type: I64(),
		Incoming: []PhiIncoming{{Pred: 1, Value: x1}, {Pred: 2, Value: x2}},
	}}
	merge.Terminator = Return(RegValue(I64(), phiDest))
	f.CFG.AddBlock(merge)

	return f
}

func TestValidateWellFormedDiamond(t *testing.T) {
	f := buildDiamond(t)
	errs := Validate(f)
	assert.Empty(t, errs)
}

func TestValidatePhiMissingIncoming(t *testing.T) {
	f := buildDiamond(t)
	merge := f.CFG.Blocks[3]
	merge.PhiNodes[0].Incoming = merge.PhiNodes[0].Incoming[:1] // drop the else-edge value
	errs := Validate(f)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Kind == ErrPhiMismatch {
			found = true
		}
	}
	assert.True(t, found, "expected a phi-mismatch error, got %v", errs)
}

func TestValidateDetectsUnreachableBlock(t *testing.T) {
	f := buildDiamond(t)
	dead := &Block{ID: 4, Terminator: ReturnVoid()}
	f.CFG.AddBlock(dead)
	errs := Validate(f)
	require.NotEmpty(t, errs)
	var kinds []ValidationErrorKind
	for _, e := range errs {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, ErrUnreachableBlock)
}

func TestSimplifyRemovesUnreachableBlockAndPhiEdge(t *testing.T) {
	f := buildDiamond(t)
	dead := &Block{ID: 4, Terminator: Branch(3)}
	f.CFG.AddBlock(dead)
	merge := f.CFG.Blocks[3]
	x1 := f.CFG.Blocks[1].Instructions[0].Dest
	merge.PhiNodes[0].Incoming = append(merge.PhiNodes[0].Incoming, PhiIncoming{Pred: 4, Value: x1})

	Simplify(f)

	_, stillThere := f.CFG.Blocks[4]
	assert.False(t, stillThere)
	assert.Empty(t, Validate(f))
}

func TestValidateDanglingRegister(t *testing.T) {
	f := NewFunction(0, "bad", Signature{ReturnType: I64()})
	f.CFG = NewCFG(0)
	b := &Block{ID: 0}
	b.Terminator = Return(RegValue(I64(), 999)) // never defined
	f.CFG.AddBlock(b)

	errs := Validate(f)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrDanglingRegister, errs[0].Kind)
}

func TestValidateDanglingPhiIncoming(t *testing.T) {
	f := buildDiamond(t)
	merge := f.CFG.Blocks[3]
	merge.PhiNodes[0].Incoming[1].Value = 999 // never defined

	errs := Validate(f)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Kind == ErrDanglingRegister {
			found = true
		}
	}
	assert.True(t, found, "expected a dangling-register error for the phi incoming value, got %v", errs)
}

func TestValidatePhiIncomingNotDominatingItsEdge(t *testing.T) {
	f := buildDiamond(t)
	merge := f.CFG.Blocks[3]
	thenB := f.CFG.Blocks[1]
	x1 := thenB.Instructions[0].Dest
	// Swap the else-edge's incoming value for one defined only in the
	// then-block: x1 is valid on the then-edge but does not dominate the
	// else-edge's source block, block 2.
	merge.PhiNodes[0].Incoming[1].Value = x1

	errs := Validate(f)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Kind == ErrSSAViolation {
			found = true
		}
	}
	assert.True(t, found, "expected an SSA-violation error for the non-dominating phi operand, got %v", errs)
}

func TestLayoutStructNoImplicitPadding(t *testing.T) {
	st := StructOf(Field{Name: "a", Type: I8()}, Field{Name: "b", Type: I8()})
	assert.Equal(t, 2, SizeOf(st))
	assert.Equal(t, 1, AlignOf(st))
	assert.Equal(t, 0, FieldOffset(st, 0))
	assert.Equal(t, 1, FieldOffset(st, 1))
}

func TestLayoutStructAlignsMixedFields(t *testing.T) {
	st := StructOf(Field{Name: "a", Type: I8()}, Field{Name: "b", Type: I64()})
	assert.Equal(t, 8, FieldOffset(st, 1)) // padded up to i64 alignment
	assert.Equal(t, 16, SizeOf(st))
}

func TestLayoutVectorAlignsToTotalSize(t *testing.T) {
	vec := VectorOf(F32(), 4)
	assert.Equal(t, 16, SizeOf(vec))
	assert.Equal(t, 16, AlignOf(vec))
}

func TestLayoutUnionPayloadAfterTag(t *testing.T) {
	u := UnionOf(
		UnionVariant{Tag: 0, Name: "None"},
		UnionVariant{Tag: 1, Name: "Some", Fields: []Field{{Name: "0", Type: I64()}}},
	)
	assert.Equal(t, 8, UnionPayloadOffset(u))
	assert.Equal(t, 16, SizeOf(u)) // 4-byte tag padded to 8, + 8-byte payload
}

func TestFunctionNeedsEnvParam(t *testing.T) {
	haxeFn := NewFunction(0, "add", Signature{Convention: ConvHaxe, Params: []Param{{Name: "x"}}})
	assert.True(t, haxeFn.NeedsEnvParam())

	lambdaFn := NewFunction(1, "lambda0", Signature{Convention: ConvHaxe, Params: []Param{{Name: "env"}}})
	assert.False(t, lambdaFn.NeedsEnvParam())

	cFn := NewFunction(2, "memcpy", Signature{Convention: ConvC})
	assert.False(t, cFn.NeedsEnvParam())
}

func TestTypeHasUnresolvedGenerics(t *testing.T) {
	generic := Slice(TypeVar("T"))
	assert.True(t, generic.HasUnresolvedGenerics())
	concrete := Slice(I64())
	assert.False(t, concrete.HasUnresolvedGenerics())
}
