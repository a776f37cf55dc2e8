package backend

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// translateLoadGlobal/translateStoreGlobal access a module-owned global
// slot directly through its backing LLVM global (declared once per module
// in CompileModule), rather than through the rayzor_global_load/store
// runtime symbols the interpreter-facing ABI names suggest (§4.2): those
// names exist for hosts embedding the interpreter tier across a process
// boundary, but a natively-compiled module can simply address its own
// data section the way any compiled global is addressed.
func (bp *bodyPass) translateLoadGlobal(blk *ir.Block, inst mir.Instruction) error {
	gv, ok := bp.cm.Globals[inst.Global]
	if !ok {
		return &Error{Kind: ErrUnresolvedReference, Function: bp.src.Name, Detail: "load of undeclared global"}
	}
	target := llvmType(inst.Type)
	typed := blk.NewBitCast(gv, types.NewPointer(target))
	bp.regs[inst.Dest] = blk.NewLoad(target, typed)
	return nil
}

func (bp *bodyPass) translateStoreGlobal(blk *ir.Block, inst mir.Instruction) error {
	gv, ok := bp.cm.Globals[inst.Global]
	if !ok {
		return &Error{Kind: ErrUnresolvedReference, Function: bp.src.Name, Detail: "store to undeclared global"}
	}
	v, err := bp.valueOf(blk, inst.StoreValue)
	if err != nil {
		return bp.wrap(err)
	}
	typed := blk.NewBitCast(gv, types.NewPointer(v.Type()))
	blk.NewStore(v, typed)
	return nil
}
