package backend

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// stringLiteral emits the module-level rodata for s (deduplicated within
// this function by content) and calls the registered
// symbols.StringLiteral runtime symbol to box it into the {ptr, len, tag}
// header internal/interp's internString produces — the native tier has no
// Go-side intern map of its own, so the host runtime owns interning and
// the allocation behind the header, matching why StringLiteral exists as
// a fixed runtime symbol at all (§4.7).
func (bp *bodyPass) stringLiteral(blk *ir.Block, s string) (value.Value, error) {
	if bp.strCache == nil {
		bp.strCache = map[string]value.Value{}
	}
	if v, ok := bp.strCache[s]; ok {
		return v, nil
	}

	data := bp.cm.internRodata(s)
	dataPtr := blk.NewBitCast(data, types.NewPointer(types.I8))

	fn := bp.runtimeFunc("haxe_string_literal", []types.Type{types.NewPointer(types.I8), types.I64}, types.NewPointer(types.I8))
	call := blk.NewCall(fn, dataPtr, constant.NewInt(types.I64, int64(len(s))))
	bp.strCache[s] = call
	return call, nil
}

// internRodata returns (creating on first use, content-keyed per module)
// the global byte array holding one string literal's raw bytes.
func (cm *CompiledModule) internRodata(s string) *ir.Global {
	if cm.strRodata == nil {
		cm.strRodata = map[string]*ir.Global{}
	}
	if gv, ok := cm.strRodata[s]; ok {
		return gv
	}
	data := constant.NewCharArrayFromString(s)
	name := fmt.Sprintf("m%d_str_%d", cm.counter, len(cm.strRodata))
	gv := cm.LLVM.NewGlobalDef(name, data)
	cm.strRodata[s] = gv
	return gv
}
