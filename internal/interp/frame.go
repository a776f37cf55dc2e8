package interp

import "github.com/rayzor-lang/rayzor/internal/mir"

// frame is a per-active-function activation record: adapted from the
// teacher's VM struct's frame-stack bookkeeping, but register-indexed
// (mir.Id) rather than stack-slot-indexed, since MIR is three-address
// SSA rather than a stack machine.
type frame struct {
	fn       *mir.Function
	regs     map[mir.Id]Value
	regTypes map[mir.Id]*mir.Type
	curBlock mir.BlockID
	predBlock mir.BlockID // for phi resolution; unset (== -1) while in the entry block
	// scopeHeap records arena offsets allocated within this frame that
	// must be released when the frame exits along any path — the
	// interpreter-side mirror of the lowerer's end-of-scope Drop
	// sequencing (§4.2), enforced here defensively since MIR already
	// carries explicit Free/Drop calls; this is a second line of
	// defense against a lowerer bug leaking memory mid-test.
	scopeHeap []uint64
}

func newFrame(fn *mir.Function) *frame {
	return &frame{
		fn:        fn,
		regs:      map[mir.Id]Value{},
		regTypes:  fn.RegisterTypes,
		curBlock:  fn.CFG.Entry,
		predBlock: -1,
	}
}

func (f *frame) set(id mir.Id, v Value) { f.regs[id] = v }
func (f *frame) get(id mir.Id) Value    { return f.regs[id] }

func (f *frame) typeOf(id mir.Id) *mir.Type {
	if t, ok := f.regTypes[id]; ok {
		return t
	}
	return mir.Void()
}
