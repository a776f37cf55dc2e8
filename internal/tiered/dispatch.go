package tiered

import (
	"fmt"

	"github.com/rayzor-lang/rayzor/internal/backend"
	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/profiler"
)

// DispatchError is raised by ExecuteFunction for conditions that are a
// controller-level failure rather than a trap inside the executed
// function itself (unknown FuncId, or a JIT-tier entry with no invoker
// wired in).
type DispatchError struct {
	FuncID  mir.FuncID
	Message string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("tiered: function %d: %s", e.FuncID, e.Message)
}

// ExecuteFunction implements §4.6's dispatch: look up the current fn_ptr
// and invoke it. An Interpreted entry runs through the interpreter
// trampoline (tier 0); a JIT-tier entry calls through the injected
// NativeCaller. Every call counts towards the profiler regardless of
// which tier actually serves it, since the counter drives future
// promotion decisions.
func (c *Controller) ExecuteFunction(id mir.FuncID, args []interp.Value) ([]interp.Value, error) {
	entry, ok := c.entries[id]
	if !ok {
		return nil, &DispatchError{FuncID: id, Message: "unknown function id"}
	}
	c.prof.RecordDispatch(id)

	tier := profiler.Tier(entry.tier.Load())
	if tier == profiler.TierInterpreted {
		fn, ok := c.module.FunctionByID(id)
		if !ok {
			return nil, &DispatchError{FuncID: id, Message: "interpreted tier has no such function in the module"}
		}
		return c.interp.Run(fn, args)
	}

	addr := backend.FunctionPointer(entry.nativeAddr.Load())
	if addr == 0 {
		return nil, &DispatchError{FuncID: id, Message: "dispatch entry is at a JIT tier with no installed address"}
	}
	if c.cfg.Invoke == nil {
		return nil, &DispatchError{FuncID: id, Message: "no NativeCaller wired in; cannot invoke finalized native code"}
	}
	return c.cfg.Invoke(id, addr, args)
}

// SnapshotTier reports the dispatch table's current tier for id, for
// host introspection and tests; it does not itself drive any decision.
func (c *Controller) SnapshotTier(id mir.FuncID) (profiler.Tier, bool) {
	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return profiler.Tier(e.tier.Load()), true
}

// Profiler exposes the controller's profiler for a host that wants
// Snapshot/AllSnapshots/FirstTierZeroExecutionAt without re-deriving it.
func (c *Controller) Profiler() *profiler.Profiler { return c.prof }
