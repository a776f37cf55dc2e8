package tiered

import (
	"go.uber.org/multierr"

	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/profiler"
)

// CompileModule implements §4.6's ingest: install every non-extern
// function at Tier 0 (interpreted) or Baseline per StartInterpreted, and
// declare every function to every per-level backend so cross-function
// references resolve regardless of which tier a function is currently
// at. When StartInterpreted is false the baseline (OptNone) compile is
// finalized immediately so execute_function has real native code to
// dispatch to from the very first call.
func (c *Controller) CompileModule(module *mir.Module) error {
	c.module = module
	c.interp = interp.New(module, c.symtab, c, c.log)

	startTier := profiler.TierInterpreted
	if !c.cfg.StartInterpreted {
		startTier = profiler.TierWarm
	}
	for _, f := range module.AllFunctions() {
		if f.IsExternDecl() {
			continue
		}
		c.prof.Register(f.ID)
		c.stateFor(f.ID).tier.Store(int32(startTier))
	}

	var errs error
	for level, be := range c.backends {
		cm, declErrs := be.CompileModule(module)
		for _, e := range declErrs {
			errs = multierr.Append(errs, e)
		}
		if level != optLevelForTier(startTier) || c.cfg.StartInterpreted {
			continue
		}
		for _, e := range be.FinalizeModule(cm, c.cfg.Resolve) {
			errs = multierr.Append(errs, e)
		}
		for _, f := range module.AllFunctions() {
			if f.IsExternDecl() {
				continue
			}
			addr, ok := cm.GetFunctionPtr(f.ID)
			if !ok {
				continue
			}
			c.stateFor(f.ID).nativeAddr.Store(uintptr(addr))
			if size, ok := cm.FunctionSize(f.ID); ok {
				c.prof.RecordSize(f.ID, startTier, size)
			}
		}
	}
	return errs
}
