package tiered

import (
	"time"

	"go.uber.org/zap"

	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/profiler"
)

// Start launches the background promotion sweep (§4.6's "periodic sweep
// every optimization_check_interval_ms"). A no-op if
// EnableBackgroundOptimization is false or CompileModule has not run.
func (c *Controller) Start() {
	if !c.cfg.EnableBackgroundOptimization || c.module == nil {
		return
	}
	c.sweepWG.Add(1)
	go c.sweepLoop()
}

func (c *Controller) sweepLoop() {
	defer c.sweepWG.Done()
	interval := c.cfg.OptimizationCheckInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.shutdownCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep inspects every function's profiler classification against its
// current dispatch tier and enqueues a promotion task for anything that
// has crossed a higher threshold and is not already compile_inflight.
// Tier progression is monotone: a function already at or above the
// profiler's classification is left alone, never demoted.
func (c *Controller) sweep() {
	for id, entry := range c.entries {
		snap := c.prof.SnapshotFor(id)
		current := profiler.Tier(entry.tier.Load())
		if snap.Tier <= current {
			continue
		}
		if !entry.compileInflight.CompareAndSwap(false, true) {
			continue // a promotion for this function is already in flight
		}
		if !c.sem.TryAcquire(1) {
			entry.compileInflight.Store(false)
			continue // worker pool saturated; retry on the next sweep
		}
		id, entry, target := id, entry, snap.Tier
		c.group.Go(func() error {
			defer c.sem.Release(1)
			defer entry.compileInflight.Store(false)
			c.promote(id, entry, target)
			return nil
		})
	}
}

// promote compiles id at target's backend and, on success, atomically
// installs the new address and tier. A compile or finalize failure
// leaves the function at its current tier and is logged, not propagated
// (§4.4: a function that fails at a higher tier simply stays where it
// was, it is never taken out of service). Once codegen has produced a
// finalized function it is always installed — no partial installation —
// but a task may still be abandoned before codegen starts if shutdown
// has already begun.
func (c *Controller) promote(id mir.FuncID, entry *dispatchEntry, target profiler.Tier) {
	select {
	case <-c.shutdownCh:
		return
	default:
	}

	level := optLevelForTier(target)
	be := c.backends[level]

	cm, err := be.CompileFunction(c.module, id)
	if err != nil {
		c.log.Warn("promotion compile failed, function stays at current tier",
			zap.Uint64("func_id", uint64(id)), zap.String("target_tier", target.String()), zap.Error(err))
		return
	}
	if err := be.FinalizeFunction(cm, id, c.cfg.Resolve); err != nil {
		c.log.Warn("promotion finalize failed, function stays at current tier",
			zap.Uint64("func_id", uint64(id)), zap.String("target_tier", target.String()), zap.Error(err))
		return
	}
	addr, ok := cm.GetFunctionPtr(id)
	if !ok {
		c.log.Warn("promotion produced no address, function stays at current tier",
			zap.Uint64("func_id", uint64(id)), zap.String("target_tier", target.String()))
		return
	}
	if size, ok := cm.FunctionSize(id); ok {
		c.prof.RecordSize(id, target, size)
	}

	entry.nativeAddr.Store(uintptr(addr))
	entry.tier.Store(int32(target))
	c.log.Debug("function promoted", zap.Uint64("func_id", uint64(id)), zap.String("tier", target.String()))
}

// Shutdown stops the sweep loop, blocks any promotion not yet started,
// and waits for promotions already running to finish and install (§4.6:
// "flush outstanding promotion tasks ... waiting for outstanding thread
// handles").
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })
	c.sweepWG.Wait()
	_ = c.group.Wait()
}
