// Package tiered implements C6: the central dispatch authority that owns
// a FuncId -> {fn_ptr, tier, compile_inflight} table, a background
// promotion pool, and one native backend per optimization level (§4.6).
package tiered

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rayzor-lang/rayzor/internal/backend"
	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/profiler"
	"github.com/rayzor-lang/rayzor/internal/symbols"
)

// NativeCaller invokes already-finalized native code at addr, the
// counterpart to backend.Resolver on the call side: this package builds
// and finalizes LLVM IR but cannot itself transfer control into loaded
// machine code in pure Go (no cgo, no JIT-invoke). A host wires one in
// the same way it wires a backend.Resolver — typically the same FFI
// layer backs both. Absent an invoker, the controller still tracks tiers
// and finalizes code, it simply never dispatches a call into it: every
// execute_function call is served by the interpreter.
type NativeCaller func(id mir.FuncID, addr backend.FunctionPointer, args []interp.Value) ([]interp.Value, error)

// Config configures a Controller. Thresholds/SampleRate feed the
// profiler; StartInterpreted, EnableBackgroundOptimization, and
// OptimizationCheckInterval are named directly in spec.md §4.6.
type Config struct {
	Thresholds                   profiler.Thresholds
	SampleRate                   uint32
	StartInterpreted             bool
	EnableBackgroundOptimization bool
	OptimizationCheckInterval    time.Duration
	MaxParallelOptimizations     int64

	// TrackCompiledSize enables per-tier compiled-size accounting,
	// reported to the profiler on every CompileModule baseline install
	// and every background promotion (§9's size/speed tradeoff note).
	TrackCompiledSize bool

	// Resolve supplies addresses for finalized native code, shared by
	// every per-level backend (§4.4's per-function finalization mode).
	Resolve backend.Resolver
	// Invoke transfers control into a finalized address. Nil disables
	// native dispatch; functions still promote and finalize, but
	// execute_function always runs them through the interpreter.
	Invoke NativeCaller

	// Backends lets a host override the per-level backend configuration
	// (e.g. a non-default IntrinsicSet); missing levels fall back to
	// backend.DefaultConfig(level).
	Backends map[backend.OptLevel]backend.Config
}

// DefaultConfig returns conservative defaults: a 100 ms check
// interval, two background workers, and background optimization off
// (a host opts in once it has wired Resolve/Invoke).
func DefaultConfig() Config {
	return Config{
		Thresholds: profiler.Thresholds{
			Warm:    100,
			Hot:     10_000,
			Blazing: 1_000_000,
		},
		SampleRate:                   1,
		StartInterpreted:             true,
		EnableBackgroundOptimization: false,
		OptimizationCheckInterval:    100 * time.Millisecond,
		MaxParallelOptimizations:     2,
	}
}

// dispatchEntry is one FuncId's row in §4.6's dispatch table. tier and
// nativeAddr are read by every execute_function call without a lock (the
// whole point of the atomic pointer/tier swap: "callers in flight
// continue to use the previous pointer; no caller is blocked waiting for
// compilation"); compileInflight gates the promotion sweep so a function
// is never enqueued for promotion twice concurrently.
type dispatchEntry struct {
	tier            atomic.Int32 // profiler.Tier
	nativeAddr      atomic.Uintptr
	compileInflight atomic.Bool
}

// Controller is the central dispatch authority of §4.6.
type Controller struct {
	cfg    Config
	module *mir.Module
	symtab *symbols.Table
	log    *zap.Logger

	backends map[backend.OptLevel]*backend.Backend
	prof     *profiler.Profiler
	interp   *interp.Interpreter

	entries map[mir.FuncID]*dispatchEntry

	sem   *semaphore.Weighted
	group errgroup.Group

	sweepWG    sync.WaitGroup
	shutdownCh chan struct{}
	shutdownOnce sync.Once
}

// New builds a Controller bound to one program module and one runtime
// symbol table. CompileModule must be called before ExecuteFunction.
func New(cfg Config, symtab *symbols.Table, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	weight := cfg.MaxParallelOptimizations
	if weight <= 0 {
		weight = 1
	}
	c := &Controller{
		cfg:        cfg,
		symtab:     symtab,
		log:        log,
		backends:   map[backend.OptLevel]*backend.Backend{},
		prof:       profiler.New(profiler.Config{Thresholds: cfg.Thresholds, SampleRate: cfg.SampleRate, TrackCompiledSize: cfg.TrackCompiledSize}),
		entries:    map[mir.FuncID]*dispatchEntry{},
		sem:        semaphore.NewWeighted(weight),
		shutdownCh: make(chan struct{}),
	}
	for _, level := range []backend.OptLevel{backend.OptNone, backend.OptSpeed, backend.OptSpeedAndSize} {
		bcfg, ok := cfg.Backends[level]
		if !ok {
			bcfg = backend.DefaultConfig(level)
		}
		c.backends[level] = backend.New(bcfg, symtab)
	}
	return c
}

// optLevelForTier maps a promotion target tier to the backend that
// compiles it, per §4.6's "one native backend for each optimization
// level ... because some codegen libraries do not permit mixing
// optimization levels in a single module".
func optLevelForTier(t profiler.Tier) backend.OptLevel {
	switch t {
	case profiler.TierHot:
		return backend.OptSpeed
	case profiler.TierBlazing:
		return backend.OptSpeedAndSize
	default:
		return backend.OptNone // Warm: baseline JIT, no optimization
	}
}

// Call implements interp.Caller: CallDirect inside the interpreter (tier
// 0 executing a function that calls a sibling that may itself have been
// promoted) routes back through the controller's own dispatch rather
// than recursing straight into Interpreter.Run, so a promoted callee is
// reached transparently.
func (c *Controller) Call(id mir.FuncID, args []interp.Value) ([]interp.Value, error) {
	return c.ExecuteFunction(id, args)
}

func (c *Controller) stateFor(id mir.FuncID) *dispatchEntry {
	e, ok := c.entries[id]
	if !ok {
		e = &dispatchEntry{}
		c.entries[id] = e
	}
	return e
}
