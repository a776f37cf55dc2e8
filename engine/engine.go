// Package engine is the top-level facade spec.md §6's "External
// Interfaces" describes: a small programmatic API — create, register
// enum RTTI, compile_module, execute_function — wiring C1 through C8
// together for a host program. There is no wire protocol; a host links
// this package directly.
package engine

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rayzor-lang/rayzor/internal/backend"
	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/mir"
	"github.com/rayzor-lang/rayzor/internal/profiler"
	"github.com/rayzor-lang/rayzor/internal/symbols"
	"github.com/rayzor-lang/rayzor/internal/tiered"
)

// Config is spec.md §6's create(config): "{profile_thresholds, sample_rate,
// enable_background_optimization, optimization_check_interval_ms,
// max_parallel_optimizations, start_interpreted, verbosity,
// runtime_symbols}".
type Config struct {
	ProfileThresholds             ProfileThresholds
	SampleRate                    uint32
	EnableBackgroundOptimization  bool
	OptimizationCheckIntervalMS   uint32
	MaxParallelOptimizations      uint32
	StartInterpreted              bool
	Verbosity                     uint32
	RuntimeSymbols                map[string]symbols.Address
	RuntimeHostFuncs              map[string]symbols.HostFunc

	// TrackCompiledSize turns on the per-tier compiled-size accounting
	// read back off Profiler().SnapshotFor(id).SizeBytes (§9's size/speed
	// tradeoff note). Off by default.
	TrackCompiledSize bool

	// Resolve/Invoke are the Go-native extension of §6's interface: a
	// pure-Go module has no JIT of its own (see internal/backend/
	// finalize.go and internal/tiered's NativeCaller), so the host
	// supplies the loader/invoker pair that turns emitted LLVM IR into
	// callable code. Leaving both nil still exercises the whole compile
	// and interpreted-dispatch path; only native-tier execution needs them.
	Resolve backend.Resolver
	Invoke  tiered.NativeCaller

	// Logger lets a host inject its own *zap.Logger, matching the
	// ambient-stack convention that no component calls zap.NewProduction
	// itself. When nil, Create builds one whose level is derived from
	// Verbosity (spec.md's config field has to do *something*).
	Logger *zap.Logger
}

// ProfileThresholds mirrors spec.md §6's
// "{interpreter, warm, hot, blazing: u64}" verbatim; the "interpreter"
// entry has no effect (tier 0 never has a threshold of its own) and
// exists only so a host's config literal matches the spec's shape
// one-for-one.
type ProfileThresholds struct {
	Interpreter uint64
	Warm        uint64
	Hot         uint64
	Blazing     uint64
}

func defaultLogger(verbosity uint32) *zap.Logger {
	level := zapcore.WarnLevel
	switch {
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// Engine is the compiled facade over internal/tiered.Controller, holding
// the one runtime-symbol table and logger every compiled module and
// execution shares.
type Engine struct {
	cfg        Config
	log        *zap.Logger
	symtab     *symbols.Table
	controller *tiered.Controller
}

// Create implements spec.md §6's `backend = create(config)`.
func Create(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = defaultLogger(cfg.Verbosity)
	}

	symtab := symbols.New(cfg.RuntimeSymbols)
	for name, fn := range cfg.RuntimeHostFuncs {
		symtab.RegisterFunc(name, fn)
	}
	symtab.Freeze()

	tcfg := tiered.Config{
		Thresholds: profiler.Thresholds{Warm: cfg.ProfileThresholds.Warm, Hot: cfg.ProfileThresholds.Hot, Blazing: cfg.ProfileThresholds.Blazing},
		SampleRate: cfg.SampleRate,
		StartInterpreted:             cfg.StartInterpreted,
		EnableBackgroundOptimization: cfg.EnableBackgroundOptimization,
		OptimizationCheckInterval:    time.Duration(cfg.OptimizationCheckIntervalMS) * time.Millisecond,
		MaxParallelOptimizations:     int64(cfg.MaxParallelOptimizations),
		TrackCompiledSize:            cfg.TrackCompiledSize,
		Resolve:                      cfg.Resolve,
		Invoke:                       cfg.Invoke,
	}
	controller := tiered.New(tcfg, symtab, log)

	return &Engine{cfg: cfg, log: log, symtab: symtab, controller: controller}
}

// RegisterEnumRTTI implements spec.md §6's `backend.register_enum_rtti(modules)`:
// registers every enum type's reflection layout with reg, across every
// module supplied, before any execution happens.
func (e *Engine) RegisterEnumRTTI(modules []*mir.Module, reg backend.EnumRTTIRegistry) {
	for _, m := range modules {
		backend.RegisterEnumRTTI(m, reg)
	}
}

// CompileModule implements spec.md §6's `backend.compile_module(module)`:
// installs every non-extern function and resolves externs against the
// runtime-symbol table, returning the aggregated error set (if any) and
// starting the background promotion sweep. Each call is tagged with a
// fresh session id for log correlation (SPEC_FULL.md's "overlapping
// compile_module calls against one controller are distinguishable in
// logs").
func (e *Engine) CompileModule(module *mir.Module) error {
	session := uuid.New()
	e.log.Info("compile_module", zap.String("session", session.String()), zap.String("module", module.Name))
	err := e.controller.CompileModule(module)
	if err != nil {
		e.log.Warn("compile_module completed with errors", zap.String("session", session.String()), zap.Error(err))
	}
	e.controller.Start()
	return err
}

// ExecuteFunction implements spec.md §6's `backend.execute_function(func_id, args)`.
func (e *Engine) ExecuteFunction(funcID mir.FuncID, args []interp.Value) ([]interp.Value, error) {
	return e.controller.ExecuteFunction(funcID, args)
}

// Shutdown flushes outstanding promotion tasks (§4.6's shutdown
// behavior). The host calls this once, after it is done issuing
// execute_function calls.
func (e *Engine) Shutdown() {
	e.controller.Shutdown()
}

// Profiler exposes read-only profiler snapshots for host instrumentation
// (§4.5, and the startup-comparison signal of SPEC_FULL.md's
// supplemented feature 4).
func (e *Engine) Profiler() *profiler.Profiler {
	return e.controller.Profiler()
}
