// Package profiler implements C5: per-function invocation counters
// classified against tier thresholds, with optional sub-sampling.
package profiler

import (
	"time"

	"go.uber.org/atomic"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

// Tier is one of the four execution tiers a function may be classified
// into, driving the controller's promotion decisions.
type Tier int

const (
	TierInterpreted Tier = iota
	TierWarm             // baseline JIT
	TierHot              // optimized JIT
	TierBlazing          // aggressive optimization
)

func (t Tier) String() string {
	switch t {
	case TierInterpreted:
		return "interpreted"
	case TierWarm:
		return "warm"
	case TierHot:
		return "hot"
	case TierBlazing:
		return "blazing"
	default:
		return "unknown"
	}
}

// Thresholds partitions counter space into tiers. A counter c is
// classified into the highest tier whose threshold c has crossed.
type Thresholds struct {
	Warm    uint64
	Hot     uint64
	Blazing uint64
}

// Config configures sub-sampling: with SampleRate R, each dispatch
// increments the counter with probability 1/R and thresholds are scaled
// accordingly so the observed promotion point is unaffected in
// expectation (§4.5).
type Config struct {
	Thresholds Thresholds
	SampleRate uint32 // 0 or 1 disables sub-sampling

	// TrackCompiledSize enables the per-tier compiled-size accounting a
	// host can read back off Snapshot.SizeBytes (§9's size/speed tradeoff
	// note). Off by default: nothing reports size unless a backend
	// promotion calls RecordSize, so leaving this false costs nothing.
	TrackCompiledSize bool
}

// counterState is per-function mutable state. Counter and tier use
// go.uber.org/atomic typed wrappers (grounded on Consensys-go-corset and
// DataDog-datadog-agent, both of which prefer them to raw atomic.Int64
// for readability at call sites) since §5 requires the promotion sweep
// to read them without synchronizing with dispatch.
type counterState struct {
	counter atomic.Uint64
	samples atomic.Uint64
	tier    atomic.Int32 // Tier, stored as int32
}

// Profiler tracks one counterState per function and classifies tiers
// against a scaled threshold table.
type Profiler struct {
	cfg      Config
	scaled   Thresholds
	perFunc  map[mir.FuncID]*counterState
	rngState atomic.Uint64 // xorshift state for sampling decisions
	sizes    *SizeTracker

	firstTierZero      atomic.Int64 // unix nanos, 0 = not yet recorded
	startedAt           time.Time
}

// New builds a Profiler from cfg. A SampleRate of 0 is treated as 1
// (every dispatch counted).
func New(cfg Config) *Profiler {
	rate := uint64(cfg.SampleRate)
	if rate == 0 {
		rate = 1
	}
	p := &Profiler{
		cfg: cfg,
		scaled: Thresholds{
			Warm:    cfg.Thresholds.Warm / rate,
			Hot:     cfg.Thresholds.Hot / rate,
			Blazing: cfg.Thresholds.Blazing / rate,
		},
		perFunc:   map[mir.FuncID]*counterState{},
		sizes:     NewSizeTracker(cfg.TrackCompiledSize),
		startedAt: time.Now(),
	}
	p.rngState.Store(0x9e3779b97f4a7c15)
	return p
}

func (p *Profiler) stateFor(id mir.FuncID) *counterState {
	s, ok := p.perFunc[id]
	if !ok {
		s = &counterState{}
		p.perFunc[id] = s
	}
	return s
}

// Register initializes tracking for id at TierInterpreted, called once
// per function at compile_module time.
func (p *Profiler) Register(id mir.FuncID) {
	p.stateFor(id)
}

// RecordDispatch increments id's counter, honoring SampleRate, and
// returns the tier id is now classified into. The very first
// RecordDispatch across the whole Profiler stamps FirstTierZeroExecutionAt
// (§9's "startup comparison" signal, restored from
// examples/test_interpreter_e2e.rs's test_startup_comparison).
func (p *Profiler) RecordDispatch(id mir.FuncID) Tier {
	if p.firstTierZero.Load() == 0 {
		p.firstTierZero.CompareAndSwap(0, time.Now().UnixNano())
	}
	s := p.stateFor(id)
	if p.shouldSample() {
		s.counter.Add(1)
	}
	tier := p.classify(s.counter.Load())
	s.tier.Store(int32(tier))
	return tier
}

func (p *Profiler) shouldSample() bool {
	rate := uint64(p.cfg.SampleRate)
	if rate <= 1 {
		return true
	}
	// xorshift64* — cheap, deterministic, no global lock.
	x := p.rngState.Load()
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	p.rngState.Store(x)
	return x%rate == 0
}

func (p *Profiler) classify(counter uint64) Tier {
	switch {
	case counter >= p.scaled.Blazing:
		return TierBlazing
	case counter >= p.scaled.Hot:
		return TierHot
	case counter >= p.scaled.Warm:
		return TierWarm
	default:
		return TierInterpreted
	}
}

// RecordSize stores id's compiled size in bytes at tier, for a backend to
// call once per promotion (§9's size/speed tradeoff note). A no-op unless
// Config.TrackCompiledSize was set, so a backend never needs to check
// whether tracking is enabled before calling this.
func (p *Profiler) RecordSize(id mir.FuncID, tier Tier, size int) {
	p.sizes.Record(id, tier, size)
}

// TotalCompiledBytes sums every recorded compiled size across all
// functions and tiers, or 0 if TrackCompiledSize was never enabled.
func (p *Profiler) TotalCompiledBytes() int {
	return p.sizes.TotalBytes()
}

// Snapshot is a read-only view of one function's profile state for
// decision-making, per §4.5 "exposes a read-only snapshot".
type Snapshot struct {
	FuncID    mir.FuncID
	Counter   uint64
	Tier      Tier
	SizeBytes int // compiled size at Tier, 0 unless TrackCompiledSize is set
}

// SnapshotFor returns the current snapshot for id.
func (p *Profiler) SnapshotFor(id mir.FuncID) Snapshot {
	s, ok := p.perFunc[id]
	if !ok {
		return Snapshot{FuncID: id}
	}
	tier := Tier(s.tier.Load())
	return Snapshot{FuncID: id, Counter: s.counter.Load(), Tier: tier, SizeBytes: p.sizes.SizeAt(id, tier)}
}

// AllSnapshots returns a snapshot for every tracked function.
func (p *Profiler) AllSnapshots() []Snapshot {
	out := make([]Snapshot, 0, len(p.perFunc))
	for id := range p.perFunc {
		out = append(out, p.SnapshotFor(id))
	}
	return out
}

// FirstTierZeroExecutionAt returns the wall-clock instant of the first
// RecordDispatch call, or the zero Time if none has happened yet.
func (p *Profiler) FirstTierZeroExecutionAt() time.Time {
	ns := p.firstTierZero.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
