package profiler

import "github.com/rayzor-lang/rayzor/internal/mir"

// SizeTracker accounts compiled code size per function per tier. Adapted
// from the teacher's size_analysis.go (a build-tag-gated per-function
// code-size accountant); here the tracking is a runtime feature flag
// (TrackCompiledSize) rather than a build tag, since the core is a
// library linked into one process rather than a target-specific binary
// the teacher could recompile per platform.
type SizeTracker struct {
	enabled bool
	bytes   map[mir.FuncID]map[Tier]int
}

func NewSizeTracker(enabled bool) *SizeTracker {
	return &SizeTracker{enabled: enabled, bytes: map[mir.FuncID]map[Tier]int{}}
}

// Record stores the compiled size in bytes of id at tier. A no-op when
// the tracker is disabled, so callers never need to branch on Enabled().
func (s *SizeTracker) Record(id mir.FuncID, tier Tier, size int) {
	if !s.enabled {
		return
	}
	if s.bytes[id] == nil {
		s.bytes[id] = map[Tier]int{}
	}
	s.bytes[id][tier] = size
}

// Enabled reports whether size tracking is active.
func (s *SizeTracker) Enabled() bool { return s.enabled }

// SizeAt returns the recorded compiled size of id at tier, or 0 if unrecorded.
func (s *SizeTracker) SizeAt(id mir.FuncID, tier Tier) int {
	return s.bytes[id][tier]
}

// TotalBytes sums every recorded size across all functions and tiers —
// the module-wide budget figure the blazing-tier size/speed tradeoff
// note in spec.md §9 refers to.
func (s *SizeTracker) TotalBytes() int {
	total := 0
	for _, perTier := range s.bytes {
		for _, n := range perTier {
			total += n
		}
	}
	return total
}
