package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

func TestClassificationCrossesThresholds(t *testing.T) {
	p := New(Config{Thresholds: Thresholds{Warm: 2, Hot: 4, Blazing: 8}})
	fn := mir.FuncID(1)
	p.Register(fn)

	var tiers []Tier
	for i := 0; i < 9; i++ {
		tiers = append(tiers, p.RecordDispatch(fn))
	}

	assert.Equal(t, TierInterpreted, tiers[0])
	assert.Equal(t, TierWarm, tiers[1])
	assert.Equal(t, TierHot, tiers[3])
	assert.Equal(t, TierBlazing, tiers[7])
}

func TestPromotionIsMonotonicUnderDispatch(t *testing.T) {
	p := New(Config{Thresholds: Thresholds{Warm: 3, Hot: 6, Blazing: 10}})
	fn := mir.FuncID(1)
	p.Register(fn)

	last := TierInterpreted
	for i := 0; i < 20; i++ {
		tier := p.RecordDispatch(fn)
		assert.GreaterOrEqual(t, int(tier), int(last))
		last = tier
	}
}

func TestSampleRateScalesThresholds(t *testing.T) {
	p := New(Config{Thresholds: Thresholds{Warm: 100}, SampleRate: 10})
	assert.Equal(t, uint64(10), p.scaled.Warm)
}

func TestSnapshotForUntrackedFunctionIsZeroValue(t *testing.T) {
	p := New(Config{})
	snap := p.SnapshotFor(mir.FuncID(42))
	assert.Equal(t, uint64(0), snap.Counter)
	assert.Equal(t, TierInterpreted, snap.Tier)
}

func TestSizeTrackerDisabledIsNoop(t *testing.T) {
	s := NewSizeTracker(false)
	s.Record(1, TierWarm, 1024)
	assert.Equal(t, 0, s.SizeAt(1, TierWarm))
	assert.Equal(t, 0, s.TotalBytes())
}

func TestSizeTrackerRecordsAndSums(t *testing.T) {
	s := NewSizeTracker(true)
	s.Record(1, TierWarm, 100)
	s.Record(1, TierHot, 250)
	s.Record(2, TierWarm, 50)
	assert.Equal(t, 100, s.SizeAt(1, TierWarm))
	assert.Equal(t, 400, s.TotalBytes())
}

func TestSnapshotReportsSizeWhenTrackingEnabled(t *testing.T) {
	p := New(Config{Thresholds: Thresholds{Warm: 1, Hot: 100, Blazing: 1000}, TrackCompiledSize: true})
	fn := mir.FuncID(7)
	p.Register(fn)
	p.RecordDispatch(fn) // classifies fn into TierWarm

	p.RecordSize(fn, TierWarm, 4096)

	snap := p.SnapshotFor(fn)
	assert.Equal(t, TierWarm, snap.Tier)
	assert.Equal(t, 4096, snap.SizeBytes)
	assert.Equal(t, 4096, p.TotalCompiledBytes())
}

func TestSnapshotSizeIsZeroWhenTrackingDisabled(t *testing.T) {
	p := New(Config{})
	fn := mir.FuncID(7)
	p.Register(fn)
	p.RecordSize(fn, TierInterpreted, 4096) // no-op: TrackCompiledSize is false

	assert.Equal(t, 0, p.SnapshotFor(fn).SizeBytes)
	assert.Equal(t, 0, p.TotalCompiledBytes())
}
