package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestHalvesNeedsMinimumSamples(t *testing.T) {
	var h history
	for i := 0; i < thermalMinSamples-1; i++ {
		h.add(60, t0.Add(time.Duration(i)*time.Second))
	}

	_, _, ok := h.halves()
	assert.False(t, ok)

	h.add(60, t0.Add(time.Minute))
	_, _, ok = h.halves()
	assert.True(t, ok)
}

func TestHalvesSplitsOnTime(t *testing.T) {
	var h history
	// dense sampling early, sparse late: the split must follow the clock
	for i := 0; i < 90; i++ {
		h.add(100, t0.Add(time.Duration(i)*100*time.Millisecond))
	}
	for i := 0; i < 10; i++ {
		h.add(50, t0.Add(10*time.Second+time.Duration(i)*time.Second))
	}

	first, second, ok := h.halves()
	assert.True(t, ok)
	assert.InDelta(t, 100, first, 1e-9)
	assert.InDelta(t, 50, second, 1e-9)
}

func TestHalvesSkipsWhenOneSideEmpty(t *testing.T) {
	var h history
	for i := 0; i < 20; i++ {
		h.add(60, t0)
	}

	_, _, ok := h.halves()
	assert.False(t, ok)
}

func TestPruneDropsOldSamples(t *testing.T) {
	var h history
	for i := 0; i < 10; i++ {
		h.add(60, t0.Add(time.Duration(i)*time.Second))
	}

	h.prune(t0.Add(4 * time.Second))
	assert.Equal(t, 6, h.len())
	assert.Equal(t, t0.Add(4*time.Second), h.live()[0].at)

	h.prune(t0)
	assert.Equal(t, 6, h.len())
}

func TestPruneCompactsOnceHalfIsStale(t *testing.T) {
	var h history
	for i := 0; i < 10; i++ {
		h.add(60, t0.Add(time.Duration(i)*time.Second))
	}

	h.prune(t0.Add(3 * time.Second))
	assert.Equal(t, 3, h.head)
	assert.Len(t, h.samples, 10)

	h.prune(t0.Add(6 * time.Second))
	assert.Zero(t, h.head)
	assert.Len(t, h.samples, 4)
	assert.Equal(t, t0.Add(6*time.Second), h.live()[0].at)
}

func TestSlidingWindowStaysBounded(t *testing.T) {
	var h history
	for i := 0; i < 10000; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		h.add(60, now)
		h.prune(now.Add(-100 * time.Second))
	}

	assert.Equal(t, 101, h.len())
	assert.LessOrEqual(t, len(h.samples), 202)

	h.reset()
	assert.Zero(t, h.len())
}

func TestJudgeRatios(t *testing.T) {
	assert.Equal(t, thermalSteady, judge(100, 86))
	assert.Equal(t, thermalTrip, judge(100, 84))
	assert.Equal(t, thermalSteady, judge(100, 90))
	assert.Equal(t, thermalRecover, judge(100, 96))
}
