package quality_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/qualityctl/internal/quality"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLadderDefaults(t *testing.T) {
	l := quality.NewLadder()

	assert.Equal(t, []string{"minimal", "low", "medium", "high", "ultra"}, l.TierNames())
	assert.Equal(t, quality.TierMedium, l.CurrentTier().Name)
	assert.Equal(t, 2, l.CurrentIndex())

	minIdx, maxIdx := l.Bounds()
	assert.Equal(t, 0, minIdx)
	assert.Equal(t, 4, maxIdx)
}

func TestDowngradeStopsAtFloor(t *testing.T) {
	l := quality.NewLadder()

	tier, ok := l.Downgrade()
	require.True(t, ok)
	assert.Equal(t, quality.TierLow, tier.Name)

	tier, ok = l.Downgrade()
	require.True(t, ok)
	assert.Equal(t, quality.TierMinimal, tier.Name)
	assert.False(t, l.CanDowngrade())

	for i := 0; i < 5; i++ {
		_, ok = l.Downgrade()
		assert.False(t, ok)
		assert.Equal(t, 0, l.CurrentIndex())
	}
}

func TestUpgradeStopsAtCeiling(t *testing.T) {
	l := quality.NewLadder()

	_, ok := l.Upgrade()
	require.True(t, ok)
	tier, ok := l.Upgrade()
	require.True(t, ok)
	assert.Equal(t, quality.TierUltra, tier.Name)
	assert.False(t, l.CanUpgrade())

	_, ok = l.Upgrade()
	assert.False(t, ok)
	assert.Equal(t, 4, l.CurrentIndex())
}

func TestClampBandLimitsMovement(t *testing.T) {
	l := quality.NewLadder()
	require.True(t, l.SetMinTier(quality.TierLow))
	require.True(t, l.SetMaxTier(quality.TierHigh))

	l.Downgrade()
	_, ok := l.Downgrade()
	assert.False(t, ok)
	assert.Equal(t, quality.TierLow, l.CurrentTier().Name)

	l.Upgrade()
	l.Upgrade()
	_, ok = l.Upgrade()
	assert.False(t, ok)
	assert.Equal(t, quality.TierHigh, l.CurrentTier().Name)
}

func TestSetTierByNameRespectsBand(t *testing.T) {
	l := quality.NewLadder()
	require.True(t, l.SetMaxTier(quality.TierHigh))

	_, ok := l.SetTierByName(quality.TierUltra)
	assert.False(t, ok)
	assert.Equal(t, quality.TierMedium, l.CurrentTier().Name)

	_, ok = l.SetTierByName("missing")
	assert.False(t, ok)

	tier, ok := l.SetTierByName(quality.TierMinimal)
	require.True(t, ok)
	assert.Equal(t, quality.TierMinimal, tier.Name)
}

func TestSetBoundsRejectsCrossedBand(t *testing.T) {
	l := quality.NewLadder()
	require.True(t, l.SetMaxTier(quality.TierLow))

	assert.False(t, l.SetMinTier(quality.TierHigh))
	assert.False(t, l.SetMinTier("missing"))
	assert.False(t, l.SetMaxTier("missing"))

	minIdx, maxIdx := l.Bounds()
	assert.Equal(t, 0, minIdx)
	assert.Equal(t, 1, maxIdx)
}

func TestSetBoundsDoesNotMovePointer(t *testing.T) {
	l := quality.NewLadder()
	require.True(t, l.SetMaxTier(quality.TierLow))
	assert.Equal(t, quality.TierMedium, l.CurrentTier().Name)

	tier, moved := l.Clamp()
	require.True(t, moved)
	assert.Equal(t, quality.TierLow, tier.Name)

	_, moved = l.Clamp()
	assert.False(t, moved)
}

func TestRegisterTierKeepsCurrentByName(t *testing.T) {
	l := quality.NewLadder()

	ok := l.RegisterTier(quality.Tier{Name: "potato", RenderScale: 0.25, DrawDistance: 50})
	require.True(t, ok)

	assert.Equal(t, "potato", l.TierNames()[0])
	assert.Equal(t, quality.TierMedium, l.CurrentTier().Name)
	assert.Equal(t, 3, l.CurrentIndex())

	minIdx, maxIdx := l.Bounds()
	assert.Equal(t, 0, minIdx)
	assert.Equal(t, 5, maxIdx)
}

func TestRegisterTierResetsUpperBound(t *testing.T) {
	l := quality.NewLadder()
	require.True(t, l.SetMinTier(quality.TierLow))
	require.True(t, l.SetMaxTier(quality.TierHigh))

	require.True(t, l.RegisterTier(quality.Tier{Name: "cinematic", RenderScale: 1.5, DrawDistance: 2000}))

	minIdx, maxIdx := l.Bounds()
	assert.Equal(t, l.Index(quality.TierLow), minIdx)
	assert.Equal(t, l.Len()-1, maxIdx)
	assert.Equal(t, "cinematic", l.TierNames()[maxIdx])
}

func TestRegisterTierDuplicateReplaces(t *testing.T) {
	l := quality.NewLadder()

	require.True(t, l.RegisterTier(quality.Tier{
		Name:             quality.TierHigh,
		RenderScale:      1.0,
		DrawDistance:     900,
		MaxDynamicLights: 20,
	}))

	assert.Equal(t, 5, l.Len())
	tiers := l.Tiers()
	assert.Equal(t, 20, tiers[l.Index(quality.TierHigh)].MaxDynamicLights)
}

func TestRegisterTierRejectsIncomparable(t *testing.T) {
	l := quality.NewLadder()

	assert.False(t, l.RegisterTier(quality.Tier{Name: "broken", RenderScale: math.NaN(), DrawDistance: 1}))
	assert.False(t, l.RegisterTier(quality.Tier{RenderScale: 1, DrawDistance: 1}))
	assert.Equal(t, 5, l.Len())
}

func TestTiersReturnsCopy(t *testing.T) {
	l := quality.NewLadder()

	tiers := l.Tiers()
	tiers[0].Name = "mutated"

	assert.Equal(t, quality.TierMinimal, l.TierNames()[0])
}
