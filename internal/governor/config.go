package governor

import (
	"math"
	"time"
)

const (
	defaultTargetFPS                = 60
	defaultDowngradeThreshold       = 45
	defaultUpgradeThreshold         = 58
	defaultStabilityWindow          = 2 * time.Second
	defaultUpgradeBackoffMultiplier = 1.5
	defaultMaxUpgradeBackoff        = 30 * time.Second
	defaultSmoothingFactor          = 0.05
	defaultThermalCheckInterval     = 30 * time.Second

	// Thermal heuristic constants.
	thermalTripRatio     = 0.85
	thermalRecoverRatio  = 0.95
	thermalMinSamples    = 10
	historyRetentionSpan = 2
)

// Config tunes the governor. Zero fields take their defaults when the config
// is passed to Enable, so Config{} behaves like DefaultConfig().
type Config struct {
	// TargetFPS seeds the smoothed estimate on Enable.
	TargetFPS float64
	// DowngradeThreshold and UpgradeThreshold bound the dead zone.
	DowngradeThreshold float64
	UpgradeThreshold   float64
	// StabilityWindow is the dwell time before acting, and the floor of the
	// upgrade backoff.
	StabilityWindow          time.Duration
	UpgradeBackoffMultiplier float64
	MaxUpgradeBackoff        time.Duration
	// MinTier and MaxTier name the clamp band; empty means unbounded.
	MinTier string
	MaxTier string
	// DisableThermal turns the throttling heuristic off. It is on by default.
	DisableThermal       bool
	SmoothingFactor      float64
	ThermalCheckInterval time.Duration
}

// DefaultConfig returns the stock tuning with thermal protection on.
func DefaultConfig() Config {
	return Config{
		TargetFPS:                defaultTargetFPS,
		DowngradeThreshold:       defaultDowngradeThreshold,
		UpgradeThreshold:         defaultUpgradeThreshold,
		StabilityWindow:          defaultStabilityWindow,
		UpgradeBackoffMultiplier: defaultUpgradeBackoffMultiplier,
		MaxUpgradeBackoff:        defaultMaxUpgradeBackoff,
		SmoothingFactor:          defaultSmoothingFactor,
		ThermalCheckInterval:     defaultThermalCheckInterval,
	}
}

// normalize fills unset fields and repairs values that would break the
// control loop. It returns the names of the fields it had to repair.
func (c Config) normalize() (Config, []string) {
	var repaired []string

	if !positive(c.TargetFPS) {
		c.TargetFPS = defaultTargetFPS
	}
	if !positive(c.DowngradeThreshold) {
		c.DowngradeThreshold = defaultDowngradeThreshold
	}
	if !positive(c.UpgradeThreshold) {
		c.UpgradeThreshold = defaultUpgradeThreshold
	}
	if c.DowngradeThreshold >= c.UpgradeThreshold {
		repaired = append(repaired, "downgrade_threshold", "upgrade_threshold")
		c.DowngradeThreshold = defaultDowngradeThreshold
		c.UpgradeThreshold = defaultUpgradeThreshold
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = defaultStabilityWindow
	}
	if !positive(c.UpgradeBackoffMultiplier) {
		c.UpgradeBackoffMultiplier = defaultUpgradeBackoffMultiplier
	} else if c.UpgradeBackoffMultiplier < 1 {
		repaired = append(repaired, "upgrade_backoff_multiplier")
		c.UpgradeBackoffMultiplier = 1
	}
	if c.MaxUpgradeBackoff <= 0 {
		c.MaxUpgradeBackoff = defaultMaxUpgradeBackoff
	}
	if c.MaxUpgradeBackoff < c.StabilityWindow {
		repaired = append(repaired, "max_upgrade_backoff")
		c.MaxUpgradeBackoff = c.StabilityWindow
	}
	if !positive(c.SmoothingFactor) {
		c.SmoothingFactor = defaultSmoothingFactor
	} else if c.SmoothingFactor > 1 {
		repaired = append(repaired, "smoothing_factor")
		c.SmoothingFactor = 1
	}
	if c.ThermalCheckInterval <= 0 {
		c.ThermalCheckInterval = defaultThermalCheckInterval
	}

	return c, repaired
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
