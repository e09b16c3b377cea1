// Package governor adjusts a quality tier ladder from a stream of frame-rate
// samples.
//
// Each Sample call smooths the input with an exponential moving average, runs
// the thermal check when its interval has elapsed, and then decides by region:
// below the downgrade threshold for a full stability window steps down, above
// the upgrade threshold for the current backoff steps up, and anything in the
// dead zone between them resets the dwell timer. The backoff grows after every
// upgrade and falls back to the stability window on a downgrade.
//
// The governor owns no goroutine and never blocks. It is driven entirely by
// the caller, usually once per rendered frame.
package governor

import (
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/quality"
)

// Governor is the adaptive quality controller.
type Governor struct {
	mu        sync.Mutex
	ladder    *quality.Ladder
	clock     Clock
	log       logger.Logger
	observers *registry

	cfg     Config
	enabled bool

	smoothFPS           float64
	direction           Direction
	stableSince         time.Time
	backoff             time.Duration
	lastUpgrade         time.Time
	hasUpgraded         bool
	consecutiveUpgrades int
	history             history
	lastThermalCheck    time.Time
	thermalThrottled    bool

	upgrades     int
	downgrades   int
	thermalTrips int
}

// Option configures a Governor at construction.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Governor) {
		g.clock = c
	}
}

// WithLogger sets the logger used for decisions and warnings.
func WithLogger(l logger.Logger) Option {
	return func(g *Governor) {
		g.log = l
	}
}

// WithLadder hands the governor a prepared ladder. The governor becomes its
// only writer.
func WithLadder(l *quality.Ladder) Option {
	return func(g *Governor) {
		g.ladder = l
	}
}

// New returns a disabled governor over the default ladder.
func New(opts ...Option) *Governor {
	g := &Governor{
		clock:     SystemClock{},
		log:       logger.Nop(),
		cfg:       DefaultConfig(),
		direction: DirectionNone,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.ladder == nil {
		g.ladder = quality.NewLadder()
	}
	g.observers = &registry{log: g.log}

	return g
}

// Enable (re)initializes all runtime state from cfg and starts accepting
// samples. Invalid fields are repaired rather than rejected.
func (g *Governor) Enable(cfg Config) {
	g.mu.Lock()

	cfg, repaired := cfg.normalize()
	if len(repaired) > 0 {
		g.log.Warn().Strs("fields", repaired).Msg("Governor config repaired")
	}
	g.cfg = cfg

	now := g.clock.Now()
	clamped := g.applyBoundsLocked(cfg.MinTier, cfg.MaxTier, now)

	g.smoothFPS = cfg.TargetFPS
	g.direction = DirectionNone
	g.stableSince = now
	g.backoff = cfg.StabilityWindow
	g.lastUpgrade = time.Time{}
	g.hasUpgraded = false
	g.consecutiveUpgrades = 0
	g.history.reset()
	g.lastThermalCheck = now
	g.thermalThrottled = false
	g.enabled = true

	g.log.Info().
		Float64("downgrade_threshold", cfg.DowngradeThreshold).
		Float64("upgrade_threshold", cfg.UpgradeThreshold).
		Dur("stability_window", cfg.StabilityWindow).
		Bool("thermal_protection", !cfg.DisableThermal).
		Str("tier", g.ladder.CurrentTier().Name).
		Msg("Governor enabled")

	// Enabled precedes any clamp move.
	pending := append([]notification{func(o Observer) { o.Enabled(cfg) }}, clamped...)
	g.mu.Unlock()

	g.observers.deliver(pending)
}

// Disable stops reacting to samples. State and config are kept. Calling it on
// a disabled governor does nothing.
func (g *Governor) Disable() {
	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		return
	}
	g.enabled = false
	g.log.Info().Msg("Governor disabled")
	g.mu.Unlock()

	g.observers.deliver([]notification{func(o Observer) { o.Disabled() }})
}

// Destroy disables the governor, drops its history and detaches every
// observer.
func (g *Governor) Destroy() {
	g.Disable()

	g.mu.Lock()
	g.history.reset()
	g.mu.Unlock()

	g.observers.clear()
}

// Sample feeds one instantaneous frame rate. Non-finite values are dropped.
func (g *Governor) Sample(fps float64) {
	if math.IsNaN(fps) || math.IsInf(fps, 0) {
		return
	}

	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		return
	}

	now := g.clock.Now()
	g.smoothFPS += g.cfg.SmoothingFactor * (fps - g.smoothFPS)

	var pending []notification
	if !g.cfg.DisableThermal && now.Sub(g.lastThermalCheck) >= g.cfg.ThermalCheckInterval {
		g.lastThermalCheck = now
		pending = append(pending, g.checkThermalLocked(now)...)
	}

	pending = append(pending, g.decideLocked(now)...)

	if !g.cfg.DisableThermal {
		g.history.add(g.smoothFPS, now)
		g.history.prune(now.Add(-historyRetentionSpan * g.cfg.ThermalCheckInterval))
	}
	g.mu.Unlock()

	g.observers.deliver(pending)
}

// SampleFrameTime feeds one frame duration. Non-positive durations are
// dropped.
func (g *Governor) SampleFrameTime(d time.Duration) {
	if d <= 0 {
		return
	}
	g.Sample(float64(time.Second) / float64(d))
}

// Regress drops one tier immediately, bypassing the dwell time. It does
// nothing while the governor is disabled.
func (g *Governor) Regress() {
	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		return
	}
	pending := g.regressLocked(g.clock.Now(), ReasonRegress)
	g.mu.Unlock()

	g.observers.deliver(pending)
}

// SetTier jumps to the named tier if it lies inside the clamp band. The
// notification is always tagged DirectionDown, even for a jump upwards.
func (g *Governor) SetTier(name string) bool {
	g.mu.Lock()

	prev := g.ladder.CurrentTier().Name
	tier, ok := g.ladder.SetTierByName(name)
	if !ok {
		g.mu.Unlock()
		g.log.Debug().Str("tier", name).Msg("Tier rejected: unknown or outside bounds")
		return false
	}

	now := g.clock.Now()
	g.stableSince = now

	var pending []notification
	if tier.Name != prev {
		pending = g.announceLocked(tier, prev, DirectionDown, ReasonManual, now)
	}
	g.mu.Unlock()

	g.observers.deliver(pending)

	return true
}

// SetTierBounds replaces the clamp band (empty names mean unbounded) and pulls
// the current tier back inside it.
func (g *Governor) SetTierBounds(minTier, maxTier string) {
	g.mu.Lock()
	g.cfg.MinTier = minTier
	g.cfg.MaxTier = maxTier
	pending := g.applyBoundsLocked(minTier, maxTier, g.clock.Now())
	g.mu.Unlock()

	g.observers.deliver(pending)
}

// RegisterTier adds a tier to the ladder. See quality.Ladder.RegisterTier.
func (g *Governor) RegisterTier(t quality.Tier) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ok := g.ladder.RegisterTier(t)
	if !ok {
		g.log.Warn().Str("tier", t.Name).Msg("Tier not registered: name empty or quality not comparable")
	}

	return ok
}

// Subscribe registers an observer and returns its handle.
func (g *Governor) Subscribe(o Observer) SubscriptionID {
	return g.observers.add(o)
}

// Unsubscribe removes an observer. It reports whether the handle was known.
func (g *Governor) Unsubscribe(id SubscriptionID) bool {
	return g.observers.remove(id)
}

func (g *Governor) CurrentTier() quality.Tier {
	return g.ladder.CurrentTier()
}

func (g *Governor) TierNames() []string {
	return g.ladder.TierNames()
}

func (g *Governor) Tiers() []quality.Tier {
	return g.ladder.Tiers()
}

func (g *Governor) IsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Config returns the normalized config in effect.
func (g *Governor) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Stats is a point-in-time view of the governor's runtime state.
type Stats struct {
	Enabled             bool
	CurrentTier         string
	SmoothedFPS         float64
	Direction           Direction
	Backoff             time.Duration
	ConsecutiveUpgrades int
	ThermalThrottled    bool
	Upgrades            int
	Downgrades          int
	ThermalTrips        int
	HistoryLen          int
	Observers           int
}

func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Stats{
		Enabled:             g.enabled,
		CurrentTier:         g.ladder.CurrentTier().Name,
		SmoothedFPS:         g.smoothFPS,
		Direction:           g.direction,
		Backoff:             g.backoff,
		ConsecutiveUpgrades: g.consecutiveUpgrades,
		ThermalThrottled:    g.thermalThrottled,
		Upgrades:            g.upgrades,
		Downgrades:          g.downgrades,
		ThermalTrips:        g.thermalTrips,
		HistoryLen:          g.history.len(),
		Observers:           g.observers.len(),
	}
}

// decideLocked applies the hysteresis rules for the current smoothed value.
func (g *Governor) decideLocked(now time.Time) []notification {
	switch {
	case g.smoothFPS < g.cfg.DowngradeThreshold:
		if g.direction != DirectionDown {
			g.enterRunLocked(DirectionDown, now)
		}
		if now.Sub(g.stableSince) < g.cfg.StabilityWindow {
			return nil
		}

		pending := g.stepLocked(g.ladder.Downgrade, DirectionDown, ReasonAuto, now)
		g.backoff = g.cfg.StabilityWindow
		g.consecutiveUpgrades = 0
		g.stableSince = now

		return pending

	case g.smoothFPS > g.cfg.UpgradeThreshold:
		if g.direction != DirectionUp {
			g.enterRunLocked(DirectionUp, now)
		}
		if g.thermalThrottled {
			return nil
		}
		if now.Sub(g.stableSince) < g.backoff {
			return nil
		}
		if g.hasUpgraded && now.Sub(g.lastUpgrade) < g.backoff {
			return nil
		}

		pending := g.stepLocked(g.ladder.Upgrade, DirectionUp, ReasonAuto, now)
		if pending == nil {
			return nil
		}
		g.lastUpgrade = now
		g.hasUpgraded = true
		g.consecutiveUpgrades++
		g.backoff = nextBackoff(g.backoff, g.cfg.UpgradeBackoffMultiplier, g.cfg.MaxUpgradeBackoff)

		return pending

	default:
		if g.direction != DirectionNone {
			g.log.Debug().Float64("smoothed_fps", g.smoothFPS).Msg("Entered dead zone")
		}
		g.direction = DirectionNone
		g.stableSince = now

		return nil
	}
}

// nextBackoff grows cur by mult, capped at limit. The product is capped in
// float64 so a huge multiplier cannot wrap the duration negative.
func nextBackoff(cur time.Duration, mult float64, limit time.Duration) time.Duration {
	next := float64(cur) * mult
	if next >= float64(limit) || math.IsNaN(next) {
		return limit
	}
	return time.Duration(next)
}

func (g *Governor) enterRunLocked(dir Direction, now time.Time) {
	g.direction = dir
	g.stableSince = now
	g.log.Debug().
		Str("direction", string(dir)).
		Float64("smoothed_fps", g.smoothFPS).
		Msg("Stable run started")
}

// checkThermalLocked runs the windowed comparison and, on a fresh trip, sheds
// one tier without waiting for the dwell time.
func (g *Governor) checkThermalLocked(now time.Time) []notification {
	first, second, ok := g.history.halves()
	if !ok {
		g.log.Debug().Int("samples", g.history.len()).Msg("Thermal check skipped")
		return nil
	}

	switch judge(first, second) {
	case thermalTrip:
		if g.thermalThrottled {
			return nil
		}
		g.thermalThrottled = true
		g.thermalTrips++

		ev := ThermalEvent{
			FirstHalfMean:  first,
			SecondHalfMean: second,
			Ratio:          second / first,
			At:             now,
		}
		g.log.Warn().
			Float64("first_half_mean", first).
			Float64("second_half_mean", second).
			Float64("ratio", ev.Ratio).
			Msg("Sustained frame rate loss, assuming thermal throttling")

		pending := []notification{func(o Observer) { o.ThermalThrottled(ev) }}
		return append(pending, g.regressLocked(now, ReasonThermal)...)

	case thermalRecover:
		if g.thermalThrottled {
			g.thermalThrottled = false
			g.log.Info().
				Float64("first_half_mean", first).
				Float64("second_half_mean", second).
				Msg("Thermal throttling cleared")
		}
	}

	return nil
}

func (g *Governor) regressLocked(now time.Time, reason Reason) []notification {
	pending := g.stepLocked(g.ladder.Downgrade, DirectionDown, reason, now)
	g.stableSince = now

	return pending
}

// stepLocked moves the ladder one step and queues a notification if it moved.
func (g *Governor) stepLocked(step func() (quality.Tier, bool), dir Direction, reason Reason, now time.Time) []notification {
	prev := g.ladder.CurrentTier().Name
	tier, ok := step()
	if !ok {
		g.log.Debug().
			Str("direction", string(dir)).
			Str("tier", prev).
			Msg("Already at tier bound")
		return nil
	}

	return g.announceLocked(tier, prev, dir, reason, now)
}

func (g *Governor) announceLocked(tier quality.Tier, prev string, dir Direction, reason Reason, now time.Time) []notification {
	switch dir {
	case DirectionUp:
		g.upgrades++
	case DirectionDown:
		g.downgrades++
	}

	change := TierChange{
		Tier:        tier,
		Previous:    prev,
		Direction:   dir,
		Reason:      reason,
		SmoothedFPS: g.smoothFPS,
		At:          now,
	}

	g.log.Info().
		Str("from", prev).
		Str("to", tier.Name).
		Str("direction", string(dir)).
		Str("reason", string(reason)).
		Float64("smoothed_fps", g.smoothFPS).
		Msg("Quality tier changed")

	return []notification{func(o Observer) { o.TierChanged(change) }}
}

// applyBoundsLocked resets the ladder band to [minTier, maxTier] and clamps
// the pointer into it.
func (g *Governor) applyBoundsLocked(minTier, maxTier string, now time.Time) []notification {
	g.ladder.ResetBounds()
	if minTier != "" && !g.ladder.SetMinTier(minTier) {
		g.log.Warn().Str("min_tier", minTier).Msg("Ignoring unknown or inverted minimum tier")
	}
	if maxTier != "" && !g.ladder.SetMaxTier(maxTier) {
		g.log.Warn().Str("max_tier", maxTier).Msg("Ignoring unknown or inverted maximum tier")
	}

	prevIdx := g.ladder.CurrentIndex()
	prev := g.ladder.CurrentTier().Name
	tier, moved := g.ladder.Clamp()
	if !moved {
		return nil
	}

	dir := DirectionUp
	if g.ladder.CurrentIndex() < prevIdx {
		dir = DirectionDown
	}

	return g.announceLocked(tier, prev, dir, ReasonClamp, now)
}
