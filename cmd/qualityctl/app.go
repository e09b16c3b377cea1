package main

import (
	"context"
	"time"

	"codeberg.org/mutker/qualityctl/internal/config"
	"codeberg.org/mutker/qualityctl/internal/governor"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/metrics"
	"codeberg.org/mutker/qualityctl/internal/probe"
	"codeberg.org/mutker/qualityctl/internal/quality"
)

const probeTimeout = 5 * time.Second

// app is one governor with its ladder, collector and observers wired up.
type app struct {
	gov       *governor.Governor
	collector metrics.Collector
	// suggestion is the device probe result, reapplied on every reload.
	suggestion probe.Suggestion
}

// newApp builds the ladder and governor from c, probes the device, moves to
// the initial tier, subscribes observers and enables the governor.
func newApp(ctx context.Context, c *config.Config, clock governor.Clock, observers ...governor.Observer) (*app, error) {
	ladder, err := buildLadder(c)
	if err != nil {
		return nil, err
	}

	gov := governor.New(
		governor.WithClock(clock),
		governor.WithLadder(ladder),
		governor.WithLogger(logger.Get().With("governor")),
	)

	mcfg := metrics.DefaultConfig()
	mcfg.Enabled = c.Telemetry
	mcfg.DBPath = c.TelemetryDB

	collector, err := metrics.NewService(mcfg, logger.Get().With("metrics"))
	if err != nil {
		return nil, err
	}

	a := &app{
		gov:        gov,
		collector:  collector,
		suggestion: probeDevice(ctx, c),
	}

	initial := c.InitialTier
	if initial == "" {
		initial = a.suggestion.InitialTier
	}
	// No observers yet: the starting tier is not a change anyone reacts to.
	if initial != "" && !gov.SetTier(initial) {
		logger.Warn().Str("tier", initial).Msg("Initial tier not on ladder, keeping default")
	}

	gov.Subscribe(metrics.Observer(collector, logger.Get().With("metrics")))
	for _, o := range observers {
		gov.Subscribe(o)
	}

	gov.Enable(a.adaptiveConfig(c))

	return a, nil
}

// adaptiveConfig converts c, filling unset tier bounds from the probe.
func (a *app) adaptiveConfig(c *config.Config) governor.Config {
	acfg := c.AdaptiveConfig()
	if acfg.MinTier == "" {
		acfg.MinTier = a.suggestion.MinTier
	}
	if acfg.MaxTier == "" {
		acfg.MaxTier = a.suggestion.MaxTier
	}
	return acfg
}

// buildLadder returns the default ladder plus any tiers from the tier file.
func buildLadder(c *config.Config) (*quality.Ladder, error) {
	ladder := quality.NewLadder()
	if c.TiersFile == "" {
		return ladder, nil
	}

	tiers, err := config.LoadTiers(c.TiersFile)
	if err != nil {
		return nil, err
	}
	for _, t := range tiers {
		if !ladder.RegisterTier(t) {
			logger.Warn().Str("tier", t.Name).Msg("Skipping tier with incomparable quality")
		}
	}
	logger.Debug().Int("tiers", len(tiers)).Str("path", c.TiersFile).Msg("Registered custom tiers")

	return ladder, nil
}

// probeDevice runs the configured prober. Failures are logged and yield an
// empty suggestion.
func probeDevice(ctx context.Context, c *config.Config) probe.Suggestion {
	p, err := probe.New(c.Probe, c.ProbeSuggestion())
	if err != nil {
		logger.Warn().Err(err).Msg("Probe unavailable")
		return probe.Suggestion{}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	s, err := p.Probe(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Device probe failed, keeping defaults")
		return probe.Suggestion{}
	}

	logger.Debug().
		Str("initial_tier", s.InitialTier).
		Str("min_tier", s.MinTier).
		Str("max_tier", s.MaxTier).
		Str("reason", s.Reason).
		Msg("Device probed")

	return s
}

// reload re-enables the governor with a changed configuration.
func (a *app) reload(c *config.Config) {
	logger.SetLogLevel(logger.ParseLevel(c.LogLevel.String()))
	a.gov.Enable(a.adaptiveConfig(c))
}

// close disables and destroys the governor and flushes the collector.
func (a *app) close() {
	a.gov.Disable()
	a.gov.Destroy()

	if err := a.collector.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close metrics")
	}
}
