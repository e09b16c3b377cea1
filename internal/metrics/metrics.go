package metrics

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/governor"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"github.com/google/uuid"
)

type service struct {
	repo  Repository
	cfg   Config
	runID string

	mu           sync.Mutex
	lastSnapshot time.Time
}

// No-op implementation
type noopMetricsCollector struct {
	runID string
}

// NewService returns a collector for one run. Disabled metrics give a
// collector that discards everything.
func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	runID := uuid.NewString()

	// If metrics is disabled, return a no-op collector
	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopMetricsCollector{runID: runID}, nil
	}

	cfg = cfg.withDefaults()

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Str("run_id", runID).
		Msg("Metrics service initialized successfully")

	return &service{
		repo:  repo,
		cfg:   cfg,
		runID: runID,
	}, nil
}

func (s *service) RunID() string {
	return s.runID
}

func (s *service) RecordTierChange(ctx context.Context, change *TierChange) error {
	errFactory := errors.New()

	if change == nil {
		return errFactory.New(ErrInvalidMetrics)
	}
	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrOperationTimeout, err)
	}

	c := *change
	c.RunID = s.runID
	if err := s.repo.Record(Record{TierChange: &c}); err != nil {
		return errFactory.Wrap(ErrMetricsCollection, err)
	}

	return nil
}

func (s *service) RecordSnapshot(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}
	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrOperationTimeout, err)
	}

	s.mu.Lock()
	if !s.lastSnapshot.IsZero() && snapshot.At.Sub(s.lastSnapshot) < s.cfg.SnapshotInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastSnapshot = snapshot.At
	s.mu.Unlock()

	snap := *snapshot
	snap.RunID = s.runID
	if err := s.repo.Record(Record{Snapshot: &snap}); err != nil {
		return errFactory.Wrap(ErrMetricsCollection, err)
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	return nil
}

// No-op implementation
func (n *noopMetricsCollector) RunID() string {
	return n.runID
}

func (*noopMetricsCollector) RecordTierChange(_ context.Context, _ *TierChange) error {
	return nil
}

func (*noopMetricsCollector) RecordSnapshot(_ context.Context, _ *Snapshot) error {
	return nil
}

func (*noopMetricsCollector) Close() error {
	return nil
}

// SnapshotFromStats converts governor stats taken at governor time at.
func SnapshotFromStats(stats governor.Stats, at time.Time) *Snapshot {
	return &Snapshot{
		At:                  at,
		Tier:                stats.CurrentTier,
		SmoothedFPS:         stats.SmoothedFPS,
		Backoff:             stats.Backoff,
		ConsecutiveUpgrades: stats.ConsecutiveUpgrades,
		ThermalThrottled:    stats.ThermalThrottled,
	}
}

// Observer returns a governor observer that records every tier change.
func Observer(c Collector, log logger.Logger) governor.Observer {
	return governor.ObserverFuncs{
		OnTierChanged: func(ch governor.TierChange) {
			err := c.RecordTierChange(context.Background(), &TierChange{
				At:          ch.At,
				Tier:        ch.Tier.Name,
				Previous:    ch.Previous,
				Direction:   string(ch.Direction),
				Reason:      string(ch.Reason),
				SmoothedFPS: ch.SmoothedFPS,
			})
			if err != nil {
				log.Warn().Err(err).Msg("Failed to record tier change")
			}
		},
	}
}
