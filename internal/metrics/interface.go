package metrics

import (
	"context"
	"time"
)

// Collector records governor activity for a single run.
type Collector interface {
	RecordTierChange(ctx context.Context, change *TierChange) error
	// RecordSnapshot drops snapshots that arrive sooner than the configured
	// snapshot interval after the previous one.
	RecordSnapshot(ctx context.Context, snapshot *Snapshot) error
	RunID() string
	Close() error
}

// Repository defines the interface for metrics data storage
type Repository interface {
	Record(rec Record) error
	Close() error
}

// Record is one buffered row. Exactly one field is set.
type Record struct {
	TierChange *TierChange
	Snapshot   *Snapshot
}

// TierChange is a persisted tier-change notification.
type TierChange struct {
	RunID       string
	At          time.Time
	Tier        string
	Previous    string
	Direction   string
	Reason      string
	SmoothedFPS float64
}

// Snapshot is a periodic sample of governor state.
type Snapshot struct {
	RunID               string
	At                  time.Time
	Tier                string
	SmoothedFPS         float64
	Backoff             time.Duration
	ConsecutiveUpgrades int
	ThermalThrottled    bool
}
