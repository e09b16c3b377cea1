package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755

	defaultBatchSize        = 64
	defaultFlushInterval    = 5 * time.Second
	defaultSnapshotInterval = time.Second
)

type Config struct {
	DBPath  string
	Enabled bool
	// BackupDir receives a copy of the database before an incompatible
	// schema is replaced. Defaults to "backups" next to DBPath.
	BackupDir string
	// BatchSize records are buffered before a write; FlushInterval bounds
	// how long a partial batch waits.
	BatchSize     int
	FlushInterval time.Duration
	// SnapshotInterval is the minimum governor time between two snapshots.
	SnapshotInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:          false, // Disabled by default
		BatchSize:        defaultBatchSize,
		FlushInterval:    defaultFlushInterval,
		SnapshotInterval: defaultSnapshotInterval,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if metrics is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.FlushInterval < 0 || c.SnapshotInterval < 0 {
		return errFactory.WithData(ErrInvalidConfig, c)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = defaultSnapshotInterval
	}
	if c.BackupDir == "" && c.DBPath != "" {
		c.BackupDir = filepath.Join(filepath.Dir(c.DBPath), "backups")
	}
	return c
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
