package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []Record
	closed        bool
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	cfg = cfg.withDefaults()

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// Open database with specific pragmas for better performance and safety
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]Record, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	repo.flushTicker = time.NewTicker(cfg.FlushInterval)
	go repo.flusher()

	return repo, nil
}

func (r *repository) Record(rec Record) error {
	errFactory := errors.New()

	if (rec.TierChange == nil) == (rec.Snapshot == nil) {
		return errFactory.New(ErrInvalidMetrics)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errFactory.New(ErrClosed)
	}

	r.buffer = append(r.buffer, rec)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	// Signal the flusher goroutine to stop
	close(r.shutdownChan)
	r.flushTicker.Stop()

	// Wait for the flusher to finish its final flush
	<-r.flushDoneChan

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Metrics repository closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic metrics flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Final metrics flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer in one transaction. The buffer is kept on failure
// so the next flush retries it.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	rollback := func(cause error) error {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, cause)
	}

	changeStmt, err := tx.Prepare(insertTierChangeSQL)
	if err != nil {
		return rollback(err)
	}
	defer changeStmt.Close()

	snapStmt, err := tx.Prepare(insertSnapshotSQL)
	if err != nil {
		return rollback(err)
	}
	defer snapStmt.Close()

	for _, rec := range r.buffer {
		switch {
		case rec.TierChange != nil:
			c := rec.TierChange
			_, err = changeStmt.Exec(
				c.RunID,
				c.At.UnixMilli(),
				c.Tier,
				c.Previous,
				c.Direction,
				c.Reason,
				c.SmoothedFPS,
			)
		case rec.Snapshot != nil:
			s := rec.Snapshot
			_, err = snapStmt.Exec(
				s.RunID,
				s.At.UnixMilli(),
				s.Tier,
				s.SmoothedFPS,
				s.Backoff.Milliseconds(),
				int64(s.ConsecutiveUpgrades),
				int64(boolToInt(s.ThermalThrottled)),
			)
		}
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			return rollback(err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed metrics to database")
	r.buffer = r.buffer[:0]

	return nil
}
