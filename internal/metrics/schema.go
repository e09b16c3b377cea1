package metrics

import (
	"database/sql"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/logger"
)

const (
	SchemaVersion = 1

	// Timestamps are Unix milliseconds.
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS tier_changes (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id       TEXT NOT NULL,
	       at           INTEGER NOT NULL CHECK (typeof(at) = 'integer'),
	       tier         TEXT NOT NULL,
	       previous     TEXT NOT NULL,
	       direction    TEXT NOT NULL CHECK (direction IN ('none', 'up', 'down')),
	       reason       TEXT NOT NULL,
	       smoothed_fps REAL NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS tier_changes_run ON tier_changes (run_id, at);
	   CREATE TABLE IF NOT EXISTS snapshots (
	       run_id               TEXT NOT NULL,
	       at                   INTEGER NOT NULL CHECK (typeof(at) = 'integer'),
	       tier                 TEXT NOT NULL,
	       smoothed_fps         REAL NOT NULL,
	       backoff_ms           INTEGER NOT NULL CHECK (typeof(backoff_ms) = 'integer'),
	       consecutive_upgrades INTEGER NOT NULL CHECK (typeof(consecutive_upgrades) = 'integer'),
	       thermal_throttled    INTEGER NOT NULL CHECK (thermal_throttled IN (0, 1)),
	       PRIMARY KEY (run_id, at)
	   );`

	recordVersionSQL = `INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`

	insertTierChangeSQL = `
    INSERT INTO tier_changes (
        run_id, at, tier, previous, direction, reason, smoothed_fps
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertSnapshotSQL = `
    INSERT OR REPLACE INTO snapshots (
        run_id, at, tier, smoothed_fps,
        backoff_ms, consecutive_upgrades, thermal_throttled
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// tables lists every table the schema owns, dropped on migration.
var tables = []string{"tier_changes", "snapshots", "schema_versions"}

// InitSchema creates the tables and records SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	err := withTx(db, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return err
		}
		_, err := tx.Exec(recordVersionSQL, SchemaVersion)
		return err
	})
	if err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}

	log.Info().Int("version", SchemaVersion).Msg("Metrics schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
