package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/logger"
)

// MaxBackups is how many schema backups are kept in the backup directory.
const MaxBackups = 5

const backupPattern = "metrics_v*_*.db"

type migrationPlan int

const (
	planKeep migrationPlan = iota
	planCreate
	planRebuild
)

func planFor(found int) migrationPlan {
	switch found {
	case SchemaVersion:
		return planKeep
	case 0:
		return planCreate
	default:
		return planRebuild
	}
}

// ValidateAndUpdateSchema brings db to SchemaVersion. Tables written by any
// other version are copied to backupDir, then dropped and recreated empty.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	errFactory := errors.New()

	found, err := GetSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	switch planFor(found) {
	case planKeep:
		log.Debug().Int("version", found).Msg("Schema version is current")
		return nil

	case planRebuild:
		path, err := backupDatabase(db, backupDir, found, time.Now())
		if err != nil {
			return errFactory.Wrap(ErrSchemaMigrationFailed, err)
		}
		log.Warn().
			Int("found_version", found).
			Int("schema_version", SchemaVersion).
			Str("backup", path).
			Msg("Metrics schema changed, previous data moved to backup")

		pruneBackups(backupDir, MaxBackups, log)

		if err := withTx(db, log, dropTables); err != nil {
			return errFactory.Wrap(ErrSchemaMigrationFailed, err)
		}
	}

	return InitSchema(db, log)
}

// backupDatabase copies db into backupDir with VACUUM INTO and returns the
// new file's path.
func backupDatabase(db *sql.DB, backupDir string, version int, now time.Time) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  backupDir,
			Error: err.Error(),
		})
	}

	name := fmt.Sprintf("metrics_v%d_%s.db", version, now.UTC().Format("20060102T150405.000Z"))
	path := filepath.Join(backupDir, name)

	// VACUUM cannot run inside a transaction.
	if _, err := db.Exec("VACUUM INTO " + quoteLiteral(path)); err != nil {
		return "", errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "vacuum_into",
			Path:  path,
			Error: err.Error(),
		})
	}

	return path, nil
}

// pruneBackups removes the oldest backups until at most keep remain. Failures
// are logged; a stale backup never blocks a migration.
func pruneBackups(backupDir string, keep int, log logger.Logger) {
	paths, err := filepath.Glob(filepath.Join(backupDir, backupPattern))
	if err != nil || len(paths) <= keep {
		return
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: p, modTime: info.ModTime()})
	}

	// newest first
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.After(backups[j].modTime)
	})

	for _, b := range backups[min(keep, len(backups)):] {
		if err := os.Remove(b.path); err != nil {
			log.Warn().Err(err).Str("path", b.path).Msg("Failed to remove old metrics backup")
			continue
		}
		log.Debug().Str("path", b.path).Msg("Removed old metrics backup")
	}
}

func dropTables(tx *sql.Tx) error {
	for _, table := range tables {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errors.New().WithData(ErrSchemaMigrationFailed, struct {
				Table string
				Error string
			}{
				Table: table,
				Error: err.Error(),
			})
		}
	}
	return nil
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func withTx(db *sql.DB, log logger.Logger, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}

	return tx.Commit()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
