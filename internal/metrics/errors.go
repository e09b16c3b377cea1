package metrics

import "codeberg.org/mutker/qualityctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("metrics_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitMetrics
	ErrStorageClose = errors.ErrCloseMetrics
	ErrClosed       = errors.ErrorCode("metrics_repository_closed")

	// Collection Errors
	ErrMetricsCollection = errors.ErrCollectMetrics
	ErrInvalidMetrics    = errors.ErrorCode("metrics_invalid_metrics")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
