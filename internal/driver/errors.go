package driver

import "codeberg.org/mutker/qualityctl/internal/errors"

const (
	ErrReadSample     = errors.ErrReadSample
	ErrMissingColumn  = errors.ErrorCode("driver_missing_column")
	ErrInvalidSample  = errors.ErrorCode("driver_invalid_sample")
	ErrUnknownProfile = errors.ErrorCode("driver_unknown_profile")
	ErrCancelled      = errors.ErrTimeout
)
