package probe

import (
	"codeberg.org/mutker/qualityctl/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrInitFailed       = errors.ErrorCode("probe_nvml_init_failed")
	ErrShutdownFailed   = errors.ErrorCode("probe_nvml_shutdown_failed")
	ErrNoDevice         = errors.ErrorCode("probe_no_device")
	ErrDeviceInfoFailed = errors.ErrorCode("probe_device_info_failed")
	ErrUnknownKind      = errors.ErrorCode("probe_unknown_kind")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}
