package probe

import (
	"context"
	"fmt"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/quality"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const gib = 1 << 30

// device is the part of nvml.Device the prober reads.
type device interface {
	GetName() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
}

// library abstracts the NVML entry points for testing
type library interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (device, nvml.Return)
}

type nvmlLibrary struct{}

func (nvmlLibrary) Init() nvml.Return                  { return nvml.Init() }
func (nvmlLibrary) Shutdown() nvml.Return              { return nvml.Shutdown() }
func (nvmlLibrary) DeviceGetCount() (int, nvml.Return) { return nvml.DeviceGetCount() }

func (nvmlLibrary) DeviceGetHandleByIndex(index int) (device, nvml.Return) {
	return nvml.DeviceGetHandleByIndex(index)
}

type nvmlProber struct {
	lib library
	log logger.Logger
}

// NewNVML returns a Prober that sizes the tier band from the video memory of
// the first NVIDIA GPU.
func NewNVML() Prober {
	return &nvmlProber{lib: nvmlLibrary{}, log: logger.Get().With("probe")}
}

func (p *nvmlProber) Probe(ctx context.Context) (Suggestion, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return Suggestion{}, errFactory.Wrap(errors.ErrTimeout, err)
	}

	if ret := p.lib.Init(); ret != nvml.SUCCESS {
		return Suggestion{}, errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}
	defer func() {
		if ret := p.lib.Shutdown(); ret != nvml.SUCCESS {
			p.log.Debug().Err(newNVMLError(ret)).Msg("NVML shutdown failed")
		}
	}()

	count, ret := p.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return Suggestion{}, errFactory.Wrap(ErrNoDevice, newNVMLError(ret))
	}
	if count == 0 {
		return Suggestion{}, errFactory.New(ErrNoDevice)
	}

	// We'll use the first GPU (index 0)
	dev, ret := p.lib.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		return Suggestion{}, errFactory.Wrap(ErrNoDevice, newNVMLError(ret))
	}

	name, ret := dev.GetName()
	if ret != nvml.SUCCESS {
		p.log.Warn().Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
		name = "unknown"
	}

	mem, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return Suggestion{}, errFactory.Wrap(ErrDeviceInfoFailed, newNVMLError(ret))
	}

	s := suggestForMemory(mem.Total)
	s.Reason = fmt.Sprintf("%s with %.1f GiB video memory", name, float64(mem.Total)/gib)

	p.log.Info().
		Str("gpu", name).
		Uint64("memory_total", mem.Total).
		Str("initial_tier", s.InitialTier).
		Str("max_tier", s.MaxTier).
		Msg("Detected GPU")

	return s, nil
}

// suggestForMemory maps total video memory to a starting tier and ceiling.
func suggestForMemory(total uint64) Suggestion {
	switch {
	case total < 2*gib:
		return Suggestion{InitialTier: quality.TierLow, MaxTier: quality.TierMedium}
	case total < 4*gib:
		return Suggestion{InitialTier: quality.TierMedium, MaxTier: quality.TierHigh}
	case total < 8*gib:
		return Suggestion{InitialTier: quality.TierHigh}
	default:
		return Suggestion{InitialTier: quality.TierUltra}
	}
}
