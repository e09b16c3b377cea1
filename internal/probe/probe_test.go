package probe

import (
	"context"
	"testing"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/quality"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	name    string
	mem     nvml.Memory
	memRet  nvml.Return
	nameRet nvml.Return
}

func (d fakeDevice) GetName() (string, nvml.Return)            { return d.name, d.nameRet }
func (d fakeDevice) GetMemoryInfo() (nvml.Memory, nvml.Return) { return d.mem, d.memRet }

type fakeLibrary struct {
	initRet  nvml.Return
	count    int
	dev      fakeDevice
	shutdown int
}

func (l *fakeLibrary) Init() nvml.Return { return l.initRet }

func (l *fakeLibrary) Shutdown() nvml.Return {
	l.shutdown++
	return nvml.SUCCESS
}

func (l *fakeLibrary) DeviceGetCount() (int, nvml.Return) { return l.count, nvml.SUCCESS }

func (l *fakeLibrary) DeviceGetHandleByIndex(int) (device, nvml.Return) {
	return l.dev, nvml.SUCCESS
}

func newTestProber(lib *fakeLibrary) *nvmlProber {
	return &nvmlProber{lib: lib, log: logger.Nop()}
}

func TestNVMLProbeSuggestsFromMemory(t *testing.T) {
	lib := &fakeLibrary{
		count: 1,
		dev:   fakeDevice{name: "RTX Test", mem: nvml.Memory{Total: 3 * gib}},
	}

	s, err := newTestProber(lib).Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quality.TierMedium, s.InitialTier)
	assert.Equal(t, quality.TierHigh, s.MaxTier)
	assert.Contains(t, s.Reason, "RTX Test")
	assert.Equal(t, 1, lib.shutdown)
}

func TestNVMLProbeWithoutDevice(t *testing.T) {
	lib := &fakeLibrary{count: 0}

	_, err := newTestProber(lib).Probe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNoDevice))
	assert.Equal(t, 1, lib.shutdown)
}

func TestNVMLProbeInitFailure(t *testing.T) {
	lib := &fakeLibrary{initRet: nvml.ERROR_LIBRARY_NOT_FOUND}

	_, err := newTestProber(lib).Probe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrInitFailed))
	assert.Zero(t, lib.shutdown)
}

func TestNVMLProbeMemoryFailure(t *testing.T) {
	lib := &fakeLibrary{
		count: 1,
		dev:   fakeDevice{name: "gpu", memRet: nvml.ERROR_NOT_SUPPORTED},
	}

	_, err := newTestProber(lib).Probe(context.Background())
	assert.True(t, errors.HasCode(err, ErrDeviceInfoFailed))
}

func TestSuggestForMemory(t *testing.T) {
	tests := []struct {
		total   uint64
		initial string
		max     string
	}{
		{1 * gib, quality.TierLow, quality.TierMedium},
		{2 * gib, quality.TierMedium, quality.TierHigh},
		{6 * gib, quality.TierHigh, ""},
		{24 * gib, quality.TierUltra, ""},
	}

	for _, tt := range tests {
		s := suggestForMemory(tt.total)
		assert.Equal(t, tt.initial, s.InitialTier)
		assert.Equal(t, tt.max, s.MaxTier)
	}
}

func TestNewByKind(t *testing.T) {
	p, err := New(KindStatic, Suggestion{InitialTier: quality.TierHigh})
	require.NoError(t, err)

	s, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, quality.TierHigh, s.InitialTier)
	assert.Equal(t, "configured", s.Reason)

	p, err = New(KindNone, Suggestion{InitialTier: quality.TierHigh})
	require.NoError(t, err)
	s, err = p.Probe(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.InitialTier)

	_, err = New("bogus", Suggestion{})
	assert.True(t, errors.HasCode(err, ErrUnknownKind))
}

func TestStaticProbeHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStatic(Suggestion{}).Probe(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
}
