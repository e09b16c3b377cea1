package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/qualityctl/internal/config"
	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/probe"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "qualityctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func newLoader(t *testing.T, fs *pflag.FlagSet) *config.Loader {
	t.Helper()

	l, err := config.NewLoader(fs, config.WithSearchPaths(t.TempDir()))
	require.NoError(t, err)

	return l
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
initial_tier = "high"
probe = "static"
telemetry = true
telemetry_db = "/path/to/metrics.db"
frame_interval = "8ms"

[governor]
target_fps = 120
downgrade_threshold = 90
upgrade_threshold = 110
stability_window = "3s"
upgrade_backoff_multiplier = 2.0
max_upgrade_backoff = "1m"
min_tier = "low"
max_tier = "ultra"
thermal_protection = false
smoothing_factor = 0.1
thermal_check_interval = "20s"
`)
	t.Setenv("QUALITYCTL_CONFIG", path)

	cfg, err := newLoader(t, nil).Load()
	require.NoError(t, err)

	assert.Equal(t, config.LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, "high", cfg.InitialTier)
	assert.Equal(t, probe.KindStatic, cfg.Probe)
	assert.True(t, cfg.Telemetry)
	assert.Equal(t, "/path/to/metrics.db", cfg.TelemetryDB)
	assert.Equal(t, 8*time.Millisecond, cfg.FrameInterval)

	g := cfg.AdaptiveConfig()
	assert.InDelta(t, 120.0, g.TargetFPS, 1e-9)
	assert.InDelta(t, 90.0, g.DowngradeThreshold, 1e-9)
	assert.InDelta(t, 110.0, g.UpgradeThreshold, 1e-9)
	assert.Equal(t, 3*time.Second, g.StabilityWindow)
	assert.InDelta(t, 2.0, g.UpgradeBackoffMultiplier, 1e-9)
	assert.Equal(t, time.Minute, g.MaxUpgradeBackoff)
	assert.Equal(t, "low", g.MinTier)
	assert.Equal(t, "ultra", g.MaxTier)
	assert.True(t, g.DisableThermal)
	assert.InDelta(t, 0.1, g.SmoothingFactor, 1e-9)
	assert.Equal(t, 20*time.Second, g.ThermalCheckInterval)

	s := cfg.ProbeSuggestion()
	assert.Equal(t, "high", s.InitialTier)
	assert.Equal(t, "low", s.MinTier)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUALITYCTL_CONFIG", "")

	cfg, err := newLoader(t, nil).Load()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultProbe, cfg.Probe)
	assert.Equal(t, config.DefaultFrameInterval, cfg.FrameInterval)
	assert.False(t, cfg.Telemetry)
	assert.NotEmpty(t, cfg.TelemetryDB)

	g := cfg.AdaptiveConfig()
	assert.InDelta(t, 60.0, g.TargetFPS, 1e-9)
	assert.InDelta(t, 45.0, g.DowngradeThreshold, 1e-9)
	assert.InDelta(t, 58.0, g.UpgradeThreshold, 1e-9)
	assert.Equal(t, 2*time.Second, g.StabilityWindow)
	assert.Equal(t, 30*time.Second, g.MaxUpgradeBackoff)
	assert.False(t, g.DisableThermal)
}

func TestLoadSearchPath(t *testing.T) {
	t.Setenv("QUALITYCTL_CONFIG", "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qualityctl.toml"), []byte(`initial_tier = "low"`), 0o600))

	l, err := config.NewLoader(nil, config.WithSearchPaths(dir))
	require.NoError(t, err)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "low", cfg.InitialTier)
	assert.Equal(t, filepath.Join(dir, "qualityctl.toml"), l.ConfigFileUsed())
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, "This is not a valid TOML file\n")

	l, err := config.NewLoader(nil, config.WithConfigFile(path))
	require.NoError(t, err)

	_, err = l.Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	l, err := config.NewLoader(nil, config.WithConfigFile(filepath.Join(t.TempDir(), "absent.toml")))
	require.NoError(t, err)

	_, err = l.Load()
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[governor]
target_fps = 90
`)
	t.Setenv("QUALITYCTL_CONFIG", path)
	t.Setenv("QUALITYCTL_GOVERNOR_TARGET_FPS", "30")
	t.Setenv("QUALITYCTL_LOG_LEVEL", "warning")

	cfg, err := newLoader(t, nil).Load()
	require.NoError(t, err)

	assert.InDelta(t, 30.0, cfg.Governor.TargetFPS, 1e-9)
	assert.Equal(t, config.LogLevelWarning, cfg.LogLevel)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("QUALITYCTL_CONFIG", "")
	t.Setenv("QUALITYCTL_LOG_LEVEL", "warning")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=debug", "--stability-window=5s", "--max-tier=high"}))

	cfg, err := newLoader(t, fs).Load()
	require.NoError(t, err)

	assert.Equal(t, config.LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Governor.StabilityWindow)
	assert.Equal(t, "high", cfg.Governor.MaxTier)
}

func TestConfigFlag(t *testing.T) {
	t.Setenv("QUALITYCTL_CONFIG", "")
	path := writeConfig(t, `initial_tier = "ultra"`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := newLoader(t, fs).Load()
	require.NoError(t, err)
	assert.Equal(t, "ultra", cfg.InitialTier)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `
log_level = "verbose"
probe = "opencl"

[governor]
downgrade_threshold = 60
upgrade_threshold = 50
smoothing_factor = 1.5
`)
	t.Setenv("QUALITYCTL_CONFIG", path)

	_, err := newLoader(t, nil).Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))

	var verr config.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "log_level", verr.Field())
	assert.Equal(t, config.LogLevel("verbose"), verr.Value())
	assert.NotEmpty(t, verr.Reason())
}

func TestStatusCollectsAllProblems(t *testing.T) {
	cfg := &config.Config{
		LogLevel:      config.LogLevelInfo,
		Probe:         probe.KindNone,
		Telemetry:     true,
		FrameInterval: 0,
		Governor: config.GovernorConfig{
			TargetFPS:                60,
			DowngradeThreshold:       45,
			UpgradeThreshold:         58,
			StabilityWindow:          2 * time.Second,
			UpgradeBackoffMultiplier: 0.5,
			MaxUpgradeBackoff:        time.Second,
			SmoothingFactor:          0.05,
			ThermalCheckInterval:     30 * time.Second,
		},
	}

	status := cfg.Status()
	assert.False(t, status.Valid)

	fields := make([]string, 0, len(status.ValidationErrors))
	for _, e := range status.ValidationErrors {
		fields = append(fields, e.Field())
	}
	assert.ElementsMatch(t, []string{
		"telemetry_db",
		"frame_interval",
		"governor.upgrade_backoff_multiplier",
		"governor.max_upgrade_backoff",
	}, fields)
}

func TestWatchWithoutFile(t *testing.T) {
	t.Setenv("QUALITYCTL_CONFIG", "")

	l := newLoader(t, nil)
	_, err := l.Load()
	require.NoError(t, err)

	err = l.Watch(context.Background(), func(*config.Config) {})
	assert.True(t, errors.HasCode(err, errors.ErrWatchConfig))
}

func TestWatchReload(t *testing.T) {
	path := writeConfig(t, `initial_tier = "low"`)

	l, err := config.NewLoader(nil, config.WithConfigFile(path))
	require.NoError(t, err)
	_, err = l.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 4)
	require.NoError(t, l.Watch(ctx, func(c *config.Config) { reloaded <- c }))

	require.NoError(t, os.WriteFile(path, []byte(`initial_tier = "high"`), 0o600))

	// A truncating write can surface as more than one event.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if c.InitialTier != "high" {
				continue
			}
			assert.Equal(t, "high", l.Current().InitialTier)
			return
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}
