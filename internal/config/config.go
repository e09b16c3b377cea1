package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/governor"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/probe"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix     = "QUALITYCTL"
	DefaultLogLevel      = LogLevelInfo
	DefaultProbe         = probe.KindNone
	DefaultFrameInterval = 16 * time.Millisecond

	configName = "qualityctl"
	configType = "toml"
)

// Config is the complete application configuration.
type Config struct {
	LogLevel      LogLevel       `mapstructure:"log_level"`
	InitialTier   string         `mapstructure:"initial_tier"`
	TiersFile     string         `mapstructure:"tiers_file"`
	Probe         probe.Kind     `mapstructure:"probe"`
	Telemetry     bool           `mapstructure:"telemetry"`
	TelemetryDB   string         `mapstructure:"telemetry_db"`
	FrameInterval time.Duration  `mapstructure:"frame_interval"`
	Governor      GovernorConfig `mapstructure:"governor"`
}

// GovernorConfig mirrors governor.Config in the [governor] table.
type GovernorConfig struct {
	TargetFPS                float64       `mapstructure:"target_fps"`
	DowngradeThreshold       float64       `mapstructure:"downgrade_threshold"`
	UpgradeThreshold         float64       `mapstructure:"upgrade_threshold"`
	StabilityWindow          time.Duration `mapstructure:"stability_window"`
	UpgradeBackoffMultiplier float64       `mapstructure:"upgrade_backoff_multiplier"`
	MaxUpgradeBackoff        time.Duration `mapstructure:"max_upgrade_backoff"`
	MinTier                  string        `mapstructure:"min_tier"`
	MaxTier                  string        `mapstructure:"max_tier"`
	ThermalProtection        bool          `mapstructure:"thermal_protection"`
	SmoothingFactor          float64       `mapstructure:"smoothing_factor"`
	ThermalCheckInterval     time.Duration `mapstructure:"thermal_check_interval"`
}

// AdaptiveConfig converts the [governor] table for Governor.Enable.
func (c *Config) AdaptiveConfig() governor.Config {
	g := c.Governor
	return governor.Config{
		TargetFPS:                g.TargetFPS,
		DowngradeThreshold:       g.DowngradeThreshold,
		UpgradeThreshold:         g.UpgradeThreshold,
		StabilityWindow:          g.StabilityWindow,
		UpgradeBackoffMultiplier: g.UpgradeBackoffMultiplier,
		MaxUpgradeBackoff:        g.MaxUpgradeBackoff,
		MinTier:                  g.MinTier,
		MaxTier:                  g.MaxTier,
		DisableThermal:           !g.ThermalProtection,
		SmoothingFactor:          g.SmoothingFactor,
		ThermalCheckInterval:     g.ThermalCheckInterval,
	}
}

// ProbeSuggestion is the static suggestion taken from the configuration.
func (c *Config) ProbeSuggestion() probe.Suggestion {
	return probe.Suggestion{
		InitialTier: c.InitialTier,
		MinTier:     c.Governor.MinTier,
		MaxTier:     c.Governor.MaxTier,
	}
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":           "log_level",
	"initial-tier":        "initial_tier",
	"tiers-file":          "tiers_file",
	"probe":               "probe",
	"telemetry":           "telemetry",
	"telemetry-db":        "telemetry_db",
	"frame-interval":      "frame_interval",
	"target-fps":          "governor.target_fps",
	"downgrade-threshold": "governor.downgrade_threshold",
	"upgrade-threshold":   "governor.upgrade_threshold",
	"stability-window":    "governor.stability_window",
	"min-tier":            "governor.min_tier",
	"max-tier":            "governor.max_tier",
	"thermal-protection":  "governor.thermal_protection",
}

// RegisterFlags defines every flag the loader knows how to bind.
func RegisterFlags(fs *pflag.FlagSet) {
	d := governor.DefaultConfig()

	fs.String("config", "", "Path to configuration file")
	fs.String("log-level", DefaultLogLevel.String(), "Log level (debug, info, warning, error)")
	fs.String("initial-tier", "", "Tier to start at")
	fs.String("tiers-file", "", "TOML file with additional [[tier]] tables")
	fs.String("probe", string(DefaultProbe), "Device prober (none, static, nvml)")
	fs.Bool("telemetry", false, "Record tier changes and snapshots to SQLite")
	fs.String("telemetry-db", defaultTelemetryDB(), "Path to the telemetry database")
	fs.Duration("frame-interval", DefaultFrameInterval, "Simulated frame time for replay input without timing")
	fs.Float64("target-fps", d.TargetFPS, "Target frame rate")
	fs.Float64("downgrade-threshold", d.DowngradeThreshold, "Smoothed fps below which quality is lowered")
	fs.Float64("upgrade-threshold", d.UpgradeThreshold, "Smoothed fps above which quality is raised")
	fs.Duration("stability-window", d.StabilityWindow, "Dwell time before a tier change")
	fs.String("min-tier", "", "Lowest tier the governor may select")
	fs.String("max-tier", "", "Highest tier the governor may select")
	fs.Bool("thermal-protection", !d.DisableThermal, "Enable the thermal throttling heuristic")
}

// Loader reads configuration from defaults, a TOML file, the environment and
// command line flags, in increasing order of precedence.
type Loader struct {
	v     *viper.Viper
	opts  options
	flags *pflag.FlagSet

	mu  sync.Mutex
	cfg *Config
}

var _ Watcher = (*Loader)(nil)

// NewLoader prepares a loader. flags may be nil.
func NewLoader(flags *pflag.FlagSet, opts ...Option) (*Loader, error) {
	errFactory := errors.New()

	o := options{
		envPrefix:   DefaultEnvPrefix,
		searchPaths: defaultSearchPaths(),
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	l := &Loader{v: viper.New(), opts: o, flags: flags}
	setDefaults(l.v)

	l.v.SetEnvPrefix(o.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := l.v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	return l, nil
}

// Load reads all sources, validates the result and returns it.
func (l *Loader) Load() (*Config, error) {
	errFactory := errors.New()

	path := l.configPath()
	if path != "" {
		l.v.SetConfigFile(path)
		l.v.SetConfigType(configType)
	} else {
		l.v.SetConfigName(configName)
		l.v.SetConfigType(configType)
		for _, p := range l.opts.searchPaths {
			l.v.AddConfigPath(p)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
		logger.Debug().Msg("No config file found, using defaults")
	} else {
		logger.Debug().Str("path", l.v.ConfigFileUsed()).Msg("Loaded config file")
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	return cfg, nil
}

// ConfigFileUsed returns the path of the file read by Load, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Watch re-reads the configuration file whenever it is written or recreated.
// Invalid revisions are logged and skipped. Load must have found a file.
func (l *Loader) Watch(ctx context.Context, callback func(*Config)) error {
	errFactory := errors.New()

	if l.v.ConfigFileUsed() == "" {
		return errFactory.WithMessage(errors.ErrWatchConfig, "no config file loaded")
	}

	var stopped atomic.Bool
	go func() {
		<-ctx.Done()
		stopped.Store(true)
	}()

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if stopped.Load() || !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := l.decode()
		if err != nil {
			logger.Warn().Err(err).Str("path", e.Name).Msg("Ignoring invalid config change")
			return
		}

		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()

		logger.Info().Str("path", e.Name).Msg("Config reloaded")
		callback(cfg)
	})
	l.v.WatchConfig()

	return nil
}

func (l *Loader) decode() (*Config, error) {
	errFactory := errors.New()

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.LogLevel = LogLevel(strings.ToLower(string(cfg.LogLevel)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (l *Loader) configPath() string {
	if l.opts.configPath != "" {
		return l.opts.configPath
	}
	if l.flags != nil {
		if f := l.flags.Lookup("config"); f != nil && f.Changed {
			return f.Value.String()
		}
	}
	return os.Getenv(l.opts.envPrefix + "_CONFIG")
}

func setDefaults(v *viper.Viper) {
	d := governor.DefaultConfig()

	v.SetDefault("log_level", DefaultLogLevel.String())
	v.SetDefault("initial_tier", "")
	v.SetDefault("tiers_file", "")
	v.SetDefault("probe", string(DefaultProbe))
	v.SetDefault("telemetry", false)
	v.SetDefault("telemetry_db", defaultTelemetryDB())
	v.SetDefault("frame_interval", DefaultFrameInterval)

	v.SetDefault("governor.target_fps", d.TargetFPS)
	v.SetDefault("governor.downgrade_threshold", d.DowngradeThreshold)
	v.SetDefault("governor.upgrade_threshold", d.UpgradeThreshold)
	v.SetDefault("governor.stability_window", d.StabilityWindow)
	v.SetDefault("governor.upgrade_backoff_multiplier", d.UpgradeBackoffMultiplier)
	v.SetDefault("governor.max_upgrade_backoff", d.MaxUpgradeBackoff)
	v.SetDefault("governor.min_tier", "")
	v.SetDefault("governor.max_tier", "")
	v.SetDefault("governor.thermal_protection", !d.DisableThermal)
	v.SetDefault("governor.smoothing_factor", d.SmoothingFactor)
	v.SetDefault("governor.thermal_check_interval", d.ThermalCheckInterval)
}

func defaultSearchPaths() []string {
	paths := []string{"/etc/qualityctl"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "qualityctl"))
	}
	return append(paths, ".")
}

func defaultTelemetryDB() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "qualityctl", "metrics.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "qualityctl", "metrics.db")
	}
	return filepath.Join(os.TempDir(), "qualityctl", "metrics.db")
}

type validationError struct {
	field  string
	value  interface{}
	reason string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s = %v: %s", e.field, e.value, e.reason)
}

func (e *validationError) Field() string      { return e.field }
func (e *validationError) Value() interface{} { return e.value }
func (e *validationError) Reason() string     { return e.reason }

// Status reports every validation problem in c.
func (c *Config) Status() Status {
	var errs []ValidationError
	invalid := func(field string, value interface{}, reason string) {
		errs = append(errs, &validationError{field: field, value: value, reason: reason})
	}

	if !c.LogLevel.IsValid() {
		invalid("log_level", c.LogLevel, "must be one of debug, info, warning, error")
	}
	if !c.Probe.IsValid() {
		invalid("probe", c.Probe, "must be one of none, static, nvml")
	}
	if c.Telemetry && c.TelemetryDB == "" {
		invalid("telemetry_db", c.TelemetryDB, "required when telemetry is enabled")
	}
	if c.FrameInterval <= 0 {
		invalid("frame_interval", c.FrameInterval, "must be positive")
	}

	g := c.Governor
	if g.TargetFPS <= 0 {
		invalid("governor.target_fps", g.TargetFPS, "must be positive")
	}
	if g.DowngradeThreshold <= 0 {
		invalid("governor.downgrade_threshold", g.DowngradeThreshold, "must be positive")
	}
	if g.DowngradeThreshold >= g.UpgradeThreshold {
		invalid("governor.downgrade_threshold", g.DowngradeThreshold, "must be below upgrade_threshold")
	}
	if g.StabilityWindow <= 0 {
		invalid("governor.stability_window", g.StabilityWindow, "must be positive")
	}
	if g.UpgradeBackoffMultiplier < 1 {
		invalid("governor.upgrade_backoff_multiplier", g.UpgradeBackoffMultiplier, "must be at least 1")
	}
	if g.MaxUpgradeBackoff < g.StabilityWindow {
		invalid("governor.max_upgrade_backoff", g.MaxUpgradeBackoff, "must not be below stability_window")
	}
	if g.SmoothingFactor <= 0 || g.SmoothingFactor > 1 {
		invalid("governor.smoothing_factor", g.SmoothingFactor, "must be in (0, 1]")
	}
	if g.ThermalCheckInterval <= 0 {
		invalid("governor.thermal_check_interval", g.ThermalCheckInterval, "must be positive")
	}

	return Status{Valid: len(errs) == 0, ValidationErrors: errs}
}

// Validate returns nil if c is usable, or an ErrInvalidConfig error wrapping
// every ValidationError.
func (c *Config) Validate() error {
	status := c.Status()
	if status.Valid {
		return nil
	}

	errs := make([]error, len(status.ValidationErrors))
	for i, e := range status.ValidationErrors {
		errs[i] = e
	}

	return errors.New().Wrap(errors.ErrInvalidConfig, errors.Join(errs...))
}
