package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/qualityctl/internal/driver"
	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/governor"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/pid"
	"codeberg.org/mutker/qualityctl/internal/probe"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Replay recorded or synthetic frames against a simulated clock",
	Long: `Replay feeds frames to the governor as fast as possible, advancing a
simulated clock by each frame's duration. Input is a CSV file with an "fps"
or "frame_ms" column, a text file with one frame rate per line, stdin, or a
synthetic profile.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Govern frame rates read from stdin in real time",
	Long: `Run reads one frame rate per line from stdin and writes every tier change
to stdout as a JSON object per line. The config file is watched and changes
re-enable the governor.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show the tier ladder",
	Args:  cobra.NoArgs,
	RunE:  runTiers,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the tiers suggested for this device",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func init() {
	f := replayCmd.Flags()
	f.String("profile", "", "Synthetic profile (steady, heavy, spiky, thermal)")
	f.Int64("seed", 1, "Seed for the synthetic profile")
	f.Int("frames", 7500, "Number of synthetic frames")
	f.Bool("json", false, "Write notifications as JSON lines instead of a summary")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	src, closeSrc, err := replaySource(cmd, args)
	if err != nil {
		return err
	}
	defer closeSrc()

	clk := governor.NewManualClock(governor.SystemClock{}.Now())

	var observers []governor.Observer
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		observers = append(observers, driver.JSONObserver(cmd.OutOrStdout(), clk, logger.Get()))
	}

	a, err := newApp(ctx, cfg, clk, observers...)
	if err != nil {
		return err
	}
	defer a.close()

	d := driver.New(a.gov,
		driver.WithCollector(a.collector),
		driver.WithLogger(logger.Get().With("driver")),
	)

	sum, err := d.Replay(ctx, clk, src)
	if err != nil {
		logger.Error().Err(err).Int("frames", sum.Frames).Msg("Replay stopped")
		return err
	}

	if !asJSON {
		renderSummary(cmd.OutOrStdout(), sum)
	}

	return nil
}

func replaySource(cmd *cobra.Command, args []string) (driver.Source, func(), error) {
	noop := func() {}

	profile, _ := cmd.Flags().GetString("profile")
	if profile != "" {
		seed, _ := cmd.Flags().GetInt64("seed")
		frames, _ := cmd.Flags().GetInt("frames")
		src, err := driver.NewProfileSource(driver.Profile(profile), seed, frames, cfg.FrameInterval)
		return src, noop, err
	}

	if len(args) == 0 || args[0] == "-" {
		return driver.NewLineSource(cmd.InOrStdin(), cfg.FrameInterval), noop, nil
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, noop, errors.New().Wrap(errors.ErrReadSample, err)
	}
	closeFile := func() { f.Close() }

	if strings.EqualFold(filepath.Ext(args[0]), ".csv") {
		src, err := driver.NewCSVSource(f, cfg.FrameInterval)
		if err != nil {
			closeFile()
			return nil, noop, err
		}
		return src, closeFile, nil
	}

	return driver.NewLineSource(f, cfg.FrameInterval), closeFile, nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	if err := pid.Write(); err != nil {
		logger.ErrorWithCode(asError(err)).Msg("Failed to write PID file")
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	clk := governor.SystemClock{}
	a, err := newApp(ctx, cfg, clk, driver.JSONObserver(cmd.OutOrStdout(), clk, logger.Get()))
	if err != nil {
		return err
	}
	defer cleanup(a)

	if loader.ConfigFileUsed() != "" {
		if err := loader.Watch(ctx, a.reload); err != nil {
			logger.Warn().Err(err).Msg("Config reload unavailable")
		}
	}

	d := driver.New(a.gov,
		driver.WithCollector(a.collector),
		driver.WithLogger(logger.Get().With("driver")),
	)

	logger.Info().Str("tier", a.gov.CurrentTier().Name).Msg("Reading frame rates from stdin")

	sum, err := d.Run(ctx, driver.NewLineSource(cmd.InOrStdin(), cfg.FrameInterval))
	if err != nil {
		logger.ErrorWithCode(asError(err)).Msg("Error in main loop")
		return err
	}

	logger.Info().
		Int("frames", sum.Frames).
		Int("changes", len(sum.Changes)).
		Str("tier", sum.EndTier).
		Msg("Input finished")

	return nil
}

func cleanup(a *app) {
	a.close()
	logger.Info().Msg("Exiting...")
}

func runTiers(cmd *cobra.Command, _ []string) error {
	a, err := newApp(context.Background(), cfg, governor.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	minIdx, maxIdx := boundsOf(a.gov)
	renderTiers(cmd.OutOrStdout(), a.gov.Tiers(), a.gov.CurrentTier().Name, minIdx, maxIdx)

	return nil
}

func runProbe(cmd *cobra.Command, _ []string) error {
	kind := cfg.Probe
	if kind == probe.KindNone {
		kind = probe.KindNVML
	}

	p, err := probe.New(kind, cfg.ProbeSuggestion())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	s, err := p.Probe(ctx)
	if err != nil {
		logger.ErrorWithCode(asError(err)).Msg("Device probe failed")
		return err
	}

	renderSuggestion(cmd.OutOrStdout(), kind, s)

	return nil
}

// boundsOf returns the clamp band as ladder indices.
func boundsOf(g *governor.Governor) (int, int) {
	names := g.TierNames()
	c := g.Config()

	minIdx, maxIdx := 0, len(names)-1
	for i, n := range names {
		if n == c.MinTier {
			minIdx = i
		}
		if n == c.MaxTier {
			maxIdx = i
		}
	}

	return minIdx, maxIdx
}

func asError(err error) errors.Error {
	var e errors.Error
	if errors.As(err, &e) {
		return e
	}
	return errors.New().Wrap(errors.ErrInternal, err)
}
