package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/qualityctl/internal/config"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	loader *config.Loader
)

var rootCmd = &cobra.Command{
	Use:   "qualityctl",
	Short: "Adaptive rendering quality governor",
	Long: `qualityctl moves a ladder of rendering quality tiers up and down from a
stream of frame-rate samples, using smoothing, hysteresis, upgrade backoff
and a thermal throttling heuristic.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(replayCmd, runCmd, tiersCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error

	loader, err = config.NewLoader(cmd.Flags())
	if err != nil {
		return err
	}

	cfg, err = loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	logger.Init(cfg.LogLevel.String(), logger.IsService())
	logger.Debug().
		Str("config_file", loader.ConfigFileUsed()).
		Str("probe", string(cfg.Probe)).
		Bool("telemetry", cfg.Telemetry).
		Msg("Config loaded")

	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go handleSignals(ctx, cancel)
	return ctx, cancel
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}
