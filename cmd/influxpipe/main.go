package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/influxpipe/influxpipe/internal/relay"
	"github.com/influxpipe/influxpipe/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "influxpipe",
		Short: "Metric aggregation and batched InfluxDB dispatch daemon",
		Long: `influxpipe receives timestamped metric samples, groups
same-timestamp samples sharing an identity into multi-field records,
and ships them as line protocol to InfluxDB in bounded batches,
tolerating backend unavailability without blocking ingestion.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)
	cmd.Flags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	if err := cmd.MarkFlagRequired("config"); err != nil {
		fmt.Fprintf(os.Stderr, "error marking flag required: %v\n", err)
		os.Exit(1)
	}

	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Full())
		},
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := relay.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	r, err := relay.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	log.Info("Starting influxpipe")

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}

	// SIGHUP re-reads the config file and swaps the dispatch
	// snapshot without restarting.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		for range hup {
			reloaded, err := relay.LoadConfig(cfgFile)
			if err != nil {
				log.WithError(err).Error("Config reload failed")

				continue
			}

			r.Reload(reloaded)
			log.Info("Config reloaded")
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down influxpipe")
	signal.Stop(hup)
	close(hup)

	if err := r.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping relay: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}
