package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"metalgrid.io/fleetd/internal/capture"
	"metalgrid.io/fleetd/internal/config"
	"metalgrid.io/fleetd/internal/discovery"
	"metalgrid.io/fleetd/internal/neighbor"
	"metalgrid.io/fleetd/internal/report"
	"metalgrid.io/fleetd/pkg/log"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the discovery agent",
	Long: `Start the fleetd discovery agent.

Examples:
  fleetd start                          # use /etc/fleetd/config.yml
  fleetd start -c ./config.yml          # use an explicit config file`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load configuration", err)
		}
		if err := log.Init(cfg.Log); err != nil {
			exitWithError("failed to initialize logging", err)
		}
		if err := run(cfg); err != nil {
			exitWithError("agent failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func run(cfg *config.Config) error {
	logger := log.Component("agent")

	sources, err := openSources(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for name, src := range sources {
			if cerr := src.Close(); cerr != nil {
				logger.WithError(cerr).WithField("interface", name).Warn("failed to close capture handle")
			}
		}
	}()

	client, err := report.NewClient(cfg.Report.Client)
	if err != nil {
		return err
	}
	defer client.Close()

	reporter := report.New(report.Config{
		QueueSize:        cfg.Report.QueueSize,
		BatchSize:        cfg.Report.BatchSize,
		FlushInterval:    cfg.Report.FlushInterval,
		RetryLimit:       cfg.Report.RetryLimit,
		RefreshRateLimit: cfg.Report.RefreshRateLimit,
		PublishTimeout:   cfg.Report.Client.Timeout,
	}, client, log.Component("report"))

	monitor := discovery.New(discovery.Config{
		NeighborTTL:   cfg.Discovery.NeighborTTL,
		SweepInterval: cfg.Discovery.SweepInterval,
		MaxTableSize:  cfg.Discovery.MaxTableSize,
	}, neighbor.NewTable(), reporter, sources, log.Component("discovery"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("interfaces", cfg.Interfaces).Info("agent starting")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		statusLoop(ctx, monitor, reporter, logger)
	}()

	monitor.Run(ctx)
	wg.Wait()

	logger.Info("agent stopped")
	return nil
}

// statusLoop periodically logs per-interface and reporter counters so an
// external supervisor can spot a persistently failing interface.
func statusLoop(ctx context.Context, monitor *discovery.Monitor, reporter *report.Reporter, logger *logrus.Entry) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, st := range monitor.Status() {
				logger.WithFields(logrus.Fields{
					"interface":     name,
					"frames":        st.Frames,
					"observations":  st.Observations,
					"decode_errors": st.DecodeErrors,
					"read_errors":   st.ReadErrors,
				}).Debug("interface status")
			}
			c := reporter.Counters()
			logger.WithFields(logrus.Fields{
				"sent":            c.Sent,
				"queue_dropped":   c.QueueDropped,
				"batches_dropped": c.BatchesDropped,
				"suppressed":      c.Suppressed,
			}).Debug("reporter status")
		}
	}
}

func openSources(cfg *config.Config) (map[string]discovery.Source, error) {
	opts := &capture.Options{
		BufferSize:  cfg.Capture.BufferSize,
		SnapLen:     cfg.Capture.SnapLen,
		PollTimeout: cfg.Capture.PollTimeout,
		Filter:      cfg.Capture.Filter,
		FanoutID:    cfg.Capture.FanoutID,
	}

	sources := make(map[string]discovery.Source, len(cfg.Interfaces))
	for _, name := range cfg.Interfaces {
		handle, err := capture.NewHandle(capture.Type(cfg.Capture.Type))
		if err != nil {
			closeSources(sources)
			return nil, err
		}
		if err := handle.Open(name, opts); err != nil {
			closeSources(sources)
			return nil, fmt.Errorf("failed to open capture on %s: %w", name, err)
		}
		sources[name] = handle
	}
	return sources, nil
}

func closeSources(sources map[string]discovery.Source) {
	for _, src := range sources {
		_ = src.Close()
	}
}
