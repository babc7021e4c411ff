package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/mailroute/internal/logging"
	"github.com/teemow/mailroute/internal/router"
	"github.com/teemow/mailroute/internal/server"
	"github.com/teemow/mailroute/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		debounce    time.Duration
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Route the inbox whenever new files arrive",
		Long: `Watch the inbox directory and start a route run once new files have settled
for the debounce period. A periodic run (--interval) also picks up payloads
without sidecars once their grace period has expired.

With --metrics-addr, Prometheus metrics and health probes are served on
that address (/metrics, /healthz, /readyz, /healthz/detailed).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, logging.StageWatch)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx), "")

			if !cmd.Flags().Changed("debounce") && a.cfg.Watch.Debounce > 0 {
				debounce = a.cfg.Watch.Debounce
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Watch.MetricsAddr
			}
			return runWatch(ctx, a, debounce, interval, metricsAddr)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period after the last inbox change before routing")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Minute, "Periodic route run even without changes (0 disables)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the metrics and health server (e.g. :9090; default: watch.metrics_addr)")
	return cmd
}

func runWatch(ctx context.Context, a *app, debounce, interval time.Duration, metricsAddr string) error {
	health := server.NewHealthChecker()

	if metricsAddr != "" {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsAddr,
			InstrumentationProvider: a.provider,
			Health:                  health,
		})
		if err != nil {
			a.logger.Warn("metrics server disabled", logging.Err(err))
		} else {
			go func() {
				if err := metricsServer.Start(); err != nil {
					a.logger.Error("metrics server error", logging.Err(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
				defer cancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					a.logger.Warn("error during metrics server shutdown", logging.Err(err))
				}
			}()
		}
	}

	r := a.newRouter(ctx)
	max := a.cfg.Router.MaxPerRun
	trigger := func(ctx context.Context) error {
		_, err := r.Run(ctx, router.RunOptions{Max: max})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		health.RecordRun(err)
		return err
	}

	w := watch.New(a.cfg.Paths.Inbox, trigger,
		watch.WithDebounce(debounce),
		watch.WithInterval(interval),
		watch.WithLogger(logging.NewSlogAdapter(a.logger)),
	)
	return w.Run(ctx)
}
