package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/msamon/internal/config"
	"github.com/rsclarke/msamon/internal/logging"
	"github.com/rsclarke/msamon/internal/server"
)

var pollFlags struct {
	once   bool
	listen string
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the controller on an interval",
	Long: `Poll every configured resource on poll.interval, record readings and
alert on unhealthy components until interrupted.

With --listen (or poll.metrics_addr) a status listener serves:
  /metrics                  prometheus metrics
  /healthz                  liveness
  /v1/readings/{resource}   recorded readings as JSON`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().BoolVar(&pollFlags.once, "once", false, "run a single poll cycle and exit")
	pollCmd.Flags().StringVar(&pollFlags.listen, "listen", getEnv("MSAMON_METRICS_ADDR", ""), "status listener address (overrides poll.metrics_addr)")
}

func runPoll(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if pollFlags.once {
		return a.poller.Poll(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := pollFlags.listen
	if addr == "" {
		addr = cfg.Poll.MetricsAddr
	}
	if addr != "" {
		status := &server.StatusServer{
			DB:     a.history.DB(),
			Host:   cfg.Host().String(),
			Logger: logger.Named("status"),
		}
		ms := server.NewManagedServer("status", server.DefaultListenerConfig(addr, status.Handler(), logger.Named("status")))
		if err := ms.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			ms.Shutdown(shutdownCtx)
		}()
		go func() {
			if err, ok := <-ms.Err(); ok && err != nil {
				logger.Error("status listener stopped", zap.Error(err))
			}
		}()
	}

	if rootFlags.configPath != "" {
		err := config.Watch(ctx, rootFlags.configPath,
			func(c *config.Config) {
				a.poller.SetNotifier(notifierFor(c))
				logger.Info("config reloaded; notify settings applied, restart to apply other changes")
			},
			func(err error) {
				logger.Warn("config reload failed", zap.Error(err))
			})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	logger.Info("starting poller",
		logging.Host(cfg.Host().String()),
		logging.Scheme(cfg.Transport().String()),
		zap.Duration("interval", cfg.Poll.Interval),
		zap.Strings("resources", cfg.Poll.Resources))

	err = a.poller.Run(ctx, cfg.Poll.Interval)
	logger.Info("shutting down")
	return err
}
