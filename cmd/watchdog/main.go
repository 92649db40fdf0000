package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/watchdog/internal/config"
	"github.com/hazz-dev/watchdog/internal/probe"
	"github.com/hazz-dev/watchdog/internal/scheduler"
	"github.com/hazz-dev/watchdog/internal/server"
	"github.com/hazz-dev/watchdog/internal/status"
	"github.com/hazz-dev/watchdog/internal/storage"
	"github.com/hazz-dev/watchdog/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "watchdog",
		Short:        "HTTP uptime watchdog with rolling availability and latency scores",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (optional)")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(addCmd())
	root.AddCommand(targetsCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// loadConfig reads the config file and builds the logger it describes.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	st, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}
	return st, nil
}

func newExecutor(cfg *config.Config, store probe.Appender, logger *slog.Logger) *probe.Executor {
	if cfg.Probe.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled for all probes")
	}
	client := probe.NewClient(probe.ClientOptions{
		Timeout:            cfg.Probe.Timeout.Duration,
		InsecureSkipVerify: cfg.Probe.InsecureSkipVerify,
		MaxRedirects:       cfg.Probe.MaxRedirects,
	})
	ua := cfg.Probe.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return probe.NewExecutor(client, store, cfg.Probe.Timeout.Duration, logger, probe.WithUserAgent(ua))
}

type targetUpserter interface {
	UpsertTarget(ctx context.Context, rawURL string) (storage.Target, bool, error)
}

// seedTargets registers every configured URL. Existing targets are left
// untouched.
func seedTargets(ctx context.Context, store targetUpserter, urls []string, logger *slog.Logger) error {
	for _, u := range urls {
		t, created, err := store.UpsertTarget(ctx, u)
		if err != nil {
			return fmt.Errorf("registering %s: %w", u, err)
		}
		if created {
			logger.Info("target registered", "id", t.ID, "url", t.URL)
		}
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	// Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedTargets(ctx, db, cfg.Targets, logger); err != nil {
		return err
	}

	agg := status.NewAggregator(db, nil)
	apiServer := server.New(db, agg, logger)
	apiServer.SetProbeInterval(cfg.Probe.Interval.Duration)
	hub := apiServer.Hub()

	sched := scheduler.New(cfg.Probe.Interval.Duration, db, newExecutor(cfg, db, logger), logger)
	sched.SetOnTick(func(scheduler.Report) {
		hub.Broadcast(context.WithoutCancel(ctx))
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Configured targets are picked up live; removing one from the file
	// does not unregister it.
	if cfgFile != "" {
		go func() {
			err := config.Watch(ctx, cfgFile, logger, func(next *config.Config) {
				if err := seedTargets(ctx, db, next.Targets, logger); err != nil {
					logger.Error("registering reloaded targets", "error", err)
				}
			})
			if err != nil {
				logger.Error("config watch stopped", "error", err)
			}
		}()
	}

	sched.Start(ctx)
	logger.Info("scheduler started", "interval", cfg.Probe.Interval.Duration, "timeout", cfg.Probe.Timeout.Duration)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		sched.Wait()
		return fmt.Errorf("HTTP server: %w", err)
	}

	// Let the in-flight tick finish before the store closes.
	sched.Wait()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every registered target once and record the results",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedTargets(ctx, db, cfg.Targets, logger); err != nil {
		return err
	}
	return executeCheck(ctx, cmd.OutOrStdout(), db, newExecutor(cfg, db, logger), logger)
}

func statusCmd() *cobra.Command {
	var ranked bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print uptime, p95 latency, score and grade per target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(commandContext(cmd), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return executeStatus(cmd, status.NewAggregator(db, nil), ranked)
		},
	}
	cmd.Flags().BoolVar(&ranked, "ranked", false, "order by score, best first")
	return cmd
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>...",
		Short: "Register one or more target URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(commandContext(cmd), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return executeAdd(cmd, db, args)
		},
	}
}

func targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List registered targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(commandContext(cmd), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return executeTargets(cmd, db)
		},
	}
}
