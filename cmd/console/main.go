package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/api"
	"github.com/keepdeck-io/keepdeck/internal/auth"
	"github.com/keepdeck-io/keepdeck/internal/metrics"
	"github.com/keepdeck-io/keepdeck/internal/rpc"
	"github.com/keepdeck-io/keepdeck/internal/simulator"
	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/ws"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr      string
	daemonURL     string
	daemonTimeout time.Duration
	password      string
	sessionSecret string
	pollInterval  time.Duration
	logLevel      string
	demo          bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "keepdeck",
		Short: "Keepdeck console — web management console for the backup daemon",
		Long: `Keepdeck console is the web-facing half of the Keepdeck backup system.
It fronts the backup daemon's JSON-RPC interface with a REST API and a
WebSocket event stream for the browser UI, and keeps live task progress
and target connectivity fresh through reference-counted polling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeygenCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("KEEPDECK_HTTP_ADDR", ":8080"), "HTTP API listen address")
	root.PersistentFlags().StringVar(&cfg.daemonURL, "daemon-url", envOrDefault("KEEPDECK_DAEMON_URL", "http://127.0.0.1:7180/rpc"), "Backup daemon JSON-RPC endpoint")
	root.PersistentFlags().DurationVar(&cfg.daemonTimeout, "daemon-timeout", envDurationOrDefault("KEEPDECK_DAEMON_TIMEOUT", 30*time.Second), "Per-call timeout for daemon requests (0 disables)")
	root.PersistentFlags().StringVar(&cfg.password, "password", envOrDefault("KEEPDECK_PASSWORD", ""), "Operator password for console login (required)")
	root.PersistentFlags().StringVar(&cfg.sessionSecret, "session-secret", envOrDefault("KEEPDECK_SESSION_SECRET", ""), "Hex-encoded session signing secret (generated if empty)")
	root.PersistentFlags().DurationVar(&cfg.pollInterval, "poll-interval", envDurationOrDefault("KEEPDECK_POLL_INTERVAL", taskmgr.DefaultPollInterval), "Refresh period for task and target polling")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("KEEPDECK_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&cfg.demo, "demo", false, "Run against a built-in simulated daemon with seeded demo data")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("keepdeck %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a session signing secret for KEEPDECK_SESSION_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Println(secret)
			return nil
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.password == "" {
		return fmt.Errorf("operator password is required — set --password or KEEPDECK_PASSWORD")
	}

	logger.Info("starting keepdeck console",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("daemon_url", cfg.daemonURL),
		zap.Bool("demo", cfg.demo),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Daemon gateway: the real one, or the in-process simulator in demo mode.
	var caller rpc.Caller
	if cfg.demo {
		sim, err := simulator.New(simulator.Config{StartDelay: 2 * time.Second}, logger)
		if err != nil {
			return err
		}
		if err := sim.Seed(ctx); err != nil {
			return err
		}
		caller = sim
	} else {
		caller = rpc.NewGateway(rpc.Config{
			Endpoint: cfg.daemonURL,
			Timeout:  cfg.daemonTimeout,
		}, logger, m)
	}

	mgr := taskmgr.New(caller, taskmgr.Config{
		TaskPollInterval:   cfg.pollInterval,
		TargetPollInterval: cfg.pollInterval,
	}, logger, m)
	defer mgr.Shutdown()

	authMgr, err := buildAuth(cfg)
	if err != nil {
		return err
	}

	hub := ws.NewHub(m)
	go hub.Run(ctx)

	bridge := ws.NewBridge(hub, mgr, logger)
	defer bridge.Close()

	router := api.NewRouter(api.RouterConfig{
		Manager:  mgr,
		Auth:     authMgr,
		Hub:      hub,
		Logger:   logger,
		Registry: registry,
	})

	srv := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down keepdeck console")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}

// buildAuth wires the session manager from the configured secret, falling
// back to an ephemeral one when none is set.
func buildAuth(cfg *config) (*auth.Manager, error) {
	const issuer = "keepdeck-console"

	if cfg.sessionSecret == "" {
		return auth.NewManagerGenerated(cfg.password, issuer)
	}

	secret, err := hex.DecodeString(cfg.sessionSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid session secret: %w", err)
	}
	return auth.NewManager(secret, cfg.password, issuer)
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
