package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wachbuch/roster-mirror/internal/config"
	"github.com/wachbuch/roster-mirror/internal/logger"
	"github.com/wachbuch/roster-mirror/internal/profile"
	"github.com/wachbuch/roster-mirror/internal/remote"
	"github.com/wachbuch/roster-mirror/internal/secrets"
	"github.com/wachbuch/roster-mirror/internal/store"
	rostersync "github.com/wachbuch/roster-mirror/internal/sync"
	"github.com/wachbuch/roster-mirror/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mirror daemon",
	Long: `Run the mirror daemon: open the encrypted local store, start the
background sync loop against the remote duty-roster service and, if
configured, expose Prometheus metrics.`,
	RunE: runServe,
}

const (
	gracefulTimeout    = 30 * time.Second
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 15 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	serveCmd.Flags().String("metrics-address", "", "Listen address for /metrics (overrides config)")

	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}
	if err := viper.BindPFlag("metrics-address", serveCmd.Flags().Lookup("metrics-address")); err != nil {
		logger.Fatalf("Failed to bind metrics-address flag: %v", err)
	}
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	logger.Initialize()

	cfg, err := config.Load(config.WithConfigPath(viper.GetString("config")))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr := viper.GetString("metrics-address"); addr != "" {
		cfg.MetricsAddress = addr
	}
	logger.Info("Starting roster mirror daemon",
		"endpoint", cfg.Remote.Endpoint, "department", cfg.Remote.DepartmentID, "dataDir", cfg.DataDir)

	key, err := secrets.StoreKey()
	if err != nil {
		return fmt.Errorf("failed to obtain store key: %w", err)
	}

	st, lock, err := store.Open(cfg.StorePath(), key)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Errorf("Failed to release store lock: %v", err)
		}
	}()

	prof := profile.Load(cfg.ProfilePath())
	if !prof.HasEnabled() {
		logger.Warn("no enabled credentials in profile, remote sync will fail until credentials are set")
	}

	client, err := remote.New(cfg.Remote.Endpoint, cfg.Remote.DepartmentID, cfg.Remote.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create remote client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.New(registry)

	coordinator := rostersync.New(client, st, prof, rostersync.WithMetrics(metrics))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync coordinator: %w", err)
	}
	defer coordinator.Stop()

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		metricsServer = newMetricsServer(cfg.MetricsAddress, registry)
		go func() {
			logger.Infof("Serving metrics on %s", cfg.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Metrics server shutdown failed: %v", err)
		}
	}

	if err := st.Save(); err != nil {
		logger.Errorf("Failed to persist store on shutdown: %v", err)
	}
	logger.Info("Daemon stopped")
	return nil
}

func newMetricsServer(address string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}
}
