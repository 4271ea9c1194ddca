package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/prescripto/clinic-console/internal/admin"
	"github.com/prescripto/clinic-console/internal/api"
	appconfig "github.com/prescripto/clinic-console/internal/config"
	"github.com/prescripto/clinic-console/internal/console"
	"github.com/prescripto/clinic-console/internal/credential"
	"github.com/prescripto/clinic-console/internal/doctor"
	"github.com/prescripto/clinic-console/internal/notify"
	"github.com/prescripto/clinic-console/internal/observability/metrics"
	"github.com/prescripto/clinic-console/internal/orders"
	"github.com/prescripto/clinic-console/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-console",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendURL,
	)

	reg := prometheus.NewRegistry()
	consoleMetrics := metrics.NewConsoleMetrics(reg)

	feed := notify.NewRecorder(100)
	notifier := notify.Multi(feed, notify.NewLogNotifier(logger))

	httpClient := &http.Client{}
	if cfg.RequestTimeout > 0 {
		httpClient.Timeout = cfg.RequestTimeout
	}
	client := api.NewClient(cfg.BackendURL,
		api.WithHTTPClient(httpClient),
		api.WithLogger(logger),
	)

	credStore := credential.NewStore(buildRedisClient(cfg))

	adminStore := admin.NewStore(client, credStore, notifier, consoleMetrics, logger)
	defer adminStore.Close()
	doctorStore := doctor.NewStore(client, credStore, notifier, consoleMetrics, logger)
	defer doctorStore.Close()
	orderStore := orders.NewStore(client, notifier, consoleMetrics, logger)
	defer orderStore.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	restoreSessions(startupCtx, adminStore, doctorStore, orderStore, logger)
	cancelStartup()

	refresh := startRefresher(cfg.RefreshInterval, adminStore, doctorStore, orderStore)
	defer refresh()

	handler := console.New(&console.Config{
		Logger:         logger,
		Admin:          adminStore,
		Doctor:         doctorStore,
		Orders:         orderStore,
		Feed:           feed,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		TrendMonths:    cfg.TrendMonths,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("console listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down console...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("console stopped")
}

func buildRedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// restoreSessions loads persisted credentials and primes each store. A
// missing or expired credential is not fatal: the console stays up and shows
// whatever state it can fetch.
func restoreSessions(ctx context.Context, adminStore *admin.Store, doctorStore *doctor.Store, orderStore *orders.Store, logger *logging.Logger) {
	if err := adminStore.RestoreCredential(ctx); err != nil {
		logger.Warn("restore admin credential", "error", err)
	}
	if token := adminStore.Credential(); token != "" {
		if info := credential.Inspect(token, time.Now()); info.Expired {
			logger.Warn("admin session token already expired", "expired_at", info.ExpiresAt)
		}
		adminStore.FetchDoctors(ctx)
		adminStore.FetchAppointments(ctx)
		adminStore.FetchPatients(ctx)
		adminStore.FetchDashboard(ctx)
	}

	if err := doctorStore.RestoreCredential(ctx); err != nil {
		logger.Warn("restore doctor credential", "error", err)
	}

	orderStore.FetchOrders(ctx)
}

// startRefresher refetches every collection on an interval so the console
// never drifts too far from server truth. Returns a stop function.
func startRefresher(interval time.Duration, adminStore *admin.Store, doctorStore *doctor.Store, orderStore *orders.Store) func() {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if adminStore.Credential() != "" {
					adminStore.FetchDoctors(ctx)
					adminStore.FetchAppointments(ctx)
					adminStore.FetchPatients(ctx)
					adminStore.FetchDashboard(ctx)
				}
				if doctorStore.Credential() != "" {
					doctorStore.Refresh(ctx)
				}
				orderStore.FetchOrders(ctx)
			}
		}
	}()
	return cancel
}
