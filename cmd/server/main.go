package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-lifecycle/internal/config"
	"github.com/example/ride-lifecycle/internal/dispatch"
	"github.com/example/ride-lifecycle/internal/events"
	"github.com/example/ride-lifecycle/internal/geocode"
	"github.com/example/ride-lifecycle/internal/history"
	"github.com/example/ride-lifecycle/internal/httpapi"
	"github.com/example/ride-lifecycle/internal/identity"
	"github.com/example/ride-lifecycle/internal/lifecycle"
	"github.com/example/ride-lifecycle/internal/logging"
	"github.com/example/ride-lifecycle/internal/payments"
	"github.com/example/ride-lifecycle/internal/routes"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		// No logger yet; this is the one place stderr is used directly.
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var channel dispatch.Channel
	if cfg.RedisAddr != "" {
		channel = dispatch.NewRedisChannel(cfg.RedisAddr, cfg.RedisPassword)
		logger.Info("dispatch channel: redis", "addr", cfg.RedisAddr)
	} else {
		channel = dispatch.NewMemoryChannel()
		logger.Warn("dispatch channel: in-memory, single process only")
	}

	var store history.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN); err != nil {
				logger.Error("migrations failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		ps, err := history.NewPostgresStore(cfg.PGDSN, logger)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		store = ps
		logger.Info("trip history: postgres")
	} else {
		store = history.NewMemoryStore()
		logger.Warn("trip history: in-memory, records lost on restart")
	}

	planner := routes.NewPlanner(cfg.MapboxToken, cfg.OSRMEndpoint)
	logger.Info("route planner", "provider", planner.Provider())

	coordinator := lifecycle.NewCoordinator(channel, planner, store, logger)
	coordinator.SearchTimeout = cfg.SearchTimeout

	var publisher *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		coordinator.Events = publisher
		logger.Info("transition events: kafka", "topic", cfg.KafkaTopic)
	}

	var geocoder *geocode.Client
	if cfg.MapboxToken != "" {
		geocoder = geocode.NewClient(cfg.MapboxToken)
	}

	var stripeClient *payments.StripeClient
	if cfg.StripeAPIKey != "" {
		stripeClient = payments.NewStripeClient(cfg.StripeAPIKey)
		logger.Info("payments: stripe", "currency", cfg.StripeCurrency)
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Coordinator: coordinator,
		Channel:     channel,
		History:     store,
		RouteCache:  routes.NewCacheAdapter(planner, store, logger),
		Geocoder:    geocoder,
		Identity:    identity.NewProvider(cfg.JWTSecret),
		Payments:    stripeClient,
		Currency:    cfg.StripeCurrency,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	srv.Shutdown(shutdownCtx)
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka close", "error", err)
		}
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
