package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryanbastic/go-geodrop/internal/api"
	"github.com/ryanbastic/go-geodrop/internal/config"
	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/lifecycle"
	"github.com/ryanbastic/go-geodrop/internal/metrics"
	"github.com/ryanbastic/go-geodrop/internal/naming"
	"github.com/ryanbastic/go-geodrop/internal/placement"
	"github.com/ryanbastic/go-geodrop/internal/position"
	"github.com/ryanbastic/go-geodrop/internal/proximity"
	"github.com/ryanbastic/go-geodrop/internal/storage"
	"github.com/ryanbastic/go-geodrop/internal/zone"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Restricted zones
	zones := zone.DefaultZones()
	jitter := cfg.WindJitterDeg
	if cfg.ZonesPath != "" {
		fileZones, fileJitter, err := zone.LoadFile(cfg.ZonesPath)
		if err != nil {
			logger.Error("failed to load zone file", "path", cfg.ZonesPath, "error", err)
			os.Exit(1)
		}
		zones = fileZones
		if fileJitter != nil {
			jitter = *fileJitter
		}
	}
	policy, err := zone.NewPolicy(zones, zone.WithJitter(jitter))
	if err != nil {
		logger.Error("invalid zone policy", "error", err)
		os.Exit(1)
	}
	logger.Info("zones loaded", "count", len(zones), "jitter_deg", jitter)

	planner := placement.NewPlanner(policy, newResolver(cfg, logger), cfg.NamingTimeout)

	mgr, err := lifecycle.NewManager(store, planner, lifecycle.Options{
		Capacity: cfg.HoldCapacity,
		Radii:    proximity.Radii{DiscoveryM: cfg.DiscoveryRadiusM, InteractionM: cfg.InteractionRadiusM},
		Logger:   logger,
		Recorder: metrics.Recorder{},
	})
	if err != nil {
		logger.Error("failed to create lifecycle manager", "error", err)
		os.Exit(1)
	}

	def := geo.Coordinate{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng}
	sessions := lifecycle.NewSessions(mgr, position.NewRegistry(), def)
	go sessions.Run(ctx, cfg.SessionSweepInterval, cfg.SessionIdleTimeout)

	// Start HTTP server
	handler := api.NewServer(api.ServerOptions{
		Logger:   logger,
		Manager:  mgr,
		Sessions: sessions,
		Tiers:    placement.DefaultTiers(),
		Backends: map[string]api.Pinger{"store": store},
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openStore connects the configured backend and runs its migrations. The
// returned func releases the backend.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.ObjectStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping: %w", err)
		}
		logger.Info("connected to database")

		if err := storage.RunMigrationsForPool(ctx, pool, cfg.StoreTable); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("migrations complete", "table", cfg.StoreTable)

		prometheus.MustRegister(metrics.NewPoolCollector(pool, cfg.StoreTable))
		return storage.NewPostgresStore(pool, cfg.StoreTable, cfg.DBQueryTimeout), pool.Close, nil

	case config.DriverSQLite:
		s, err := storage.OpenSQLite(ctx, cfg.SQLitePath, cfg.StoreTable, cfg.DBQueryTimeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.SQLitePath, "table", cfg.StoreTable)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("failed to close sqlite store", "error", err)
			}
		}, nil

	default:
		logger.Warn("using in-memory store; objects are lost on restart")
		return storage.NewMemoryStore(), func() {}, nil
	}
}

// newResolver builds the reverse-geocoding chain: cache in front of a
// breaker in front of the HTTP client. Without NAMING_URL every place is
// labelled unknown.
func newResolver(cfg config.Config, logger *slog.Logger) naming.Resolver {
	if cfg.NamingURL == "" {
		logger.Info("reverse geocoding disabled")
		return nil
	}
	client := naming.NewNominatimClient(cfg.NamingURL, cfg.NamingRetryMax, cfg.NamingRetryBackoff, cfg.NamingTimeout,
		naming.WithUserAgent(cfg.NamingUserAgent))
	guarded := naming.NewGuarded(client, naming.NewBreaker(cfg.NamingBreakerFailures, cfg.NamingBreakerReset))
	logger.Info("reverse geocoding enabled", "url", cfg.NamingURL)
	return naming.NewCached(guarded, cfg.NamingCacheSize)
}
