package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryanbastic/go-geodrop/internal/lifecycle"
	"github.com/ryanbastic/go-geodrop/internal/metrics"
	"github.com/ryanbastic/go-geodrop/internal/placement"
)

// ServerOptions are the dependencies of the HTTP surface.
type ServerOptions struct {
	Logger   *slog.Logger
	Manager  *lifecycle.Manager
	Sessions *lifecycle.Sessions
	Tiers    placement.Tiers
	Backends map[string]Pinger
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(opts ServerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Tiers == nil {
		opts.Tiers = placement.DefaultTiers()
	}

	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)

	health := NewHealthHandler(opts.Backends, logger)
	mux.Get("/livez", health.Livez)
	mux.Get("/readyz", health.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	// The position stream is hijacked, so it stays outside the compressed group.
	stream := NewPositionHandler(opts.Sessions, opts.Manager.Radii(), logger)
	mux.Get("/v1/actors/{actor}/position/ws", stream.Stream)

	mux.Group(func(r chi.Router) {
		r.Use(compress)

		config := huma.DefaultConfig("geodrop", "1.0.0")
		config.Info.Description = "Drop letters and items on the map and find what others left behind."
		api := humachi.New(r, config)

		world := NewWorldHandler(opts.Manager, opts.Sessions, opts.Tiers, logger)
		registerLetterRoutes(api, world)
		registerItemRoutes(api, world)
		registerQueryRoutes(api, world)
	})

	return mux
}

// compress gzips responses for clients that accept it. Small bodies are
// passed through unchanged.
func compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
