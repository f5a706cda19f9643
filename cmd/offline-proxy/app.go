package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/Sternrassler/offline-cache/pkg/classify"
	"github.com/Sternrassler/offline-cache/pkg/client"
	"github.com/Sternrassler/offline-cache/pkg/config"
	"github.com/Sternrassler/offline-cache/pkg/generation"
	"github.com/Sternrassler/offline-cache/pkg/interceptor"
	"github.com/Sternrassler/offline-cache/pkg/lifecycle"
	"github.com/Sternrassler/offline-cache/pkg/metrics"
	"github.com/Sternrassler/offline-cache/pkg/strategy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxMessageBytes bounds POST /message bodies.
const maxMessageBytes = 4 << 10

// app wires the proxy together.
type app struct {
	cfg          *config.Config
	store        *cache.Manager
	fetcher      *client.Client
	registration *lifecycle.Registration
	proxy        *interceptor.Handler
	logger       zerolog.Logger
}

// loadConfig loads path, applies a version override and returns the
// generation's bucket names.
func loadConfig(path, version string) (*config.Config, generation.Names, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, generation.Names{}, err
	}
	if version != "" {
		cfg.Cache.Version = version
		if err := cfg.Validate(); err != nil {
			return nil, generation.Names{}, err
		}
	}

	names, err := cfg.Names()
	if err != nil {
		return nil, generation.Names{}, err
	}
	return cfg, names, nil
}

// newApp opens the store and builds the interceptor. transport overrides
// the network transport (nil: http.DefaultTransport).
func newApp(ctx context.Context, cfg *config.Config, transport http.RoundTripper, logger zerolog.Logger) (*app, error) {
	origin, err := cfg.OriginURL()
	if err != nil {
		return nil, err
	}

	opened, err := cache.New(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	store := opened.WithLogger(logger.With().Str("component", "cache").Logger())

	clientCfg := cfg.ClientConfig()
	if transport != nil {
		clientCfg.Transport = transport
	}
	fetcher, err := client.New(clientCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	registration := lifecycle.NewRegistration(logger)
	t := interceptor.NewTransport(interceptor.Config{
		Registration: registration,
		Classifier:   classify.New(cfg.RemoteAssetRule()),
		Passthrough:  fetcher,
		Logger:       logger,
	})

	return &app{
		cfg:          cfg,
		store:        store,
		fetcher:      fetcher,
		registration: registration,
		proxy:        interceptor.NewHandler(origin, t, logger),
		logger:       logger,
	}, nil
}

// install builds a controller for the configured generation and installs it.
func (a *app) install(ctx context.Context) error {
	genCfg, err := a.cfg.GenerationConfig()
	if err != nil {
		return err
	}

	gen := generation.NewManager(a.store, a.fetcher, genCfg, a.logger)
	engine, err := strategy.New(strategy.Config{
		Store:   a.store,
		Fetcher: a.fetcher,
		Names:   genCfg.Names,
		Origin:  genCfg.Origin,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	c := lifecycle.NewController(lifecycle.Config{
		Generation:           gen,
		Engine:               engine,
		SkipWaitingOnInstall: a.cfg.Cache.SkipWaitingOnInstall,
		Logger:               a.logger,
	})
	return a.registration.Install(ctx, c)
}

// engineWait waits for the active engine's background writes.
func (a *app) engineWait(ctx context.Context) error {
	if active := a.registration.Active(); active != nil {
		return active.Engine().Wait(ctx)
	}
	return nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

// proxyRouter serves application traffic. Every path and method goes to the
// interceptor, so no application request is shadowed by a proxy endpoint.
func (a *app) proxyRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/*", a.proxy)

	return r
}

// adminRouter serves the proxy's own endpoints on the admin listener.
func (a *app) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(a.store, a.registration))
	r.Handle("/metrics", metrics.Handler())
	r.Post("/message", messageHandler(a.registration, a.logger))

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports ready once the store answers and a generation is active.
func readyHandler(store cache.Store, registration *lifecycle.Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := store.Buckets(ctx); err != nil {
			http.Error(w, "cache store unavailable", http.StatusServiceUnavailable)
			return
		}
		if registration.Active() == nil {
			http.Error(w, "no active generation", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// messageHandler accepts lifecycle messages such as {"type":"SKIP_WAITING"}.
func messageHandler(registration *lifecycle.Registration, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
		if err != nil {
			http.Error(w, "read message", http.StatusBadRequest)
			return
		}

		msg, err := lifecycle.ParseMessage(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := registration.HandleMessage(r.Context(), msg); err != nil {
			logger.Error().Err(err).Str("type", msg.Type).Msg("Message handling failed")
			http.Error(w, "message handling failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
