// Package main is the entry point for the trip planner daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/trip-planner/planner/internal/api"
	"github.com/trip-planner/planner/internal/auth"
	"github.com/trip-planner/planner/internal/backend"
	"github.com/trip-planner/planner/internal/config"
	"github.com/trip-planner/planner/internal/editlock"
	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/logging"
	"github.com/trip-planner/planner/internal/mapsync"
	"github.com/trip-planner/planner/internal/mapview"
	"github.com/trip-planner/planner/internal/places"
	"github.com/trip-planner/planner/internal/planner"
	"github.com/trip-planner/planner/internal/profile"
	"github.com/trip-planner/planner/internal/storage"
	"github.com/trip-planner/planner/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// defaultCenter is Seoul City Hall.
var defaultCenter = mapsync.MapOptions{Center: itinerary.LatLng{Lat: 37.5663, Lng: 126.9779}, Zoom: 12}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.Addr, "HTTP server address")
	dataDir := flag.String("data", cfg.DataDir, "Data directory for the draft database")
	staticDir := flag.String("static", cfg.StaticDir, "Directory for static frontend files")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(*addr); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "planner"})
	slog.SetDefault(logger)

	cfg.Addr, cfg.DataDir, cfg.StaticDir = *addr, *dataDir, *staticDir
	if err := run(cfg, logger); err != nil {
		logger.Error("planner stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting trip planner", "version", version, "addr", cfg.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %q: %w", cfg.DataDir, err)
	}
	db, err := storage.NewDB(filepath.Join(cfg.DataDir, storage.DefaultFile))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)
	events := websocket.NewEventBroadcaster(hub)

	// Provider capabilities
	registry := mapsync.NewRegistry(logger)
	surface := mapview.New(mapview.Config{APIKey: cfg.GoogleMapsAPIKey, MapID: cfg.GoogleMapsMapID}, events, logger)
	surface.Register(registry)

	cache, closeCache := searchCache(ctx, cfg, logger)
	defer closeCache()
	places.NewSearcher(places.Config{
		APIKey:     cfg.GoogleMapsAPIKey,
		Region:     cfg.PlacesRegion,
		Language:   cfg.PlacesLanguage,
		MaxResults: cfg.PlacesMaxResults,
		RatePerSec: cfg.PlacesRatePerSec,
		CacheTTL:   cfg.PlacesCacheTTL,
	}, cache, logger).Register(registry)

	opts := defaultCenter
	opts.MapID = cfg.GoogleMapsMapID
	session, err := mapsync.Open(ctx, registry, opts, logger)
	if err != nil {
		return fmt.Errorf("opening map: %w", err)
	}

	// Backend services
	tokens := auth.NewStore(cfg.BackendToken)
	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, tokens)

	lock := editlock.New(client, editlock.Options{
		DefaultInterval: cfg.HeartbeatDefault,
		RequestTimeout:  cfg.BackendTimeout,
		Guard:           events,
		Notifier:        events,
		Users:           tokens,
		Logger:          logger,
	})
	defer lock.Close()

	svc := planner.New(planner.Deps{
		Map:      mapsync.NewSync(session, logger),
		Lock:     lock,
		Plans:    client,
		Provider: registry,
		Drafts:   storage.NewDraftRepository(db),
		Events:   events,
		Logger:   logger,
	})
	if err := svc.RestoreDraft(ctx); err != nil {
		logger.Warn("restoring draft failed", "error", err)
	}

	router := api.NewRouter(api.Deps{
		DB:        db,
		Hub:       hub,
		Surface:   surface,
		Planner:   svc,
		Profile:   profile.NewService(client, logger),
		Tokens:    tokens,
		Backend:   client,
		Trips:     client,
		Origins:   cfg.CORSOrigins,
		StaticDir: cfg.StaticDir,
		Logger:    logger,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Release the edit lock before exiting.
	svc.Close(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// searchCache picks Redis when configured and reachable, memory otherwise.
func searchCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (places.Cache, func()) {
	if cfg.RedisURL == "" {
		return places.NewMemoryCache(), func() {}
	}
	rc, err := places.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, using memory search cache", "error", err)
		return places.NewMemoryCache(), func() {}
	}
	return rc, func() { rc.Close() }
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
