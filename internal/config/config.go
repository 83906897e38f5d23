// Package config loads planner configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the planner daemon.
type Config struct {
	// Addr is the local HTTP listen address
	Addr string

	// DataDir holds the SQLite draft database
	DataDir string

	// StaticDir is served at / for the browser UI
	StaticDir string

	// BackendURL is the trip backend base URL (lock service and plan submission)
	BackendURL string

	// BackendToken is an application access token issued by the backend after login
	BackendToken string

	// BackendTimeout bounds every backend request
	BackendTimeout time.Duration

	// GoogleMapsAPIKey authenticates Places API requests
	GoogleMapsAPIKey string

	// GoogleMapsMapID is forwarded to the browser renderer
	GoogleMapsMapID string

	// Search configuration, fixed per deployment
	PlacesRegion     string
	PlacesLanguage   string
	PlacesMaxResults int
	PlacesRatePerSec float64
	PlacesCacheTTL   time.Duration

	// RedisURL enables the shared search cache when set
	RedisURL string

	// HeartbeatDefault is used until the lock service supplies an interval
	HeartbeatDefault time.Duration

	LogLevel  string
	LogFormat string

	CORSOrigins []string
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	cfg := Config{
		Addr:             getEnv("PLANNER_ADDR", ":8099"),
		DataDir:          getEnv("PLANNER_DATA_DIR", "./data"),
		StaticDir:        getEnv("PLANNER_STATIC_DIR", "./static"),
		BackendURL:       strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
		BackendToken:     getEnv("BACKEND_TOKEN", ""),
		BackendTimeout:   getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		GoogleMapsMapID:  getEnv("GOOGLE_MAPS_MAP_ID", ""),
		PlacesRegion:     getEnv("PLACES_REGION", "kr"),
		PlacesLanguage:   getEnv("PLACES_LANGUAGE", "ko"),
		PlacesMaxResults: getEnvInt("PLACES_MAX_RESULTS", 20),
		PlacesRatePerSec: getEnvFloat("PLACES_RATE_PER_SEC", 5),
		PlacesCacheTTL:   getEnvDuration("PLACES_CACHE_TTL", 10*time.Minute),
		RedisURL:         getEnv("REDIS_URL", ""),
		HeartbeatDefault: getEnvDuration("HEARTBEAT_DEFAULT", 30*time.Second),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.BackendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BACKEND_TIMEOUT must be positive, got %s", c.BackendTimeout))
	}
	if c.PlacesMaxResults < 1 || c.PlacesMaxResults > 20 {
		errs = append(errs, fmt.Errorf("PLACES_MAX_RESULTS must be within 1..20, got %d", c.PlacesMaxResults))
	}
	if c.PlacesRatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("PLACES_RATE_PER_SEC must be positive, got %v", c.PlacesRatePerSec))
	}
	if c.HeartbeatDefault < time.Second {
		errs = append(errs, fmt.Errorf("HEARTBEAT_DEFAULT must be at least 1s, got %s", c.HeartbeatDefault))
	}
	return errors.Join(errs...)
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
