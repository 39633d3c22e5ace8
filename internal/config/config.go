// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/database"
)

// Exposure store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// DevJWTSecret is used when JWT_SECRET is unset outside production.
const DevJWTSecret = "local-dev-signing-key-change-in-production"

// ErrInvalidConfig is returned when a setting cannot be used.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// NamedRegion is a field region configured by name.
type NamedRegion struct {
	Name   string
	Region airquality.Region
}

// Config is the full process configuration.
type Config struct {
	Port        string
	Environment string
	LogLevel    zerolog.Level
	LogPretty   bool

	ShutdownTimeout time.Duration

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	CORSAllowedOrigins []string
	RequireTLS         bool

	// Pollution field.
	GridResolutionM  float64
	GridMaxPoints    int
	FieldMinReadings int
	FieldRegions     []NamedRegion
	FieldStaleAfter  time.Duration

	// Timing.
	ForecastHorizonH int
	MinWindows       int

	// Exposure store.
	ExposureStore string
	SQLitePath    string
	Database      database.Config

	// Providers.
	OWMAPIKey           string
	ORSAPIKey           string
	LuchtmeetnetEnabled bool

	// Background refresh.
	RefreshSchedule    string
	RefreshConcurrency int
	PubSubProjectID    string
	PubSubSubscription string

	// Telemetry.
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

// Load reads an optional .env file followed by the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogPretty:   getEnvBool("LOG_PRETTY", false),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   getEnv("JWT_ISSUER", "https://api.runcoach.breatheroute.nl"),
		JWTAudience: getEnv("JWT_AUDIENCE", "runcoach-api"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RequireTLS:         getEnvBool("REQUIRE_TLS", false),

		GridResolutionM:  getEnvFloat("GRID_RESOLUTION_M", 2000),
		GridMaxPoints:    getEnvInt("GRID_MAX_POINTS", 4096),
		FieldMinReadings: getEnvInt("FIELD_MIN_READINGS", 3),
		FieldStaleAfter:  getEnvDuration("FIELD_STALE_AFTER", 30*time.Minute),

		ForecastHorizonH: getEnvInt("FORECAST_HORIZON_H", 24),
		MinWindows:       getEnvInt("MIN_WINDOWS", 3),

		ExposureStore: strings.ToLower(getEnv("EXPOSURE_STORE", StoreMemory)),
		SQLitePath:    getEnv("SQLITE_PATH", "runcoach.db"),
		Database:      database.ConfigFromEnv(),

		OWMAPIKey:           os.Getenv("OWM_API_KEY"),
		ORSAPIKey:           os.Getenv("ORS_API_KEY"),
		LuchtmeetnetEnabled: getEnvBool("LUCHTMEETNET_ENABLED", true),

		RefreshSchedule:    getEnv("REFRESH_SCHEDULE", "*/15 * * * *"),
		RefreshConcurrency: getEnvInt("REFRESH_CONCURRENCY", 3),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		return Config{}, fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalidConfig, os.Getenv("LOG_LEVEL"))
	}
	cfg.LogLevel = level

	regions, err := ParseRegions(getEnv("FIELD_REGIONS", DefaultFieldRegions))
	if err != nil {
		return Config{}, err
	}
	cfg.FieldRegions = regions

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	switch c.ExposureStore {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("%w: EXPOSURE_STORE %q", ErrInvalidConfig, c.ExposureStore)
	}
	if c.GridResolutionM <= 0 {
		return fmt.Errorf("%w: GRID_RESOLUTION_M must be positive", ErrInvalidConfig)
	}
	if c.ForecastHorizonH <= 0 || c.MinWindows <= 0 {
		return fmt.Errorf("%w: FORECAST_HORIZON_H and MIN_WINDOWS must be positive", ErrInvalidConfig)
	}
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("%w: JWT_SECRET is required in production", ErrInvalidConfig)
		}
		c.JWTSecret = DevJWTSecret
	}
	return nil
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultFieldRegions covers the Randstad cities.
const DefaultFieldRegions = "amsterdam:52.28,4.73,52.43,5.07;" +
	"rotterdam:51.85,4.35,51.99,4.60;" +
	"den-haag:52.02,4.20,52.13,4.40;" +
	"utrecht:52.03,5.03,52.14,5.19"

// ParseRegions parses "name:minLat,minLon,maxLat,maxLon;..." into regions.
func ParseRegions(s string) ([]NamedRegion, error) {
	var regions []NamedRegion
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, box, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: region %q", ErrInvalidConfig, part)
		}
		fields := strings.Split(box, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: region %q needs four coordinates", ErrInvalidConfig, name)
		}
		var v [4]float64
		for i, f := range fields {
			n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: region %q: %w", ErrInvalidConfig, name, err)
			}
			v[i] = n
		}
		r := airquality.Region{MinLat: v[0], MinLon: v[1], MaxLat: v[2], MaxLon: v[3]}
		if !r.Valid() {
			return nil, fmt.Errorf("%w: region %q is not a valid box", ErrInvalidConfig, name)
		}
		regions = append(regions, NamedRegion{Name: strings.TrimSpace(name), Region: r})
	}
	return regions, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
