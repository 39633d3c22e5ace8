// Package main provides the entrypoint for the Run Coach API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/internal/airquality/luchtmeetnet"
	owmair "github.com/breatheroute/runcoach/internal/airquality/openweathermap"
	"github.com/breatheroute/runcoach/internal/api"
	"github.com/breatheroute/runcoach/internal/api/handler"
	"github.com/breatheroute/runcoach/internal/api/middleware"
	"github.com/breatheroute/runcoach/internal/auth"
	"github.com/breatheroute/runcoach/internal/config"
	"github.com/breatheroute/runcoach/internal/database"
	"github.com/breatheroute/runcoach/internal/health"
	"github.com/breatheroute/runcoach/internal/provider/resilience"
	"github.com/breatheroute/runcoach/internal/routing"
	"github.com/breatheroute/runcoach/internal/routing/openrouteservice"
	"github.com/breatheroute/runcoach/internal/telemetry"
	"github.com/breatheroute/runcoach/internal/timing"
	"github.com/breatheroute/runcoach/internal/weather"
	owmweather "github.com/breatheroute/runcoach/internal/weather/openweathermap"
	"github.com/breatheroute/runcoach/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "runcoach-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg, serviceName)
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting Run Coach API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTelEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Exposure history store
	readiness := map[string]handler.ReadinessCheck{}
	repo, closeRepo, err := openExposureStore(ctx, cfg, log, readiness)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.ExposureStore).Msg("failed to open exposure store")
	}
	defer closeRepo()

	risk := health.NewModel(health.ModelConfig{Repository: repo, Logger: log})

	// Providers
	registry := resilience.NewRegistry()

	var readingProviders []airquality.Provider
	if cfg.LuchtmeetnetEnabled {
		readingProviders = append(readingProviders, luchtmeetnet.NewClient(luchtmeetnet.ClientConfig{Registry: registry}))
	}

	var aqiForecaster timing.AQIForecaster
	var weatherSvc *weather.Service
	if cfg.OWMAPIKey != "" {
		air := owmair.NewClient(owmair.ClientConfig{
			APIKey:   cfg.OWMAPIKey,
			Registry: registry,
			Logger:   log,
		})
		readingProviders = append(readingProviders, air)
		aqiForecaster = air

		weatherSvc = weather.NewService(weather.ServiceConfig{
			Provider: owmweather.NewClient(owmweather.ClientConfig{
				APIKey:   cfg.OWMAPIKey,
				Registry: registry,
				Logger:   log,
			}),
			Logger: log,
		})
	} else {
		log.Warn().Msg("OWM_API_KEY not set - time windows and weather are unavailable")
	}
	if len(readingProviders) == 0 {
		log.Warn().Msg("no air quality provider configured - pollution fields stay empty")
	}

	fields := airquality.NewService(airquality.ServiceConfig{
		Provider: airquality.NewMultiProvider(log, readingProviders...),
		Field: airquality.FieldConfig{
			ResolutionMeters: cfg.GridResolutionM,
			MaxGridPoints:    cfg.GridMaxPoints,
			Logger:           log,
		},
		MinReadings: cfg.FieldMinReadings,
		StaleAfter:  cfg.FieldStaleAfter,
		Metrics:     tp.Engine,
		Logger:      log,
	})
	for _, r := range cfg.FieldRegions {
		if err := fields.Register(r.Name, r.Region); err != nil {
			log.Fatal().Err(err).Str("region", r.Name).Msg("failed to register field region")
		}
	}
	log.Info().Int("regions", len(cfg.FieldRegions)).Msg("field regions registered")

	var candidates *routing.Service
	if cfg.ORSAPIKey != "" {
		candidates = routing.NewService(routing.ServiceConfig{
			Source: openrouteservice.NewClient(openrouteservice.ClientConfig{
				APIKey:   cfg.ORSAPIKey,
				Registry: registry,
				Logger:   log,
			}),
			Logger: log,
		})
	} else {
		log.Warn().Msg("ORS_API_KEY not set - route requests must supply candidates")
	}

	optCfg := routing.DefaultOptimizerConfig()
	optCfg.Metrics = tp.Engine
	optCfg.Logger = log
	optimizer := routing.NewOptimizer(optCfg)

	timingSvc := timing.NewService(timing.ServiceConfig{
		Planner: timing.NewPlanner(timing.PlannerConfig{Risk: risk, Logger: log}),
		AQI:     aqiForecaster,
		Weather: weatherForecaster(weatherSvc),
		Defaults: timing.Request{
			LookaheadH: cfg.ForecastHorizonH,
			MinWindows: cfg.MinWindows,
		},
		Metrics: tp.Engine,
		Logger:  log,
	})

	// Background field refresh
	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Concurrency: cfg.RefreshConcurrency,
			WarmWeather: weatherSvc != nil,
		},
		Logger:  log.With().Str("component", "refresh").Logger(),
		Fields:  fields,
		Weather: weatherForecaster(weatherSvc),
	})
	scheduler, err := worker.NewScheduler(ctx, worker.SchedulerConfig{
		Spec:   cfg.RefreshSchedule,
		Job:    refreshJob,
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create refresh scheduler")
	}
	go scheduler.Start(ctx)
	defer func() { <-scheduler.Stop().Done() }()

	if cfg.PubSubProjectID != "" && cfg.PubSubSubscription != "" {
		ps, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			RefreshJob:       refreshJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer ps.Close()
		go func() {
			if err := ps.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
	})
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		Metrics:            metrics,
		TokenValidator:     jwtService,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequireTLS:         cfg.RequireTLS,
		Fields:             fields,
		Candidates:         candidates,
		Optimizer:          optimizer,
		Timing:             timingSvc,
		Risk:               risk,
		Providers:          registry,
		Readiness:          readiness,
		RefreshStats:       refreshJob.MetricsSnapshot,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger(cfg config.Config, serviceName string) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.LogLevel)
	out := zerolog.New(os.Stdout)
	if cfg.LogPretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	return out.With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

// weatherForecaster avoids handing a typed nil to optional interface fields.
func weatherForecaster(svc *weather.Service) worker.WeatherForecaster {
	if svc == nil {
		return nil
	}
	return svc
}

// openExposureStore opens the configured exposure history backend and
// registers its readiness check.
func openExposureStore(ctx context.Context, cfg config.Config, log zerolog.Logger, checks map[string]handler.ReadinessCheck) (health.Repository, func(), error) {
	switch cfg.ExposureStore {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		repo := health.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["database"] = pool.Ping
		log.Info().
			Str("database", cfg.Database.Redacted()).
			Msg("database connected")
		return repo, pool.Close, nil

	case config.StoreSQLite:
		repo, err := health.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, nil, err
		}
		checks["database"] = repo.Ping
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite exposure store opened")
		return repo, func() { repo.Close() }, nil

	default:
		log.Warn().Msg("using in-memory exposure store - history is lost on restart")
		return health.NewInMemoryRepository(), func() {}, nil
	}
}
