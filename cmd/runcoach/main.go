// Command runcoach provides operational tasks for the Run Coach service.
//
// Usage:
//
//	runcoach migrate
//	runcoach token -user <id> [-ttl 1h]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/runcoach/internal/auth"
	"github.com/breatheroute/runcoach/internal/config"
	"github.com/breatheroute/runcoach/internal/database"
	"github.com/breatheroute/runcoach/internal/health"
)

var errUsage = errors.New("usage: runcoach <migrate|token> [flags]")

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := run(context.Background(), cfg, os.Args[1:], os.Stdout, log); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func run(ctx context.Context, cfg config.Config, args []string, out io.Writer, log zerolog.Logger) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "migrate":
		return migrate(ctx, cfg, log)
	case "token":
		return token(cfg, args[1:], out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func migrate(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	switch cfg.ExposureStore {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := health.NewPostgresRepository(pool).Migrate(ctx); err != nil {
			return err
		}
		log.Info().Str("database", cfg.Database.Redacted()).Msg("postgres schema migrated")
	case config.StoreSQLite:
		repo, err := health.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite schema migrated")
	default:
		log.Info().Str("store", cfg.ExposureStore).Msg("nothing to migrate")
	}
	return nil
}

func token(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "user id (required)")
	ttl := fs.Duration("ttl", auth.DefaultAccessTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("token: -user is required")
	}

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		TTL:        *ttl,
	})
	tok, expires, err := svc.GenerateAccessToken(*userID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n# expires %s\n", tok, expires.UTC().Format(time.RFC3339))
	return err
}
