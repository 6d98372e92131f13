package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"github.com/noah-isme/modelshop-checkout/internal/app"
	"github.com/noah-isme/modelshop-checkout/internal/obs"
)

func main() {
	dir := flag.String("dir", "db/migrations", "directory holding migration files")
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), "info").With().Str("cmd", "migrate").Logger()

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}
	target, err := pgx5URL(dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse DATABASE_URL")
	}

	m, err := migrate.New("file://"+*dir, target)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrations")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Error().Err(err).Msg("close migrate")
		}
	}()

	if *down {
		err = m.Steps(-1)
	} else {
		err = app.RunMigrations(m)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	version, dirty, _ := m.Version()
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
}

// pgx5URL rewrites a postgres:// DSN to the scheme registered by the pgx/v5 driver.
func pgx5URL(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
