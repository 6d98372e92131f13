package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/modelshop-checkout/internal/app"
	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/obs"
)

// Seeds the coupons table with the built-in catalog so a database-backed
// deployment starts with the same codes as the in-memory one.
func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), "info").With().Str("cmd", "seeder").Logger()

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := app.NewPool(ctx, dsn, "modelshop-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	repo := coupon.PostgresRepository{Q: pool}
	catalog := coupon.DefaultCatalog(time.Now())
	for _, c := range catalog {
		if err := repo.Upsert(ctx, c); err != nil {
			logger.Fatal().Err(err).Str("code", c.Code).Msg("seed coupon")
		}
		logger.Info().Str("code", c.Code).Str("kind", string(c.Kind)).Msg("seeded coupon")
	}
	logger.Info().Int("count", len(catalog)).Msg("seeding completed")
}
