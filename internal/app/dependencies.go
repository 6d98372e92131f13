package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/modelshop-checkout/internal/cache"
	"github.com/noah-isme/modelshop-checkout/internal/config"
	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/obs"
	"github.com/noah-isme/modelshop-checkout/internal/resilience"
	"github.com/noah-isme/modelshop-checkout/internal/shipping"
)

// Dependencies holds the infrastructure shared by the HTTP server.
type Dependencies struct {
	// DB is nil when coupons come from the built-in catalog.
	DB           *pgxpool.Pool
	Redis        *redis.Client
	LimiterStore limiter.Store
	Coupons      coupon.Repository
	Rates        shipping.RateService
}

// Build connects to Redis and, when configured, Postgres, then assembles the
// coupon repository chain and the shipping rate source.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	rdb, err := NewRedis(ctx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		return nil, err
	}
	deps.Redis = rdb

	store, err := NewLimiterStore(rdb)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	deps.LimiterStore = store

	breaker := resilience.Settings{
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
		OpenFor:      cfg.BreakerOpenFor,
		Logger:       logger,
	}

	if cfg.CouponsFromDatabase() {
		pool, err := NewPool(ctx, cfg.DatabaseURL, "modelshop-checkout")
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.DB = pool
		breaker.Target = "coupons"
		deps.Coupons = coupon.CachedRepository{
			Next:   coupon.NewGuardedRepository(coupon.PostgresRepository{Q: pool}, breaker),
			Cache:  cache.NewJSON(rdb, "coupon", cfg.CouponCacheTTL),
			Logger: logger,
		}
	} else {
		logger.Info().Msg("DATABASE_URL not set; serving coupons from the built-in catalog")
		deps.Coupons = coupon.NewMemoryRepository(coupon.DefaultCatalog(time.Now())...)
	}

	if cfg.ShippingRateURL != "" {
		breaker.Target = "shipping_rates"
		deps.Rates = shipping.RemoteRates{
			Endpoint: cfg.ShippingRateURL,
			Client: resilience.HTTPClient{
				Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
				Breaker:     resilience.NewBreaker(breaker),
				BaseBackoff: 100 * time.Millisecond,
				MaxAttempts: cfg.ShippingRetries + 1,
				Jitter:      0.2,
				Timeout:     cfg.ShippingRateTimeout,
			},
		}
	} else {
		deps.Rates = shipping.NewLocalRates()
	}

	return deps, nil
}

// Close releases connections opened by Build.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		d.DB.Close()
	}
	return errors.Join(errs...)
}

// NewRedis opens an instrumented client and verifies connectivity.
func NewRedis(ctx context.Context, url string, withMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewPool opens a traced pgx pool and verifies connectivity.
func NewPool(ctx context.Context, url, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "rl:coupon"})
}

// RunMigrations applies pending migrations. No pending change is not an error.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
