package coupon

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/modelshop-checkout/internal/cache"
)

// CachedRepository serves lookups from a Redis JSON cache before falling
// back to the wrapped repository. Cache failures are logged and bypassed.
type CachedRepository struct {
	Next   Repository
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// Lookup implements Repository.
func (r CachedRepository) Lookup(ctx context.Context, code string) (Coupon, error) {
	key := Normalize(code)
	var cached Coupon
	hit, err := r.Cache.Get(ctx, key, &cached)
	if err != nil {
		r.Logger.Warn().Err(err).Str("code", key).Msg("coupon cache read")
	}
	if hit {
		return cached, nil
	}
	c, err := r.Next.Lookup(ctx, key)
	if err != nil {
		return Coupon{}, err
	}
	if err := r.Cache.Set(ctx, key, c); err != nil {
		r.Logger.Warn().Err(err).Str("code", key).Msg("coupon cache write")
	}
	return c, nil
}
