package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/modelshop-checkout/internal/resilience"
)

// GuardedRepository protects a repository with a circuit breaker so that an
// outage fails fast with ErrUnavailable instead of stalling checkout.
type GuardedRepository struct {
	Next    Repository
	Breaker *resilience.Breaker
}

// NewGuardedRepository wires the breaker so that lookup misses are not
// counted as failures.
func NewGuardedRepository(next Repository, settings resilience.Settings) GuardedRepository {
	settings.Benign = func(err error) bool { return errors.Is(err, ErrNotFound) }
	return GuardedRepository{Next: next, Breaker: resilience.NewBreaker(settings)}
}

// Lookup implements Repository.
func (r GuardedRepository) Lookup(ctx context.Context, code string) (Coupon, error) {
	var c Coupon
	err := r.Breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		c, err = r.Next.Lookup(ctx, code)
		return err
	})
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, ErrNotFound):
		return Coupon{}, err
	default:
		return Coupon{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
