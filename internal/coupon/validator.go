package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/modelshop-checkout/internal/pricing"
)

var (
	// ErrNotFound is returned by repositories when no coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrUnavailable indicates the coupon source could not be reached. Callers may retry.
	ErrUnavailable = errors.New("coupon repository unavailable")
)

// Repository is the source of truth for coupon definitions.
type Repository interface {
	Lookup(ctx context.Context, code string) (Coupon, error)
}

// Validator applies business rules to coupons fetched from a Repository.
type Validator struct {
	Repo Repository
	Now  func() time.Time
}

func (v *Validator) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Lookup normalises the code and fetches the coupon. Unknown codes yield
// ErrNotFound; any other repository failure is reported as ErrUnavailable.
func (v *Validator) Lookup(ctx context.Context, code string) (Coupon, error) {
	if v == nil || v.Repo == nil {
		return Coupon{}, fmt.Errorf("coupon validator not configured: %w", ErrUnavailable)
	}
	normalized := Normalize(code)
	if normalized == "" {
		return Coupon{}, ErrNotFound
	}
	ctx, span := otel.Tracer("coupon").Start(ctx, "coupon.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.code", normalized))

	c, err := v.Repo.Lookup(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Coupon{}, ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		if errors.Is(err, ErrUnavailable) {
			return Coupon{}, err
		}
		return Coupon{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.Code = Normalize(c.Code)
	return c, nil
}

// Validate checks a coupon against the subtotal using the validator clock.
func (v *Validator) Validate(c Coupon, subtotal pricing.Money) Reason {
	return Validate(c, subtotal, v.now())
}

// Apply looks up and validates the code. Business-rule rejections are
// returned as a Result with a reason and a nil error; only an unreachable
// repository produces an error.
func (v *Validator) Apply(ctx context.Context, code string, subtotal pricing.Money) (Result, error) {
	normalized := Normalize(code)
	c, err := v.Lookup(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{Code: normalized, Reason: ReasonNotFound}, nil
		}
		return Result{Code: normalized}, err
	}
	reason := v.Validate(c, subtotal)
	if reason != ReasonValid {
		return Result{Code: c.Code, Reason: reason}, nil
	}
	return Result{Code: c.Code, Reason: ReasonValid, Coupon: &c}, nil
}
