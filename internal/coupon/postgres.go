package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Querier captures the pgx methods required by the Postgres repository.
// *pgxpool.Pool satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const lookupCouponSQL = `SELECT code, discount::text, kind, min_amount::text, max_discount::text,
       expires_at, usage_limit, used_count, is_valid
FROM coupons
WHERE code = $1`

const upsertCouponSQL = `INSERT INTO coupons (code, discount, kind, min_amount, max_discount, expires_at, usage_limit, used_count, is_valid)
VALUES ($1, $2::numeric, $3, $4::numeric, $5::numeric, $6, $7, $8, $9)
ON CONFLICT (code) DO UPDATE SET
  discount = EXCLUDED.discount,
  kind = EXCLUDED.kind,
  min_amount = EXCLUDED.min_amount,
  max_discount = EXCLUDED.max_discount,
  expires_at = EXCLUDED.expires_at,
  usage_limit = EXCLUDED.usage_limit,
  is_valid = EXCLUDED.is_valid,
  updated_at = now()`

// PostgresRepository reads coupon definitions from the coupons table.
type PostgresRepository struct {
	Q Querier
}

// Lookup implements Repository.
func (r PostgresRepository) Lookup(ctx context.Context, code string) (Coupon, error) {
	if r.Q == nil {
		return Coupon{}, errors.New("coupon queries not configured")
	}
	var (
		c           Coupon
		discount    string
		kind        string
		minAmount   *string
		maxDiscount *string
		expiresAt   *time.Time
		usageLimit  *int32
		usedCount   int32
	)
	err := r.Q.QueryRow(ctx, lookupCouponSQL, Normalize(code)).Scan(
		&c.Code, &discount, &kind, &minAmount, &maxDiscount, &expiresAt, &usageLimit, &usedCount, &c.IsValid,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, err
	}
	if c.Discount, err = decimal.NewFromString(discount); err != nil {
		return Coupon{}, fmt.Errorf("parse discount: %w", err)
	}
	c.Kind = Kind(kind)
	if c.MinAmount, err = nullableDecimal(minAmount); err != nil {
		return Coupon{}, fmt.Errorf("parse min amount: %w", err)
	}
	if c.MaxDiscount, err = nullableDecimal(maxDiscount); err != nil {
		return Coupon{}, fmt.Errorf("parse max discount: %w", err)
	}
	c.ExpiresAt = expiresAt
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	used := int(usedCount)
	c.UsedCount = &used
	return c, nil
}

// Upsert writes a coupon definition. The used count of an existing row is
// left untouched.
func (r PostgresRepository) Upsert(ctx context.Context, c Coupon) error {
	if r.Q == nil {
		return errors.New("coupon queries not configured")
	}
	var usageLimit *int32
	if c.UsageLimit != nil {
		limit := int32(*c.UsageLimit)
		usageLimit = &limit
	}
	var used int32
	if c.UsedCount != nil {
		used = int32(*c.UsedCount)
	}
	_, err := r.Q.Exec(ctx, upsertCouponSQL,
		Normalize(c.Code),
		c.Discount.String(),
		string(c.Kind),
		decimalText(c.MinAmount),
		decimalText(c.MaxDiscount),
		c.ExpiresAt,
		usageLimit,
		used,
		c.IsValid,
	)
	return err
}

func nullableDecimal(v *string) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalText(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
