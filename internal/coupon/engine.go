package coupon

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/modelshop-checkout/internal/pricing"
)

// Kind selects how the discount magnitude is interpreted.
type Kind string

const (
	// KindPercentage discounts a percentage of the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed discounts a fixed amount.
	KindFixed Kind = "fixed"
)

// Reason is the verdict of a coupon validation.
type Reason string

const (
	ReasonValid          Reason = "valid"
	ReasonNotFound       Reason = "not-found"
	ReasonExpired        Reason = "expired"
	ReasonUsageExhausted Reason = "usage-exhausted"
	ReasonBelowMinimum   Reason = "below-minimum"
	ReasonInactive       Reason = "inactive"
)

// Coupon is a named discount rule with eligibility constraints.
type Coupon struct {
	Code        string         `json:"code"`
	Discount    pricing.Money  `json:"discount"`
	Kind        Kind           `json:"type"`
	MinAmount   *pricing.Money `json:"minAmount,omitempty"`
	MaxDiscount *pricing.Money `json:"maxDiscount,omitempty"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	UsageLimit  *int           `json:"usageLimit,omitempty"`
	UsedCount   *int           `json:"usedCount,omitempty"`
	IsValid     bool           `json:"isValid"`
}

// Result describes the outcome of applying a coupon code.
type Result struct {
	Code   string
	Reason Reason
	Coupon *Coupon
}

// OK reports whether the coupon was accepted.
func (r Result) OK() bool {
	return r.Reason == ReasonValid && r.Coupon != nil
}

// Normalize canonicalises a coupon code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the coupon against the subtotal at the provided instant.
func Validate(c Coupon, subtotal pricing.Money, now time.Time) Reason {
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return ReasonExpired
	}
	if c.UsageLimit != nil && usedCount(c) >= *c.UsageLimit {
		return ReasonUsageExhausted
	}
	if c.MinAmount != nil && subtotal.LessThan(*c.MinAmount) {
		return ReasonBelowMinimum
	}
	if !c.IsValid {
		return ReasonInactive
	}
	return ReasonValid
}

// Compute determines the discount amount for the subtotal. Percentage
// discounts honour the optional cap; fixed discounts are not capped by the
// subtotal, the invoice total is floored instead.
func Compute(c Coupon, subtotal pricing.Money) pricing.Money {
	var discount pricing.Money
	switch c.Kind {
	case KindPercentage:
		discount = subtotal.Mul(c.Discount).Div(decimal.NewFromInt(100))
		if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
			discount = *c.MaxDiscount
		}
	case KindFixed:
		discount = c.Discount
	default:
		return decimal.Zero
	}
	return pricing.Round(pricing.NonNegative(discount))
}

func usedCount(c Coupon) int {
	if c.UsedCount == nil {
		return 0
	}
	return *c.UsedCount
}
