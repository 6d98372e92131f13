package coupon

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-process coupon catalogue.
type MemoryRepository struct {
	mu      sync.RWMutex
	coupons map[string]Coupon
}

// NewMemoryRepository returns a repository holding the provided coupons.
func NewMemoryRepository(coupons ...Coupon) *MemoryRepository {
	r := &MemoryRepository{coupons: make(map[string]Coupon, len(coupons))}
	for _, c := range coupons {
		r.Put(c)
	}
	return r
}

// Put inserts or replaces a coupon.
func (r *MemoryRepository) Put(c Coupon) {
	c.Code = Normalize(c.Code)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons[c.Code] = c
}

// Lookup implements Repository.
func (r *MemoryRepository) Lookup(_ context.Context, code string) (Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coupons[Normalize(code)]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return c, nil
}

// DefaultCatalog returns the storefront's standing promotions relative to now.
func DefaultCatalog(now time.Time) []Coupon {
	money := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}
	count := func(v int) *int { return &v }
	at := func(t time.Time) *time.Time { return &t }
	return []Coupon{
		{Code: "PRIMERA20", Discount: decimal.NewFromInt(20), Kind: KindPercentage, MinAmount: money(50), MaxDiscount: money(30), IsValid: true},
		{Code: "BIENVENIDO10", Discount: decimal.NewFromInt(10), Kind: KindPercentage, IsValid: true},
		{Code: "DESCUENTO5", Discount: decimal.NewFromInt(5), Kind: KindFixed, MinAmount: money(20), IsValid: true},
		{Code: "IMPRESION15", Discount: decimal.NewFromInt(15), Kind: KindPercentage, MinAmount: money(100), MaxDiscount: money(50), ExpiresAt: at(now.AddDate(0, 6, 0)), UsageLimit: count(500), UsedCount: count(0), IsValid: true},
		{Code: "VERANO2023", Discount: decimal.NewFromInt(25), Kind: KindPercentage, ExpiresAt: at(time.Date(2023, time.September, 30, 23, 59, 59, 0, time.UTC)), IsValid: true},
		{Code: "AGOTADO", Discount: decimal.NewFromInt(10), Kind: KindFixed, UsageLimit: count(100), UsedCount: count(100), IsValid: true},
	}
}
