package tax

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/pricing"
)

// Calculator applies a per-country rate to the pre-discount subtotal.
type Calculator struct {
	// Rates is keyed by cart.CountryKey.
	Rates map[string]decimal.Decimal
	// Default applies to countries missing from Rates.
	Default decimal.Decimal
	// NoAddress applies while the cart has no destination yet.
	NoAddress decimal.Decimal
}

// NewCalculator returns the storefront's published VAT table.
func NewCalculator() Calculator {
	table := map[string]string{
		"España":         "0.21",
		"Francia":        "0.20",
		"Alemania":       "0.19",
		"Italia":         "0.22",
		"Portugal":       "0.23",
		"Estados Unidos": "0.08",
		"México":         "0.16",
		"Argentina":      "0.21",
		"Brasil":         "0.17",
	}
	rates := make(map[string]decimal.Decimal, len(table))
	for country, rate := range table {
		rates[cart.CountryKey(country)] = decimal.RequireFromString(rate)
	}
	return Calculator{
		Rates:     rates,
		Default:   decimal.RequireFromString("0.15"),
		NoAddress: decimal.RequireFromString("0.21"),
	}
}

// Rate returns the rate for the destination.
func (c Calculator) Rate(addr *cart.Address) decimal.Decimal {
	if addr == nil {
		return c.NoAddress
	}
	if rate, ok := c.Rates[cart.CountryKey(addr.Country)]; ok {
		return rate
	}
	return c.Default
}

// Compute returns subtotal × rate, rounded to cents. Shipping and discounts
// are not part of the base.
func (c Calculator) Compute(subtotal pricing.Money, addr *cart.Address) pricing.Money {
	return pricing.Round(pricing.NonNegative(subtotal).Mul(c.Rate(addr)))
}
