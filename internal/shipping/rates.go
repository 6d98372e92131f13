package shipping

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/pricing"
)

// Table holds the static rates used to price a parcel.
type Table struct {
	// BaseRates is keyed by cart.CountryKey.
	BaseRates   map[string]pricing.Money
	DefaultBase pricing.Money

	PerKg           pricing.Money
	WeightAllowance decimal.Decimal
	PerLiter        pricing.Money
	VolumeAllowance decimal.Decimal

	BulkThreshold decimal.Decimal
	BulkDiscount  decimal.Decimal

	DefaultWeight decimal.Decimal
	DefaultBox    cart.Dimensions
}

// Base returns the base rate for the destination country.
func (t Table) Base(country string) pricing.Money {
	if rate, ok := t.BaseRates[cart.CountryKey(country)]; ok {
		return rate
	}
	return t.DefaultBase
}

// DefaultTable returns the storefront's published shipping rates.
func DefaultTable() Table {
	d := decimal.RequireFromString
	base := map[string]string{
		"España":         "5.99",
		"Francia":        "12.99",
		"Alemania":       "14.99",
		"Italia":         "13.99",
		"Portugal":       "8.99",
		"Reino Unido":    "16.99",
		"Estados Unidos": "24.99",
		"México":         "19.99",
		"Argentina":      "22.99",
		"Brasil":         "25.99",
		"Chile":          "21.99",
		"Colombia":       "20.99",
	}
	rates := make(map[string]pricing.Money, len(base))
	for country, rate := range base {
		rates[cart.CountryKey(country)] = d(rate)
	}
	return Table{
		BaseRates:       rates,
		DefaultBase:     d("29.99"),
		PerKg:           d("3.99"),
		WeightAllowance: d("1"),
		PerLiter:        d("2.99"),
		VolumeAllowance: d("1"),
		BulkThreshold:   d("5"),
		BulkDiscount:    d("0.10"),
		DefaultWeight:   d("0.1"),
		DefaultBox:      cart.Dimensions{Length: d("10"), Width: d("10"), Height: d("10")},
	}
}
