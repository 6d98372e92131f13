package shipping

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/pricing"
)

var cm3PerLiter = decimal.NewFromInt(1000)

// Parcel is the aggregate weight and volume of the physical lines.
type Parcel struct {
	Lines   int
	Weight  decimal.Decimal
	VolumeL decimal.Decimal
}

// Estimator prices parcels from a static Table. It is pure and deterministic.
type Estimator struct {
	Table Table
}

// NewEstimator returns an estimator over DefaultTable.
func NewEstimator() Estimator {
	return Estimator{Table: DefaultTable()}
}

// Parcel sums weight and volume over physical lines; digital lines are skipped.
// Negative measurements count as zero so one line cannot offset another.
func (e Estimator) Parcel(items []cart.LineItem) Parcel {
	p := Parcel{Weight: decimal.Zero, VolumeL: decimal.Zero}
	for _, it := range items {
		if !it.IsPhysical() || it.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(it.Quantity))
		weight := e.Table.DefaultWeight
		if it.Weight != nil {
			weight = pricing.NonNegative(*it.Weight)
		}
		box := e.Table.DefaultBox
		if it.Dimensions != nil {
			box = *it.Dimensions
		}
		volume := pricing.NonNegative(box.Length).
			Mul(pricing.NonNegative(box.Width)).
			Mul(pricing.NonNegative(box.Height)).
			Div(cm3PerLiter)

		p.Lines++
		p.Weight = p.Weight.Add(weight.Mul(qty))
		p.VolumeL = p.VolumeL.Add(volume.Mul(qty))
	}
	return p
}

// Estimate returns the shipping cost of the items to the address. Carts
// without physical lines, or without an address, cost nothing to ship.
func (e Estimator) Estimate(items []cart.LineItem, addr *cart.Address) pricing.Money {
	if addr == nil {
		return decimal.Zero
	}
	parcel := e.Parcel(items)
	if parcel.Lines == 0 {
		return decimal.Zero
	}
	t := e.Table
	base := t.Base(addr.Country)
	weightSurcharge := excess(parcel.Weight, t.WeightAllowance).Mul(t.PerKg)
	volumeSurcharge := excess(parcel.VolumeL, t.VolumeAllowance).Mul(t.PerLiter)
	bulk := decimal.Zero
	if parcel.VolumeL.GreaterThan(t.BulkThreshold) {
		bulk = base.Mul(t.BulkDiscount)
	}
	cost := base.Add(weightSurcharge).Add(volumeSurcharge).Sub(bulk)
	return pricing.Round(pricing.NonNegative(cost))
}

func excess(v, allowance decimal.Decimal) decimal.Decimal {
	if v.LessThanOrEqual(allowance) {
		return decimal.Zero
	}
	return v.Sub(allowance)
}
