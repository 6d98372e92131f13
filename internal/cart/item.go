package cart

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/modelshop-checkout/internal/pricing"
)

// Kind identifies how a line item is fulfilled.
type Kind string

const (
	// KindDigital is a downloadable model file.
	KindDigital Kind = "digital"
	// KindPhysical is a printed model that has to be shipped.
	KindPhysical Kind = "physical"
)

// Dimensions is the bounding box of a printed model in centimetres.
type Dimensions struct {
	Length decimal.Decimal `json:"length"`
	Width  decimal.Decimal `json:"width"`
	Height decimal.Decimal `json:"height"`
}

// PrintOptions describe how a physical model is printed.
type PrintOptions struct {
	Material string `json:"material,omitempty"`
	Color    string `json:"color,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Infill   int    `json:"infill,omitempty"`
	Size     string `json:"size,omitempty"`
}

// LineItem is one distinct product entry in the cart.
type LineItem struct {
	ID             string           `json:"id" validate:"required"`
	Name           string           `json:"name" validate:"required"`
	Description    string           `json:"description,omitempty"`
	Price          pricing.Money    `json:"price"`
	Quantity       int              `json:"quantity"`
	Kind           Kind             `json:"type" validate:"required,oneof=digital physical"`
	Image          string           `json:"image,omitempty"`
	CreatorName    string           `json:"creatorName,omitempty"`
	CreatorID      string           `json:"creatorId,omitempty"`
	Category       string           `json:"category,omitempty"`
	Tags           []string         `json:"tags"`
	Weight         *decimal.Decimal `json:"weight,omitempty"`
	Dimensions     *Dimensions      `json:"dimensions,omitempty"`
	PrintOptions   *PrintOptions    `json:"printOptions,omitempty"`
	DownloadFormat []string         `json:"downloadFormat,omitempty"`
}

// Measurement errors reported by CheckAmounts.
var (
	ErrNegativePrice      = errors.New("price must not be negative")
	ErrNegativeWeight     = errors.New("weight must not be negative")
	ErrNegativeDimensions = errors.New("dimensions must not be negative")
)

// CheckAmounts rejects negative price, weight or dimensions.
func (it LineItem) CheckAmounts() error {
	if it.Price.IsNegative() {
		return ErrNegativePrice
	}
	if it.Weight != nil && it.Weight.IsNegative() {
		return ErrNegativeWeight
	}
	if d := it.Dimensions; d != nil && (d.Length.IsNegative() || d.Width.IsNegative() || d.Height.IsNegative()) {
		return ErrNegativeDimensions
	}
	return nil
}

// IsPhysical reports whether the item has to be shipped.
func (it LineItem) IsPhysical() bool {
	return it.Kind == KindPhysical
}

// LineTotal returns price times quantity.
func (it LineItem) LineTotal() pricing.Money {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Address is the shipping destination. Only Country is interpreted.
type Address struct {
	FullName string `json:"fullName"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country" validate:"required"`
	Phone    string `json:"phone"`
}

// CountryKey canonicalises a country name for rate table lookups.
func CountryKey(country string) string {
	return strings.ToLower(strings.TrimSpace(country))
}
