package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
)

func TestRates(t *testing.T) {
	calc := NewCalculator()
	cases := []struct {
		name string
		addr *cart.Address
		want string
	}{
		{"spain", &cart.Address{Country: "España"}, "0.21"},
		{"portugal", &cart.Address{Country: "Portugal"}, "0.23"},
		{"usa", &cart.Address{Country: "Estados Unidos"}, "0.08"},
		{"case insensitive", &cart.Address{Country: " méxico"}, "0.16"},
		{"unmapped", &cart.Address{Country: "Reino Unido"}, "0.15"},
		{"no address", nil, "0.21"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc.Rate(tc.addr)
			require.Truef(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestComputeOnSubtotal(t *testing.T) {
	got := NewCalculator().Compute(decimal.NewFromInt(60), &cart.Address{Country: "España"})
	require.True(t, decimal.RequireFromString("12.60").Equal(got))
}

func TestComputeRoundsToCents(t *testing.T) {
	got := NewCalculator().Compute(decimal.RequireFromString("12.99"), &cart.Address{Country: "Francia"})
	require.True(t, decimal.RequireFromString("2.60").Equal(got))
}

func TestComputeEmptyCart(t *testing.T) {
	require.True(t, NewCalculator().Compute(decimal.Zero, nil).IsZero())
}
