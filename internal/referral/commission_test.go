package referral

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTokenCommission(t *testing.T) {
	got := DefaultRates().TokenCommission()
	want := decimal.RequireFromString("0.009")
	if !got.Equal(want) {
		t.Errorf("TokenCommission = %s, want %s", got, want)
	}
}

func TestCustomCommission(t *testing.T) {
	cases := []struct {
		price string
		want  string
	}{
		{"0.03", "0.015"},
		{"0.10", "0.05"},
		{"0.20", "0.10"},
		{"0.35", "0.175"},
		{"0.50", "0.25"},
		{"0.75", "0.375"},
		{"1.00", "0.50"},
		{"0", "0"},
	}
	rates := DefaultRates()
	for _, tc := range cases {
		got := rates.CustomCommission(decimal.RequireFromString(tc.price))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("CustomCommission(%s) = %s, want %s", tc.price, got, tc.want)
		}
	}
}

func TestCommissionRounding(t *testing.T) {
	rates := Rates{
		TokenPrice: decimal.RequireFromString("0.09"),
		TokenRate:  decimal.RequireFromString("0.3333333"),
		CustomRate: decimal.RequireFromString("0.3333333"),
	}
	got := rates.TokenCommission()
	want := decimal.RequireFromString("0.03")
	if !got.Equal(want) {
		t.Errorf("TokenCommission = %s, want %s", got, want)
	}

	got = rates.CustomCommission(decimal.RequireFromString("0.0000001"))
	if !got.IsZero() {
		t.Errorf("CustomCommission below precision = %s, want 0", got)
	}
}
