package referral

import "github.com/shopspring/decimal"

// Default commission rates and the token creation price.
var (
	// DefaultTokenPrice is the token creation fee in SOL.
	DefaultTokenPrice = decimal.RequireFromString("0.09")
	// DefaultTokenRate is the referrer share of the token creation fee.
	DefaultTokenRate = decimal.RequireFromString("0.10")
	// DefaultCustomRate is the referrer share of a custom address purchase.
	DefaultCustomRate = decimal.RequireFromString("0.50")
)

// commissionPlaces is the rounding precision for commission amounts.
// Matches the ledger column precision.
const commissionPlaces = 6

// Rates holds the commission configuration for one Ledger.
type Rates struct {
	TokenPrice decimal.Decimal
	TokenRate  decimal.Decimal
	CustomRate decimal.Decimal
}

// DefaultRates returns the production commission configuration.
func DefaultRates() Rates {
	return Rates{
		TokenPrice: DefaultTokenPrice,
		TokenRate:  DefaultTokenRate,
		CustomRate: DefaultCustomRate,
	}
}

// TokenCommission is the referrer payout for one token creation,
// rounded half up to six decimal places.
func (r Rates) TokenCommission() decimal.Decimal {
	return r.TokenPrice.Mul(r.TokenRate).Round(commissionPlaces)
}

// CustomCommission is the referrer payout for a custom address bought at
// the given price, rounded half up to six decimal places. A zero price
// (bonus address) yields a zero commission.
func (r Rates) CustomCommission(price decimal.Decimal) decimal.Decimal {
	return price.Mul(r.CustomRate).Round(commissionPlaces)
}
