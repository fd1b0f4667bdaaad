package domain

import "time"

// User is one referral program participant, keyed by the external
// messenger user id.
type User struct {
	UserID        int64
	Username      string
	WalletAddress *string // payout wallet, nil until the user sets one
	ReferralCode  string  // six-character code, immutable after creation
	ReferredBy    *int64  // set at most once, never to UserID itself
	// Lifetime totals credited through AddEarnings. Settlement amounts
	// fit comfortably in a float64; the authoritative per-payment values
	// live in referral_payments.
	TotalEarnedTokens float64
	TotalEarnedCustom float64
	TotalReferrals    int64
	// BonusCustomAddresses is the remaining free custom address quota.
	BonusCustomAddresses int64
	WelcomeMessageShown  bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
