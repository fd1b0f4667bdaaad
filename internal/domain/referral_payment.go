package domain

import "time"

// PaymentType names the commission source of a referral payment.
type PaymentType string

const (
	// PaymentToken is commission on a token creation fee.
	PaymentToken PaymentType = "token"
	// PaymentCustom is commission on a custom address purchase.
	PaymentCustom PaymentType = "custom"
)

// ReferralPayment is one append-only settlement ledger row. A payout
// transaction that covers both commission kinds produces two rows
// sharing the same tx hash, one per payment type.
type ReferralPayment struct {
	ID             int64
	ReferrerID     int64
	ReferredUserID int64
	Amount         float64
	PaymentType    PaymentType
	TxHash         *string // nil until the payout broadcast succeeded
	CreatedAt      time.Time
}

// UserStats is the aggregate referral view shown to a referrer.
type UserStats struct {
	User          *User
	Payments      []*ReferralPayment
	PendingTokens float64
	PendingCustom float64
}
