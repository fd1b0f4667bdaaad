package storage

import (
	"context"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
)

// KeyPoolStore provides access to the reservable key pool.
//
// Claim operations are the concurrency-critical core: selecting an
// available row and flipping it to reserved must be a single atomic unit.
// No two concurrent callers may claim the same row.
type KeyPoolStore interface {
	// Insert adds a new available record. Returns ErrDuplicateKey if a
	// record with the same public address exists.
	Insert(ctx context.Context, r *domain.KeyRecord) error

	// ClaimRandom atomically reserves one available record of the given
	// category. Returns ErrPoolExhausted if none is available.
	ClaimRandom(ctx context.Context, category domain.KeyCategory) (*domain.KeyRecord, error)

	// ClaimByEnding atomically reserves one available custom record whose
	// ending matches exactly. Returns ErrNotFound if no matching record
	// is available.
	ClaimByEnding(ctx context.Context, ending string) (*domain.KeyRecord, error)

	// MarkUsed transitions reserved -> used and binds the mint address.
	// Returns ErrInvalidState if the record is not currently reserved.
	MarkUsed(ctx context.Context, id int64, mintAddress string) error

	// ReleaseReservation transitions reserved -> available.
	// Returns ErrInvalidState if the record is not currently reserved.
	ReleaseReservation(ctx context.Context, id int64) error

	// Delete permanently removes a record from the pool.
	// Returns ErrNotFound if the record does not exist.
	Delete(ctx context.Context, id int64) error

	// AvailableEndings lists endings that still have available custom
	// records, with counts.
	AvailableEndings(ctx context.Context) ([]domain.EndingCount, error)

	// Stats returns per-category record counts.
	Stats(ctx context.Context) ([]domain.PoolStats, error)

	// ReleaseOlderThan releases every reservation held longer than age.
	// Used records are never touched. Returns the number of released rows.
	ReleaseOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// UserStore provides access to referral program users.
type UserStore interface {
	// Upsert inserts the user if unknown, otherwise refreshes the
	// username. ReferralCode is written only on first insert.
	Upsert(ctx context.Context, u *domain.User) (created bool, err error)

	// GetByID retrieves a user. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, userID int64) (*domain.User, error)

	// GetByReferralCode retrieves a user by their code.
	// Returns ErrNotFound if no user carries the code.
	GetByReferralCode(ctx context.Context, code string) (*domain.User, error)

	// SetReferrer sets referred_by exactly once and increments the
	// referrer's total_referrals in the same transaction. Returns
	// ErrAlreadyHasReferrer if referred_by is already set, ErrNotFound
	// if either user is unknown.
	SetReferrer(ctx context.Context, userID, referrerID int64) error

	// SetWallet sets or clears (nil) the payout wallet address.
	SetWallet(ctx context.Context, userID int64, wallet *string) error

	// UseBonus decrements bonus_custom_addresses if it is positive.
	// Returns false without error once the balance is zero.
	UseBonus(ctx context.Context, userID int64) (bool, error)

	// SetWelcomeShown marks the one-way welcome flag. Idempotent.
	SetWelcomeShown(ctx context.Context, userID int64) error

	// AddEarnings accumulates payout totals on the referrer row.
	AddEarnings(ctx context.Context, userID int64, tokenAmount, customAmount float64) error
}

// PaymentStore provides access to the append-only referral payment ledger.
type PaymentStore interface {
	// RecordIdempotent inserts the payment. If a row with the same
	// non-empty tx hash and payment type already exists, the existing
	// row is returned with inserted=false and no new row is written.
	RecordIdempotent(ctx context.Context, p *domain.ReferralPayment) (stored *domain.ReferralPayment, inserted bool, err error)

	// ListByReferrer retrieves all payments credited to a referrer,
	// ordered by creation time ASC.
	ListByReferrer(ctx context.Context, referrerID int64) ([]*domain.ReferralPayment, error)
}

// SubmissionAudit records every broadcast attempt for post-hoc
// reconciliation. Implementations must not fail the submission path;
// callers treat sink errors as log-only.
type SubmissionAudit interface {
	RecordAttempt(ctx context.Context, a *SubmissionAttempt) error
}

// SubmissionAttempt is one append-only audit row.
type SubmissionAttempt struct {
	Flow       string // payment, mint, revoke
	Signature  string // empty if broadcast never happened
	Attempt    int
	Outcome    string // confirmed, transient, fatal
	ErrorClass string
	Blockhash  string
	Duration   time.Duration
	OccurredAt time.Time
}
