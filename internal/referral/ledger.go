// Package referral maintains the referral program: user registration
// with deterministic codes, one-shot referrer binding, and the
// idempotent settlement ledger.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/observability"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/refcode"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// DefaultBonusCustomAddresses is the free custom address quota granted
// to every new user.
const DefaultBonusCustomAddresses = 3

// Ledger is the referral program service. All persistence guarantees
// (once-only referrer binding, payment idempotency) live in the stores;
// the Ledger adds code derivation, validation and commission math.
type Ledger struct {
	users    storage.UserStore
	payments storage.PaymentStore
	secret   string // referral code derivation secret
	rates    Rates
	logger   *log.Logger
}

// NewLedger creates a Ledger.
func NewLedger(users storage.UserStore, payments storage.PaymentStore, secret string, rates Rates, logger *log.Logger) *Ledger {
	return &Ledger{
		users:    users,
		payments: payments,
		secret:   secret,
		rates:    rates,
		logger:   logger,
	}
}

// EnsureUser registers the user on first contact and refreshes the
// username on every later call. The referral code is derived
// deterministically from the user id and never changes.
func (l *Ledger) EnsureUser(ctx context.Context, userID int64, username string) (*domain.User, error) {
	u := &domain.User{
		UserID:               userID,
		Username:             username,
		ReferralCode:         refcode.Compute(l.secret, userID),
		BonusCustomAddresses: DefaultBonusCustomAddresses,
	}
	created, err := l.users.Upsert(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", userID, err)
	}
	if created {
		l.logger.Printf("registered user %d with code %s", userID, u.ReferralCode)
	}
	return l.users.GetByID(ctx, userID)
}

// SetReferrerByCode binds the user to the owner of the code. The binding
// happens at most once per user; self-referral is rejected before
// touching the store. Returns storage.ErrReferrerNotFound for unknown
// codes, storage.ErrSelfReferral, or storage.ErrAlreadyHasReferrer.
func (l *Ledger) SetReferrerByCode(ctx context.Context, userID int64, code string) error {
	referrer, err := l.users.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ErrReferrerNotFound
		}
		return fmt.Errorf("lookup referral code %s: %w", code, err)
	}
	if referrer.UserID == userID {
		return storage.ErrSelfReferral
	}

	if err := l.users.SetReferrer(ctx, userID, referrer.UserID); err != nil {
		return err
	}
	observability.DefaultMetrics.ReferrersBound.Inc()
	l.logger.Printf("user %d referred by %d (code %s)", userID, referrer.UserID, code)
	return nil
}

// GetReferrer returns the user's referrer, or nil if the user has none.
func (l *Ledger) GetReferrer(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.ReferredBy == nil {
		return nil, nil
	}
	referrer, err := l.users.GetByID(ctx, *u.ReferredBy)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// referrer row deleted; treat as no referrer
			return nil, nil
		}
		return nil, err
	}
	return referrer, nil
}

// SetWalletAddress sets the referrer's payout wallet.
func (l *Ledger) SetWalletAddress(ctx context.Context, userID int64, wallet string) error {
	if wallet == "" {
		return fmt.Errorf("set wallet for user %d: %w: empty address", userID, storage.ErrInvalidInput)
	}
	return l.users.SetWallet(ctx, userID, &wallet)
}

// RemoveWalletAddress clears the referrer's payout wallet.
func (l *Ledger) RemoveWalletAddress(ctx context.Context, userID int64) error {
	return l.users.SetWallet(ctx, userID, nil)
}

// RecordPayment appends a settlement row and credits the referrer's
// lifetime totals. When the same tx hash and payment type was already
// recorded, the existing row is returned, no totals change, and
// recorded is false. Retried settlement calls are therefore safe.
func (l *Ledger) RecordPayment(ctx context.Context, p *domain.ReferralPayment) (*domain.ReferralPayment, bool, error) {
	stored, inserted, err := l.payments.RecordIdempotent(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("record %s payment for referrer %d: %w", p.PaymentType, p.ReferrerID, err)
	}
	observability.RecordPayment(string(p.PaymentType), inserted)
	if !inserted {
		l.logger.Printf("payment already recorded for tx %v type %s, skipping", deref(p.TxHash), p.PaymentType)
		return stored, false, nil
	}

	var tokenAmount, customAmount float64
	switch stored.PaymentType {
	case domain.PaymentToken:
		tokenAmount = stored.Amount
	case domain.PaymentCustom:
		customAmount = stored.Amount
	}
	if err := l.users.AddEarnings(ctx, stored.ReferrerID, tokenAmount, customAmount); err != nil {
		return stored, true, fmt.Errorf("credit earnings for referrer %d: %w", stored.ReferrerID, err)
	}
	l.logger.Printf("recorded %s payment of %.6f for referrer %d", stored.PaymentType, stored.Amount, stored.ReferrerID)
	return stored, true, nil
}

// GetBonusCustomAddresses returns the user's remaining free custom
// address quota.
func (l *Ledger) GetBonusCustomAddresses(ctx context.Context, userID int64) (int64, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.BonusCustomAddresses, nil
}

// UseBonusCustomAddress consumes one bonus address if any remain.
// Returns false without error once the quota is spent.
func (l *Ledger) UseBonusCustomAddress(ctx context.Context, userID int64) (bool, error) {
	used, err := l.users.UseBonus(ctx, userID)
	if err != nil {
		return false, err
	}
	if used {
		l.logger.Printf("user %d consumed a bonus custom address", userID)
	}
	return used, nil
}

// WasWelcomeMessageShown reports the one-way welcome flag.
func (l *Ledger) WasWelcomeMessageShown(ctx context.Context, userID int64) (bool, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.WelcomeMessageShown, nil
}

// MarkWelcomeMessageShown sets the one-way welcome flag. Idempotent.
func (l *Ledger) MarkWelcomeMessageShown(ctx context.Context, userID int64) error {
	return l.users.SetWelcomeShown(ctx, userID)
}

// UserStats returns the referrer's aggregate view: user row plus every
// settlement row credited to them.
func (l *Ledger) UserStats(ctx context.Context, userID int64) (*domain.UserStats, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	payments, err := l.payments.ListByReferrer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments for referrer %d: %w", userID, err)
	}

	stats := &domain.UserStats{User: u, Payments: payments}
	for _, p := range payments {
		if p.TxHash != nil {
			continue
		}
		switch p.PaymentType {
		case domain.PaymentToken:
			stats.PendingTokens += p.Amount
		case domain.PaymentCustom:
			stats.PendingCustom += p.Amount
		}
	}
	return stats, nil
}

// Rates exposes the commission configuration.
func (l *Ledger) Rates() Rates {
	return l.rates
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
