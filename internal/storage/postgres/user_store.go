package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

const userColumns = `user_id, username, wallet_address, referral_code, referred_by,
	total_earned_tokens, total_earned_custom, total_referrals,
	bonus_custom_addresses, welcome_message_shown, created_at, updated_at`

// Upsert inserts the user if unknown, otherwise refreshes the username.
// The referral code is written only on first insert; it never changes.
func (s *UserStore) Upsert(ctx context.Context, u *domain.User) (bool, error) {
	if u == nil || u.UserID == 0 || u.ReferralCode == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO users (user_id, username, referral_code, bonus_custom_addresses)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END,
		    updated_at = now()
		RETURNING (xmax = 0)
	`

	var created bool
	err := s.pool.QueryRow(ctx, query,
		u.UserID,
		u.Username,
		u.ReferralCode,
		u.BonusCustomAddresses,
	).Scan(&created)
	if err != nil {
		if isDuplicateKeyError(err) {
			// referral_code collision with another user
			return false, storage.ErrDuplicateKey
		}
		return false, fmt.Errorf("upsert user: %w", err)
	}
	return created, nil
}

// GetByID retrieves a user. Returns ErrNotFound if not exists.
func (s *UserStore) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	row := s.pool.QueryRow(ctx, query, userID)
	u, err := scanUser(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetByReferralCode retrieves a user by their code.
func (s *UserStore) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`

	row := s.pool.QueryRow(ctx, query, code)
	u, err := scanUser(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user by referral code: %w", err)
	}
	return u, nil
}

// SetReferrer sets referred_by exactly once and increments the referrer's
// total_referrals in the same transaction. The conditional UPDATE is the
// serialization point: of N concurrent duplicate calls exactly one
// affects a row, the rest observe ErrAlreadyHasReferrer.
func (s *UserStore) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set referrer: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET referred_by = $2, updated_at = now()
		WHERE user_id = $1 AND referred_by IS NULL
	`, userID, referrerID)
	if err != nil {
		return fmt.Errorf("set referred_by: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish unknown user from an already-set referrer.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrAlreadyHasReferrer
	}

	tag, err = tx.Exec(ctx, `
		UPDATE users
		SET total_referrals = total_referrals + 1, updated_at = now()
		WHERE user_id = $1
	`, referrerID)
	if err != nil {
		return fmt.Errorf("increment referrer count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit set referrer: %w", err)
	}
	return nil
}

// SetWallet sets or clears the payout wallet address.
func (s *UserStore) SetWallet(ctx context.Context, userID int64, wallet *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET wallet_address = $2, updated_at = now() WHERE user_id = $1
	`, userID, wallet)
	if err != nil {
		return fmt.Errorf("set wallet address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UseBonus decrements bonus_custom_addresses if positive. The guard in
// the WHERE clause makes concurrent decrements safe: the counter never
// goes below zero.
func (s *UserStore) UseBonus(ctx context.Context, userID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET bonus_custom_addresses = bonus_custom_addresses - 1, updated_at = now()
		WHERE user_id = $1 AND bonus_custom_addresses > 0
	`, userID)
	if err != nil {
		return false, fmt.Errorf("use bonus address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return false, fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return false, storage.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// SetWelcomeShown marks the one-way welcome flag. Idempotent.
func (s *UserStore) SetWelcomeShown(ctx context.Context, userID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET welcome_message_shown = TRUE, updated_at = now() WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("set welcome shown: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddEarnings accumulates payout totals on the referrer row.
func (s *UserStore) AddEarnings(ctx context.Context, userID int64, tokenAmount, customAmount float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET total_earned_tokens = total_earned_tokens + $2,
			total_earned_custom = total_earned_custom + $3,
			updated_at = now()
		WHERE user_id = $1
	`, userID, tokenAmount, customAmount)
	if err != nil {
		return fmt.Errorf("add earnings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanUser scans a single row into a User.
func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.UserID,
		&u.Username,
		&u.WalletAddress,
		&u.ReferralCode,
		&u.ReferredBy,
		&u.TotalEarnedTokens,
		&u.TotalEarnedCustom,
		&u.TotalReferrals,
		&u.BonusCustomAddresses,
		&u.WelcomeMessageShown,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
