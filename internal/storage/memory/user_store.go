package memory

import (
	"context"
	"sync"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu     sync.Mutex
	data   map[int64]*domain.User
	byCode map[string]int64
	now    func() time.Time
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		data:   make(map[int64]*domain.User),
		byCode: make(map[string]int64),
		now:    time.Now,
	}
}

// Upsert inserts the user if unknown, otherwise refreshes the username.
func (s *UserStore) Upsert(_ context.Context, u *domain.User) (bool, error) {
	if u == nil || u.UserID == 0 || u.ReferralCode == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[u.UserID]; ok {
		if u.Username != "" {
			existing.Username = u.Username
		}
		existing.UpdatedAt = s.now()
		return false, nil
	}

	if _, taken := s.byCode[u.ReferralCode]; taken {
		return false, storage.ErrDuplicateKey
	}

	user := *u
	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt
	s.data[user.UserID] = &user
	s.byCode[user.ReferralCode] = user.UserID
	return true, nil
}

// GetByID retrieves a user.
func (s *UserStore) GetByID(_ context.Context, userID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// GetByReferralCode retrieves a user by their code.
func (s *UserStore) GetByReferralCode(_ context.Context, code string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	userCopy := *s.data[id]
	return &userCopy, nil
}

// SetReferrer sets referred_by exactly once and bumps the referrer count.
// The single lock serializes concurrent duplicate calls so exactly one
// succeeds.
func (s *UserStore) SetReferrer(_ context.Context, userID, referrerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[userID]
	if !ok {
		return storage.ErrNotFound
	}
	ref, ok := s.data[referrerID]
	if !ok {
		return storage.ErrNotFound
	}
	if u.ReferredBy != nil {
		return storage.ErrAlreadyHasReferrer
	}

	u.ReferredBy = &referrerID
	u.UpdatedAt = s.now()
	ref.TotalReferrals++
	ref.UpdatedAt = s.now()
	return nil
}

// SetWallet sets or clears the payout wallet address.
func (s *UserStore) SetWallet(_ context.Context, userID int64, wallet *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if wallet != nil {
		w := *wallet
		u.WalletAddress = &w
	} else {
		u.WalletAddress = nil
	}
	u.UpdatedAt = s.now()
	return nil
}

// UseBonus decrements the bonus counter if positive.
func (s *UserStore) UseBonus(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[userID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if u.BonusCustomAddresses <= 0 {
		return false, nil
	}
	u.BonusCustomAddresses--
	u.UpdatedAt = s.now()
	return true, nil
}

// SetWelcomeShown marks the one-way welcome flag.
func (s *UserStore) SetWelcomeShown(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.WelcomeMessageShown = true
	u.UpdatedAt = s.now()
	return nil
}

// AddEarnings accumulates payout totals.
func (s *UserStore) AddEarnings(_ context.Context, userID int64, tokenAmount, customAmount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.TotalEarnedTokens += tokenAmount
	u.TotalEarnedCustom += customAmount
	u.UpdatedAt = s.now()
	return nil
}

// Verify interface compliance at compile time.
var _ storage.UserStore = (*UserStore)(nil)
