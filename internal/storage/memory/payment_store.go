package memory

import (
	"context"
	"sync"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// PaymentStore is an in-memory implementation of storage.PaymentStore.
type PaymentStore struct {
	mu     sync.Mutex
	rows   []*domain.ReferralPayment
	nextID int64
	now    func() time.Time
}

// NewPaymentStore creates a new in-memory payment store.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{nextID: 1, now: time.Now}
}

// RecordIdempotent inserts the payment unless a row with the same
// non-empty tx hash and payment type already exists.
func (s *PaymentStore) RecordIdempotent(_ context.Context, p *domain.ReferralPayment) (*domain.ReferralPayment, bool, error) {
	if p == nil || p.ReferrerID == 0 || p.ReferredUserID == 0 {
		return nil, false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.TxHash != nil && *p.TxHash != "" {
		for _, row := range s.rows {
			if row.TxHash != nil && *row.TxHash == *p.TxHash && row.PaymentType == p.PaymentType {
				rowCopy := *row
				return &rowCopy, false, nil
			}
		}
	}

	row := *p
	row.ID = s.nextID
	row.CreatedAt = s.now()
	s.nextID++
	s.rows = append(s.rows, &row)

	rowCopy := row
	return &rowCopy, true, nil
}

// ListByReferrer retrieves all payments credited to a referrer.
func (s *PaymentStore) ListByReferrer(_ context.Context, referrerID int64) ([]*domain.ReferralPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.ReferralPayment
	for _, row := range s.rows {
		if row.ReferrerID == referrerID {
			rowCopy := *row
			result = append(result, &rowCopy)
		}
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PaymentStore = (*PaymentStore)(nil)
