package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// KeyPoolStore is an in-memory implementation of storage.KeyPoolStore.
// The single mutex makes every claim a serialized read-modify-write,
// matching the atomicity the postgres implementation gets from
// FOR UPDATE SKIP LOCKED.
type KeyPoolStore struct {
	mu     sync.Mutex
	data   map[int64]*domain.KeyRecord
	byAddr map[string]int64
	nextID int64
	now    func() time.Time
}

// NewKeyPoolStore creates a new in-memory key pool store.
func NewKeyPoolStore() *KeyPoolStore {
	return &KeyPoolStore{
		data:   make(map[int64]*domain.KeyRecord),
		byAddr: make(map[string]int64),
		nextID: 1,
		now:    time.Now,
	}
}

// Insert adds a new available record.
func (s *KeyPoolStore) Insert(_ context.Context, r *domain.KeyRecord) error {
	if r == nil || r.PublicAddress == "" || len(r.SecretKey) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddr[r.PublicAddress]; exists {
		return storage.ErrDuplicateKey
	}

	rec := *r
	rec.ID = s.nextID
	rec.Status = domain.KeyAvailable
	rec.CreatedAt = s.now()
	s.nextID++

	s.data[rec.ID] = &rec
	s.byAddr[rec.PublicAddress] = rec.ID
	r.ID = rec.ID
	return nil
}

// ClaimRandom atomically reserves one available record of the category.
func (s *KeyPoolStore) ClaimRandom(_ context.Context, category domain.KeyCategory) (*domain.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.data {
		if r.Category == category && r.Status == domain.KeyAvailable {
			return s.reserveLocked(r), nil
		}
	}
	return nil, storage.ErrPoolExhausted
}

// ClaimByEnding atomically reserves one available record matching the ending.
func (s *KeyPoolStore) ClaimByEnding(_ context.Context, ending string) (*domain.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.data {
		if r.Category == domain.CategoryCustom && r.Status == domain.KeyAvailable && r.Ending == ending {
			return s.reserveLocked(r), nil
		}
	}
	return nil, storage.ErrNotFound
}

// reserveLocked flips a record to reserved. Caller holds s.mu.
func (s *KeyPoolStore) reserveLocked(r *domain.KeyRecord) *domain.KeyRecord {
	now := s.now()
	r.Status = domain.KeyReserved
	r.ReservedAt = &now

	rec := *r
	return &rec
}

// MarkUsed transitions reserved -> used.
func (s *KeyPoolStore) MarkUsed(_ context.Context, id int64, mintAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists || r.Status != domain.KeyReserved {
		return storage.ErrInvalidState
	}

	r.Status = domain.KeyUsed
	r.UsedForMint = mintAddress
	r.ReservedAt = nil
	return nil
}

// ReleaseReservation transitions reserved -> available.
func (s *KeyPoolStore) ReleaseReservation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists || r.Status != domain.KeyReserved {
		return storage.ErrInvalidState
	}

	r.Status = domain.KeyAvailable
	r.ReservedAt = nil
	return nil
}

// Delete permanently removes a record.
func (s *KeyPoolStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	delete(s.byAddr, r.PublicAddress)
	delete(s.data, id)
	return nil
}

// AvailableEndings lists endings with available custom records.
func (s *KeyPoolStore) AvailableEndings(_ context.Context) ([]domain.EndingCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	for _, r := range s.data {
		if r.Category == domain.CategoryCustom && r.Status == domain.KeyAvailable {
			counts[r.Ending]++
		}
	}

	result := make([]domain.EndingCount, 0, len(counts))
	for ending, n := range counts {
		result = append(result, domain.EndingCount{Ending: ending, Available: n})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Ending < result[j].Ending
	})
	return result, nil
}

// Stats returns per-category record counts.
func (s *KeyPoolStore) Stats(_ context.Context) ([]domain.PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory := make(map[domain.KeyCategory]*domain.PoolStats)
	for _, r := range s.data {
		st, ok := byCategory[r.Category]
		if !ok {
			st = &domain.PoolStats{Category: r.Category}
			byCategory[r.Category] = st
		}
		switch r.Status {
		case domain.KeyAvailable:
			st.Available++
		case domain.KeyReserved:
			st.Reserved++
		case domain.KeyUsed:
			st.Used++
		}
	}

	result := make([]domain.PoolStats, 0, len(byCategory))
	for _, st := range byCategory {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Category < result[j].Category
	})
	return result, nil
}

// ReleaseOlderThan releases reservations held longer than age.
func (s *KeyPoolStore) ReleaseOlderThan(_ context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-age)
	var released int64
	for _, r := range s.data {
		if r.Status == domain.KeyReserved && r.ReservedAt != nil && r.ReservedAt.Before(cutoff) {
			r.Status = domain.KeyAvailable
			r.ReservedAt = nil
			released++
		}
	}
	return released, nil
}

// Verify interface compliance at compile time.
var _ storage.KeyPoolStore = (*KeyPoolStore)(nil)
