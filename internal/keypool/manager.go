// Package keypool manages the reserve/commit/release lifecycle of
// pre-generated vanity keypairs.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/observability"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

// Manager coordinates key pool reservations. All claim atomicity lives
// in the store; the manager adds validation, logging and the
// import path for new keys.
type Manager struct {
	store  storage.KeyPoolStore
	logger *log.Logger
}

// NewManager creates a Manager.
func NewManager(store storage.KeyPoolStore, logger *log.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// ReserveRandom reserves one available key of the category. The caller
// owns the returned record until Commit, Release or Invalidate.
func (m *Manager) ReserveRandom(ctx context.Context, category domain.KeyCategory) (*domain.KeyRecord, error) {
	rec, err := m.store.ClaimRandom(ctx, category)
	if err != nil {
		if errors.Is(err, storage.ErrPoolExhausted) {
			m.logger.Printf("key pool exhausted for category %s", category)
			observability.RecordReservation(string(category), "exhausted")
		} else {
			observability.RecordReservationError("claim_random")
		}
		return nil, err
	}
	observability.RecordReservation(string(category), "reserved")
	m.logger.Printf("reserved key %d (%s, ending %s)", rec.ID, rec.Category, rec.Ending)
	return rec, nil
}

// ReserveByEnding reserves one available custom key whose address ends
// with the given suffix, case-sensitive. Returns storage.ErrNotFound
// when the ending has no available keys left.
func (m *Manager) ReserveByEnding(ctx context.Context, ending string) (*domain.KeyRecord, error) {
	if ending == "" {
		return nil, fmt.Errorf("reserve by ending: %w: empty ending", storage.ErrInvalidInput)
	}
	rec, err := m.store.ClaimByEnding(ctx, ending)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			observability.RecordReservationError("claim_by_ending")
		}
		return nil, err
	}
	observability.RecordReservation(string(domain.CategoryCustom), "reserved")
	m.logger.Printf("reserved key %d by ending %s", rec.ID, ending)
	return rec, nil
}

// Commit marks a reserved key as consumed by the given mint.
func (m *Manager) Commit(ctx context.Context, id int64, mintAddress string) error {
	if mintAddress == "" {
		return fmt.Errorf("commit key %d: %w: empty mint address", id, storage.ErrInvalidInput)
	}
	if err := m.store.MarkUsed(ctx, id, mintAddress); err != nil {
		return err
	}
	m.logger.Printf("committed key %d to mint %s", id, mintAddress)
	return nil
}

// Release returns a reserved key to the available pool, e.g. when the
// flow that claimed it aborts before minting.
func (m *Manager) Release(ctx context.Context, id int64) error {
	if err := m.store.ReleaseReservation(ctx, id); err != nil {
		return err
	}
	m.logger.Printf("released key %d back to pool", id)
	return nil
}

// Invalidate permanently removes a key found unusable on-chain (its
// address already holds an account). The key never returns to the pool.
func (m *Manager) Invalidate(ctx context.Context, id int64) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Printf("invalidated key %d", id)
	return nil
}

// Import validates and inserts a batch of new keys. Keys whose secret
// does not reproduce the stated public address are rejected; duplicates
// are skipped and counted. Returns (inserted, skipped).
func (m *Manager) Import(ctx context.Context, records []*domain.KeyRecord) (int, int, error) {
	inserted, skipped := 0, 0
	for _, rec := range records {
		kp, err := txwire.KeypairFromSecretKey(rec.SecretKey)
		if err != nil {
			return inserted, skipped, fmt.Errorf("import key %s: %w", rec.PublicAddress, err)
		}
		if kp.Address() != rec.PublicAddress {
			return inserted, skipped, fmt.Errorf("import key %s: %w: secret does not match address", rec.PublicAddress, storage.ErrInvalidInput)
		}
		if err := m.store.Insert(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				skipped++
				continue
			}
			return inserted, skipped, err
		}
		inserted++
	}
	m.logger.Printf("imported %d keys, skipped %d duplicates", inserted, skipped)
	return inserted, skipped, nil
}

// AvailableEndings lists endings with at least one available custom key.
func (m *Manager) AvailableEndings(ctx context.Context) ([]domain.EndingCount, error) {
	return m.store.AvailableEndings(ctx)
}

// Stats returns per-category pool counts and refreshes the availability
// gauge.
func (m *Manager) Stats(ctx context.Context) ([]domain.PoolStats, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range stats {
		observability.UpdatePoolAvailable(string(s.Category), s.Available)
	}
	return stats, nil
}

// ReleaseStuck releases reservations older than age, reclaiming keys
// from flows that died between reserve and commit.
func (m *Manager) ReleaseStuck(ctx context.Context, age time.Duration) (int64, error) {
	n, err := m.store.ReleaseOlderThan(ctx, age)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.DefaultMetrics.StuckReleased.Add(float64(n))
		m.logger.Printf("released %d stuck reservations older than %s", n, age)
	}
	return n, nil
}
