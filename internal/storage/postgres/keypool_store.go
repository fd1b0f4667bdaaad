package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// KeyPoolStore implements storage.KeyPoolStore using PostgreSQL.
//
// Claims are a single UPDATE over a FOR UPDATE SKIP LOCKED subselect, so
// concurrent callers never observe the same available row. This is the
// correctness core everything downstream depends on.
type KeyPoolStore struct {
	pool *Pool
}

// NewKeyPoolStore creates a new KeyPoolStore.
func NewKeyPoolStore(pool *Pool) *KeyPoolStore {
	return &KeyPoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.KeyPoolStore = (*KeyPoolStore)(nil)

const keyColumns = `id, category, secret_key, public_address, ending, status, reserved_at, used_for_mint, created_at`

// Insert adds a new available record.
func (s *KeyPoolStore) Insert(ctx context.Context, r *domain.KeyRecord) error {
	if r == nil || r.PublicAddress == "" || len(r.SecretKey) == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO key_pool (category, secret_key, public_address, ending, status)
		VALUES ($1, $2, $3, $4, 'available')
		RETURNING id, created_at
	`

	err := s.pool.QueryRow(ctx, query,
		string(r.Category),
		r.SecretKey,
		r.PublicAddress,
		r.Ending,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert key record: %w", err)
	}
	r.Status = domain.KeyAvailable
	return nil
}

// ClaimRandom atomically reserves one available record of the category.
func (s *KeyPoolStore) ClaimRandom(ctx context.Context, category domain.KeyCategory) (*domain.KeyRecord, error) {
	query := `
		UPDATE key_pool
		SET status = 'reserved', reserved_at = now()
		WHERE id = (
			SELECT id FROM key_pool
			WHERE status = 'available' AND category = $1
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + keyColumns

	row := s.pool.QueryRow(ctx, query, string(category))
	r, err := scanKeyRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrPoolExhausted
		}
		return nil, fmt.Errorf("claim random key: %w", err)
	}
	return r, nil
}

// ClaimByEnding atomically reserves one available custom record whose
// ending matches exactly.
func (s *KeyPoolStore) ClaimByEnding(ctx context.Context, ending string) (*domain.KeyRecord, error) {
	query := `
		UPDATE key_pool
		SET status = 'reserved', reserved_at = now()
		WHERE id = (
			SELECT id FROM key_pool
			WHERE status = 'available' AND category = 'custom' AND ending = $1
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + keyColumns

	row := s.pool.QueryRow(ctx, query, ending)
	r, err := scanKeyRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("claim key by ending: %w", err)
	}
	return r, nil
}

// MarkUsed transitions reserved -> used and binds the mint address.
func (s *KeyPoolStore) MarkUsed(ctx context.Context, id int64, mintAddress string) error {
	query := `
		UPDATE key_pool
		SET status = 'used', used_for_mint = $2, reserved_at = NULL
		WHERE id = $1 AND status = 'reserved'
	`

	tag, err := s.pool.Exec(ctx, query, id, mintAddress)
	if err != nil {
		return fmt.Errorf("mark key used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidState
	}
	return nil
}

// ReleaseReservation transitions reserved -> available.
func (s *KeyPoolStore) ReleaseReservation(ctx context.Context, id int64) error {
	query := `
		UPDATE key_pool
		SET status = 'available', reserved_at = NULL
		WHERE id = $1 AND status = 'reserved'
	`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("release key reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidState
	}
	return nil
}

// Delete permanently removes a record from the pool.
func (s *KeyPoolStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM key_pool WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete key record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AvailableEndings lists endings that still have available custom records.
func (s *KeyPoolStore) AvailableEndings(ctx context.Context) ([]domain.EndingCount, error) {
	query := `
		SELECT ending, COUNT(*)
		FROM key_pool
		WHERE category = 'custom' AND status = 'available'
		GROUP BY ending
		ORDER BY ending ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list available endings: %w", err)
	}
	defer rows.Close()

	var result []domain.EndingCount
	for rows.Next() {
		var ec domain.EndingCount
		if err := rows.Scan(&ec.Ending, &ec.Available); err != nil {
			return nil, fmt.Errorf("scan ending row: %w", err)
		}
		result = append(result, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ending rows: %w", err)
	}
	return result, nil
}

// Stats returns per-category record counts.
func (s *KeyPoolStore) Stats(ctx context.Context) ([]domain.PoolStats, error) {
	query := `
		SELECT category,
			COUNT(*) FILTER (WHERE status = 'available'),
			COUNT(*) FILTER (WHERE status = 'reserved'),
			COUNT(*) FILTER (WHERE status = 'used')
		FROM key_pool
		GROUP BY category
		ORDER BY category ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pool stats: %w", err)
	}
	defer rows.Close()

	var result []domain.PoolStats
	for rows.Next() {
		var st domain.PoolStats
		var category string
		if err := rows.Scan(&category, &st.Available, &st.Reserved, &st.Used); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		st.Category = domain.KeyCategory(category)
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats rows: %w", err)
	}
	return result, nil
}

// ReleaseOlderThan releases every reservation held longer than age.
func (s *KeyPoolStore) ReleaseOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	query := `
		UPDATE key_pool
		SET status = 'available', reserved_at = NULL
		WHERE status = 'reserved' AND reserved_at < now() - make_interval(secs => $1)
	`

	tag, err := s.pool.Exec(ctx, query, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("release stuck reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanKeyRecord scans a single row into a KeyRecord.
func scanKeyRecord(row pgx.Row) (*domain.KeyRecord, error) {
	var r domain.KeyRecord
	var category, status string
	var usedForMint *string

	err := row.Scan(
		&r.ID,
		&category,
		&r.SecretKey,
		&r.PublicAddress,
		&r.Ending,
		&status,
		&r.ReservedAt,
		&usedForMint,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Category = domain.KeyCategory(category)
	r.Status = domain.KeyStatus(status)
	if usedForMint != nil {
		r.UsedForMint = *usedForMint
	}
	return &r, nil
}
