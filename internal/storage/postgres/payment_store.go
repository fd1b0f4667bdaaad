package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// PaymentStore implements storage.PaymentStore using PostgreSQL.
// Rows are append-only; idempotency rests on the partial unique index
// over (tx_hash, payment_type).
type PaymentStore struct {
	pool *Pool
}

// NewPaymentStore creates a new PaymentStore.
func NewPaymentStore(pool *Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PaymentStore = (*PaymentStore)(nil)

const paymentColumns = `id, referrer_id, referred_user_id, amount, payment_type, tx_hash, created_at`

// RecordIdempotent inserts the payment. A row with the same non-empty
// tx hash and payment type makes the call a no-op that returns the
// existing row, which is what makes retried settlement calls safe.
func (s *PaymentStore) RecordIdempotent(ctx context.Context, p *domain.ReferralPayment) (*domain.ReferralPayment, bool, error) {
	if p == nil || p.ReferrerID == 0 || p.ReferredUserID == 0 {
		return nil, false, storage.ErrInvalidInput
	}

	insert := `
		INSERT INTO referral_payments (referrer_id, referred_user_id, amount, payment_type, tx_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_hash, payment_type) WHERE tx_hash IS NOT NULL DO NOTHING
		RETURNING ` + paymentColumns

	row := s.pool.QueryRow(ctx, insert,
		p.ReferrerID,
		p.ReferredUserID,
		p.Amount,
		string(p.PaymentType),
		p.TxHash,
	)
	stored, err := scanPayment(row)
	if err == nil {
		return stored, true, nil
	}
	if !isNotFoundError(err) {
		return nil, false, fmt.Errorf("record payment: %w", err)
	}

	// Conflict path: fetch the row that won.
	if p.TxHash == nil || *p.TxHash == "" {
		return nil, false, fmt.Errorf("record payment: insert returned no row without tx hash conflict")
	}
	existing := `SELECT ` + paymentColumns + ` FROM referral_payments WHERE tx_hash = $1 AND payment_type = $2`
	stored, err = scanPayment(s.pool.QueryRow(ctx, existing, *p.TxHash, string(p.PaymentType)))
	if err != nil {
		return nil, false, fmt.Errorf("load existing payment: %w", err)
	}
	return stored, false, nil
}

// ListByReferrer retrieves all payments credited to a referrer.
func (s *PaymentStore) ListByReferrer(ctx context.Context, referrerID int64) ([]*domain.ReferralPayment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM referral_payments
		WHERE referrer_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list payments by referrer: %w", err)
	}
	defer rows.Close()

	var result []*domain.ReferralPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return result, nil
}

// scanPayment scans a single row into a ReferralPayment.
func scanPayment(row pgx.Row) (*domain.ReferralPayment, error) {
	var p domain.ReferralPayment
	var paymentType string

	err := row.Scan(
		&p.ID,
		&p.ReferrerID,
		&p.ReferredUserID,
		&p.Amount,
		&paymentType,
		&p.TxHash,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.PaymentType = domain.PaymentType(paymentType)
	return &p, nil
}
