package clickhouse

import (
	"context"
	"fmt"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
)

// AuditStore implements storage.SubmissionAudit using ClickHouse.
// Attempt rows are append-only; MergeTree does not dedupe, and every
// broadcast attempt is its own event anyway.
type AuditStore struct {
	conn *Conn
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(conn *Conn) *AuditStore {
	return &AuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SubmissionAudit = (*AuditStore)(nil)

// RecordAttempt appends one submission attempt row.
func (s *AuditStore) RecordAttempt(ctx context.Context, a *storage.SubmissionAttempt) error {
	query := `
		INSERT INTO submission_attempts (
			flow, signature, attempt, outcome, error_class, blockhash, duration_ms, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		a.Flow,
		a.Signature,
		uint8(a.Attempt),
		a.Outcome,
		a.ErrorClass,
		a.Blockhash,
		uint64(a.Duration.Milliseconds()),
		a.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission attempt: %w", err)
	}
	return nil
}
