// Package submitter gets signed transactions durably accepted by the
// ledger network despite transient staleness and timeout failures.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/observability"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/solana"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

// Default retry policy values.
const (
	DefaultMaxAttempts      = 5
	DefaultRetryDelay       = 2 * time.Second
	DefaultBlockhashTimeout = 10 * time.Second
)

// Options configures one Submit call.
type Options struct {
	// MaxAttempts bounds the retry budget. Payment and mint flows use 5,
	// authority revocation uses 2.
	MaxAttempts int
	// RetryDelay is the linear backoff base: the wait after attempt N is
	// N * RetryDelay.
	RetryDelay time.Duration
	// Commitment is the confirmation level to wait for.
	Commitment solana.Commitment
	// BlockhashCommitment is the commitment used when fetching the
	// blockhash; defaults to finalized.
	BlockhashCommitment solana.Commitment
	// Flow labels audit rows (payment, mint, revoke).
	Flow string
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Commitment == "" {
		o.Commitment = solana.CommitmentConfirmed
	}
	if o.BlockhashCommitment == "" {
		o.BlockhashCommitment = solana.CommitmentFinalized
	}
	if o.Flow == "" {
		o.Flow = "generic"
	}
	return o
}

// Submitter broadcasts and confirms transactions. It holds no persistent
// state; a process crash mid-confirmation leaves the outcome ambiguous
// and the caller reconciles via the returned signature.
type Submitter struct {
	rpc              solana.RPCClient
	fallback         solana.BlockhashSource // optional secondary blockhash source
	confirmer        solana.Confirmer
	audit            storage.SubmissionAudit // optional
	logger           *log.Logger
	blockhashTimeout time.Duration
	sleep            func(ctx context.Context, d time.Duration) error
	now              func() time.Time
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithFallbackBlockhashSource sets the secondary blockhash source used
// when the primary fetch fails. The failover is logged, never surfaced.
func WithFallbackBlockhashSource(src solana.BlockhashSource) SubmitterOption {
	return func(s *Submitter) {
		s.fallback = src
	}
}

// WithAudit sets the submission audit sink.
func WithAudit(audit storage.SubmissionAudit) SubmitterOption {
	return func(s *Submitter) {
		s.audit = audit
	}
}

// WithBlockhashTimeout bounds each blockhash fetch.
func WithBlockhashTimeout(d time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.blockhashTimeout = d
	}
}

// New creates a Submitter.
func New(rpc solana.RPCClient, confirmer solana.Confirmer, logger *log.Logger, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		rpc:              rpc,
		confirmer:        confirmer,
		logger:           logger,
		blockhashTimeout: DefaultBlockhashTimeout,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit signs the instructions with a fresh blockhash, broadcasts, and
// waits for confirmation. Transient failures are retried with linear
// backoff and a refreshed blockhash; the instructions themselves are
// never mutated between attempts. The returned signature is the
// transaction hash of the confirmed transaction.
func (s *Submitter) Submit(ctx context.Context, instructions []txwire.Instruction, signers []*txwire.Keypair, feePayer txwire.Pubkey, opts Options) (string, error) {
	if len(instructions) == 0 {
		return "", fmt.Errorf("submit: no instructions")
	}
	if len(signers) == 0 {
		return "", fmt.Errorf("submit: no signers")
	}
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		observability.RecordSubmissionAttempt(opts.Flow)
		started := s.now()
		signature, blockhash, err := s.attempt(ctx, instructions, signers, feePayer, opts)
		s.recordAttempt(ctx, opts.Flow, signature, attempt, blockhash, s.now().Sub(started), err)

		if err == nil {
			s.logger.Printf("transaction confirmed: %s (attempt %d/%d)", signature, attempt, opts.MaxAttempts)
			return signature, nil
		}
		lastErr = err

		class := Classify(err)
		observability.RecordSubmissionFailure(opts.Flow, string(class))
		if class == ClassAddressInUse {
			s.logger.Printf("submission failed (%s): %v", class, err)
			return "", fmt.Errorf("%w: %v", ErrAddressInUse, err)
		}
		if class != ClassTransient {
			s.logger.Printf("submission failed (%s): %v", class, err)
			return "", err
		}

		s.logger.Printf("transient submission error on attempt %d/%d: %v", attempt, opts.MaxAttempts, err)
		if attempt < opts.MaxAttempts {
			if err := s.sleep(ctx, time.Duration(attempt)*opts.RetryDelay); err != nil {
				return "", err
			}
		}
	}

	return "", fmt.Errorf("submission failed after %d attempts: %w", opts.MaxAttempts, lastErr)
}

// attempt performs one build-sign-send-confirm cycle.
// Returns the signature even on confirmation failure so audit rows can
// name the in-flight transaction.
func (s *Submitter) attempt(ctx context.Context, instructions []txwire.Instruction, signers []*txwire.Keypair, feePayer txwire.Pubkey, opts Options) (signature, blockhash string, err error) {
	latest, err := s.fetchBlockhash(ctx, opts.BlockhashCommitment)
	if err != nil {
		return "", "", fmt.Errorf("fetch blockhash: %w", err)
	}

	tx := &txwire.Transaction{
		Instructions:         instructions,
		FeePayer:             feePayer,
		RecentBlockhash:      latest.Blockhash,
		LastValidBlockHeight: latest.LastValidBlockHeight,
	}
	if err := tx.Sign(signers...); err != nil {
		return "", latest.Blockhash, &buildError{fmt.Errorf("sign transaction: %w", err)}
	}

	wire, err := tx.SerializeBase64()
	if err != nil {
		return "", latest.Blockhash, &buildError{fmt.Errorf("serialize transaction: %w", err)}
	}

	signature, err = s.rpc.SendTransaction(ctx, wire)
	if err != nil {
		return "", latest.Blockhash, fmt.Errorf("send transaction: %w", err)
	}

	confirmStarted := s.now()
	if err := s.confirmer.ConfirmTransaction(ctx, signature, latest.LastValidBlockHeight, opts.Commitment); err != nil {
		return signature, latest.Blockhash, fmt.Errorf("confirm transaction %s: %w", signature, err)
	}
	observability.RecordConfirmLatency(opts.Flow, s.now().Sub(confirmStarted).Seconds())
	return signature, latest.Blockhash, nil
}

// fetchBlockhash queries the primary source with a bounded timeout and
// silently falls back to the secondary source. Only when both fail does
// the caller see an error.
func (s *Submitter) fetchBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.blockhashTimeout)
	defer cancel()

	latest, err := s.rpc.GetLatestBlockhash(fetchCtx, commitment)
	if err == nil {
		return latest, nil
	}

	if s.fallback == nil {
		return nil, err
	}
	s.logger.Printf("primary blockhash source failed, using fallback: %v", err)
	observability.RecordBlockhashFallback()

	fallbackCtx, cancelFallback := context.WithTimeout(ctx, s.blockhashTimeout)
	defer cancelFallback()

	latest, fallbackErr := s.fallback.GetLatestBlockhash(fallbackCtx, commitment)
	if fallbackErr != nil {
		return nil, errors.Join(err, fallbackErr)
	}
	return latest, nil
}

// recordAttempt appends an audit row. Sink failures are log-only: the
// audit trail must never fail a submission.
func (s *Submitter) recordAttempt(ctx context.Context, flow, signature string, attempt int, blockhash string, elapsed time.Duration, submitErr error) {
	if s.audit == nil {
		return
	}

	outcome := "confirmed"
	errorClass := ""
	if submitErr != nil {
		class := Classify(submitErr)
		outcome = string(class)
		errorClass = submitErr.Error()
	}

	row := &storage.SubmissionAttempt{
		Flow:       flow,
		Signature:  signature,
		Attempt:    attempt,
		Outcome:    outcome,
		ErrorClass: errorClass,
		Blockhash:  blockhash,
		Duration:   elapsed,
		OccurredAt: s.now(),
	}
	if err := s.audit.RecordAttempt(ctx, row); err != nil {
		s.logger.Printf("audit sink error (ignored): %v", err)
	}
}
