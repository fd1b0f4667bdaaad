package submitter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/solana"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

type fakeRPC struct {
	blockhashFunc func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error)
	sendFunc      func(ctx context.Context, txBase64 string) (string, error)
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
	return f.blockhashFunc(ctx, commitment)
}

func (f *fakeRPC) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	return f.sendFunc(ctx, txBase64)
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRPC) GetBalance(ctx context.Context, address string) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeRPC) GetAccountInfo(ctx context.Context, address string) (*solana.AccountInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRPC) GetBlockHeight(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

type fakeConfirmer struct {
	confirmFunc func(ctx context.Context, signature string, lastValidBlockHeight uint64, commitment solana.Commitment) error
}

func (f *fakeConfirmer) ConfirmTransaction(ctx context.Context, signature string, lastValidBlockHeight uint64, commitment solana.Commitment) error {
	if f.confirmFunc == nil {
		return nil
	}
	return f.confirmFunc(ctx, signature, lastValidBlockHeight, commitment)
}

type fakeBlockhashSource struct {
	blockhashFunc func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error)
}

func (f *fakeBlockhashSource) GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
	return f.blockhashFunc(ctx, commitment)
}

type fakeAudit struct {
	rows    []*storage.SubmissionAttempt
	failing bool
}

func (f *fakeAudit) RecordAttempt(ctx context.Context, attempt *storage.SubmissionAttempt) error {
	if f.failing {
		return errors.New("sink unavailable")
	}
	f.rows = append(f.rows, attempt)
	return nil
}

// testBlockhash builds a well-formed 32-byte base58 blockhash from a
// seed byte.
func testBlockhash(seed byte) string {
	return base58.Encode(bytes.Repeat([]byte{seed}, 32))
}

func staticBlockhash(hash string) func(context.Context, solana.Commitment) (*solana.Blockhash, error) {
	return func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
		return &solana.Blockhash{Blockhash: hash, LastValidBlockHeight: 1000}, nil
	}
}

func testInstructions(t *testing.T) ([]txwire.Instruction, []*txwire.Keypair, txwire.Pubkey) {
	t.Helper()
	payer, err := txwire.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	recipient, err := txwire.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	ix := txwire.SystemTransfer(payer.Pubkey(), recipient.Pubkey(), 1_000_000)
	return []txwire.Instruction{ix}, []*txwire.Keypair{payer}, payer.Pubkey()
}

// newTestSubmitter stubs sleep to capture requested delays instead of
// waiting.
func newTestSubmitter(rpc solana.RPCClient, confirmer solana.Confirmer, delays *[]time.Duration, opts ...SubmitterOption) *Submitter {
	s := New(rpc, confirmer, log.New(io.Discard, "", 0), opts...)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return s
}

func TestSubmit_SucceedsFirstAttempt(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	var sent int
	rpc := &fakeRPC{
		blockhashFunc: staticBlockhash(testBlockhash(1)),
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			sent++
			return "Sig1", nil
		},
	}

	s := newTestSubmitter(rpc, &fakeConfirmer{}, nil)
	sig, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{Flow: "payment"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sig != "Sig1" {
		t.Errorf("signature = %s, want Sig1", sig)
	}
	if sent != 1 {
		t.Errorf("sends = %d, want 1", sent)
	}
}

func TestSubmit_RetriesTransientWithFreshBlockhash(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	var fetches int
	rpc := &fakeRPC{
		blockhashFunc: func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
			fetches++
			return &solana.Blockhash{Blockhash: testBlockhash(byte(fetches)), LastValidBlockHeight: 1000}, nil
		},
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			return "Sig1", nil
		},
	}
	var confirms int
	confirmer := &fakeConfirmer{
		confirmFunc: func(ctx context.Context, signature string, lastValidBlockHeight uint64, commitment solana.Commitment) error {
			confirms++
			if confirms < 3 {
				return solana.ErrTransactionExpired
			}
			return nil
		},
	}

	var delays []time.Duration
	s := newTestSubmitter(rpc, confirmer, &delays)
	sig, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{RetryDelay: 2 * time.Second})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sig != "Sig1" {
		t.Errorf("signature = %s, want Sig1", sig)
	}
	if fetches != 3 {
		t.Errorf("blockhash fetches = %d, want 3 (one per attempt)", fetches)
	}
	// Linear backoff: attempt N waits N * RetryDelay.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestSubmit_FatalStopsImmediately(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	var sent int
	rpc := &fakeRPC{
		blockhashFunc: staticBlockhash(testBlockhash(1)),
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			sent++
			return "", errors.New("Transfer: insufficient funds for fee")
		},
	}

	var delays []time.Duration
	s := newTestSubmitter(rpc, &fakeConfirmer{}, &delays)
	_, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if sent != 1 {
		t.Errorf("sends = %d, want 1 (no retries on fatal)", sent)
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none", delays)
	}
}

func TestSubmit_LocalBuildFailureNotRetried(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	// A malformed blockhash makes message compilation fail before any
	// broadcast. The error text mentions "blockhash", but retrying a
	// deterministic local failure only burns the budget.
	var fetches int
	rpc := &fakeRPC{
		blockhashFunc: func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
			fetches++
			return &solana.Blockhash{Blockhash: "not-a-blockhash", LastValidBlockHeight: 1000}, nil
		},
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			t.Error("unsignable transaction reached broadcast")
			return "", errors.New("unreachable")
		},
	}

	var delays []time.Duration
	s := newTestSubmitter(rpc, &fakeConfirmer{}, &delays)
	_, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if class := Classify(err); class != ClassFatal {
		t.Errorf("class = %s, want %s", class, ClassFatal)
	}
	if fetches != 1 {
		t.Errorf("attempts = %d, want 1", fetches)
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none", delays)
	}
}

func TestSubmit_AddressInUseReturnsSentinel(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	rpc := &fakeRPC{
		blockhashFunc: staticBlockhash(testBlockhash(1)),
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			return "", errors.New("Allocate: account already in use")
		},
	}

	s := newTestSubmitter(rpc, &fakeConfirmer{}, nil)
	_, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{Flow: "mint"})
	if !errors.Is(err, ErrAddressInUse) {
		t.Fatalf("error = %v, want ErrAddressInUse", err)
	}
}

func TestSubmit_ExhaustsAttempts(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	var sent int
	rpc := &fakeRPC{
		blockhashFunc: staticBlockhash(testBlockhash(1)),
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			sent++
			return "", errors.New("Blockhash not found")
		},
	}

	s := newTestSubmitter(rpc, &fakeConfirmer{}, nil)
	_, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{MaxAttempts: 2})
	if err == nil {
		t.Fatal("expected error")
	}
	if sent != 2 {
		t.Errorf("sends = %d, want 2", sent)
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("error = %v, want attempt count in message", err)
	}
}

func TestSubmit_FallbackBlockhashSource(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	rpc := &fakeRPC{
		blockhashFunc: func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
			return nil, errors.New("primary down")
		},
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			return "Sig1", nil
		},
	}
	var fallbackUsed bool
	fallback := &fakeBlockhashSource{
		blockhashFunc: func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
			fallbackUsed = true
			return &solana.Blockhash{Blockhash: testBlockhash(9), LastValidBlockHeight: 1000}, nil
		},
	}

	s := newTestSubmitter(rpc, &fakeConfirmer{}, nil, WithFallbackBlockhashSource(fallback))
	sig, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sig != "Sig1" {
		t.Errorf("signature = %s, want Sig1", sig)
	}
	if !fallbackUsed {
		t.Error("fallback source never queried")
	}
}

func TestSubmit_BothBlockhashSourcesFail(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	rpc := &fakeRPC{
		blockhashFunc: func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
			return nil, errors.New("primary down")
		},
	}
	fallback := &fakeBlockhashSource{
		blockhashFunc: func(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
			return nil, errors.New("fallback down")
		},
	}

	s := newTestSubmitter(rpc, &fakeConfirmer{}, nil, WithFallbackBlockhashSource(fallback))
	_, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{MaxAttempts: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "primary down") || !strings.Contains(err.Error(), "fallback down") {
		t.Errorf("error = %v, want both source failures", err)
	}
}

func TestSubmit_AuditRowsRecorded(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	rpc := &fakeRPC{
		blockhashFunc: staticBlockhash(testBlockhash(1)),
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			return "Sig1", nil
		},
	}
	var confirms int
	confirmer := &fakeConfirmer{
		confirmFunc: func(ctx context.Context, signature string, lastValidBlockHeight uint64, commitment solana.Commitment) error {
			confirms++
			if confirms == 1 {
				return solana.ErrTransactionExpired
			}
			return nil
		},
	}
	audit := &fakeAudit{}

	s := newTestSubmitter(rpc, confirmer, nil, WithAudit(audit))
	if _, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{Flow: "mint"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(audit.rows) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(audit.rows))
	}
	first, second := audit.rows[0], audit.rows[1]
	if first.Flow != "mint" || first.Attempt != 1 || first.Outcome != string(ClassTransient) {
		t.Errorf("first row = %+v, want mint/1/transient", first)
	}
	if first.Signature != "Sig1" {
		t.Errorf("first row signature = %s, want Sig1 (in-flight tx recorded)", first.Signature)
	}
	if second.Attempt != 2 || second.Outcome != "confirmed" || second.ErrorClass != "" {
		t.Errorf("second row = %+v, want 2/confirmed", second)
	}
}

func TestSubmit_AuditSinkFailureIgnored(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)

	rpc := &fakeRPC{
		blockhashFunc: staticBlockhash(testBlockhash(1)),
		sendFunc: func(ctx context.Context, txBase64 string) (string, error) {
			return "Sig1", nil
		},
	}

	s := newTestSubmitter(rpc, &fakeConfirmer{}, nil, WithAudit(&fakeAudit{failing: true}))
	sig, err := s.Submit(context.Background(), instructions, signers, feePayer, Options{})
	if err != nil {
		t.Fatalf("Submit failed despite audit-only error: %v", err)
	}
	if sig != "Sig1" {
		t.Errorf("signature = %s, want Sig1", sig)
	}
}

func TestSubmit_RejectsEmptyInput(t *testing.T) {
	instructions, signers, feePayer := testInstructions(t)
	s := newTestSubmitter(&fakeRPC{}, &fakeConfirmer{}, nil)

	if _, err := s.Submit(context.Background(), nil, signers, feePayer, Options{}); err == nil {
		t.Error("expected error for empty instructions")
	}
	if _, err := s.Submit(context.Background(), instructions, nil, feePayer, Options{}); err == nil {
		t.Error("expected error for empty signers")
	}
}
