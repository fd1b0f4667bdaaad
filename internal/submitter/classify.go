package submitter

import (
	"context"
	"errors"
	"strings"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/solana"
)

// ErrAddressInUse signals that the transaction failed because its new
// account address already exists on-chain. The key that derived the
// address is permanently unusable and must be invalidated, not released.
var ErrAddressInUse = errors.New("account address already in use")

// Class is the retry classification of a submission failure.
type Class string

const (
	// ClassTransient failures are retried with a fresh blockhash.
	ClassTransient Class = "transient"
	// ClassFatal failures are surfaced immediately.
	ClassFatal Class = "fatal"
	// ClassAddressInUse is fatal for this key but recoverable with
	// another one.
	ClassAddressInUse Class = "address_in_use"
)

// transientFragments are matched case-insensitively against the error
// chain. Blockhash staleness and timeouts are the expected failure modes
// of an otherwise valid transaction.
var transientFragments = []string{
	"blockhash",
	"expired",
	"block height exceeded",
	"timeout",
	"rate limited",
	"max retries exceeded",
}

// buildError marks a failure that happened before broadcast, while
// signing or serializing locally. Such failures are deterministic: the
// same inputs fail the same way on every attempt.
type buildError struct {
	err error
}

func (e *buildError) Error() string { return e.err.Error() }

func (e *buildError) Unwrap() error { return e.err }

// Classify buckets a submission error for the retry loop.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	var build *buildError
	if errors.As(err, &build) {
		return ClassFatal
	}
	if errors.Is(err, ErrAddressInUse) {
		return ClassAddressInUse
	}
	if errors.Is(err, solana.ErrTransactionExpired) {
		return ClassTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())

	if isAddressInUse(msg, rpcLogs(err)) {
		return ClassAddressInUse
	}

	// Fatal patterns win over the generic transient match: an on-chain
	// "insufficient funds" mentioning a blockhash must not be retried.
	if strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "insufficient lamports") {
		return ClassFatal
	}

	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return ClassTransient
		}
	}
	return ClassFatal
}

// isAddressInUse detects the create-account collision the ledger reports
// when a mint address already exists: either a literal "already in use"
// or custom program error 0x0 during a Create Account instruction.
func isAddressInUse(msg string, logs []string) bool {
	if strings.Contains(msg, "already in use") {
		return true
	}
	for _, line := range logs {
		if strings.Contains(line, "already in use") {
			return true
		}
	}
	if strings.Contains(msg, "custom program error: 0x0") {
		for _, line := range logs {
			if strings.Contains(line, "Create Account:") {
				return true
			}
		}
	}
	return false
}

// rpcLogs extracts simulation logs when the error chain carries an
// RPC error payload.
func rpcLogs(err error) []string {
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Logs()
	}
	return nil
}
