package solana

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransactionExpired is returned when the chain advances past the
// transaction's last valid block height without confirming it. The
// transaction can never land; resubmitting with a fresh blockhash is safe.
var ErrTransactionExpired = errors.New("transaction expired: block height exceeded")

// Confirmer waits for a broadcast transaction to reach a commitment level.
type Confirmer interface {
	// ConfirmTransaction blocks until the signature reaches the
	// commitment, the blockhash expires (ErrTransactionExpired), the
	// transaction fails on-chain, or ctx is done.
	ConfirmTransaction(ctx context.Context, signature string, lastValidBlockHeight uint64, commitment Commitment) error
}

// PollingConfirmer confirms by polling getSignatureStatuses.
type PollingConfirmer struct {
	rpc      RPCClient
	interval time.Duration
}

// NewPollingConfirmer creates a confirmer polling at the given interval.
func NewPollingConfirmer(rpc RPCClient, interval time.Duration) *PollingConfirmer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollingConfirmer{rpc: rpc, interval: interval}
}

// Verify interface compliance at compile time.
var _ Confirmer = (*PollingConfirmer)(nil)

// ConfirmTransaction polls until the signature is confirmed or expired.
func (c *PollingConfirmer) ConfirmTransaction(ctx context.Context, signature string, lastValidBlockHeight uint64, commitment Commitment) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) > 0 {
			status := statuses[0]
			if status.Failed() {
				return fmt.Errorf("transaction %s failed on-chain: %s", signature, string(status.Err))
			}
			if status.AtLeast(commitment) {
				return nil
			}
		}

		// A signature that has not landed may still land until the
		// blockhash's height window closes.
		if lastValidBlockHeight > 0 {
			height, heightErr := c.rpc.GetBlockHeight(ctx)
			if heightErr == nil && height > lastValidBlockHeight {
				return ErrTransactionExpired
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
