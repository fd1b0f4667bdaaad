// Package solana provides the JSON-RPC and WebSocket surface of the
// ledger network that submission and settlement depend on.
package solana

import "context"

// Commitment is the network confirmation-depth setting.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// RPCClient defines the JSON-RPC HTTP interface.
type RPCClient interface {
	// GetLatestBlockhash retrieves the current blockhash and the last
	// block height it is valid for.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*Blockhash, error)

	// SendTransaction broadcasts a signed, base64-encoded transaction
	// and returns its signature.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)

	// GetSignatureStatuses retrieves confirmation status for signatures.
	// Missing signatures yield nil entries.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetBalance retrieves an address balance in lamports.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetAccountInfo retrieves account info. Returns nil if the account
	// does not exist.
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)

	// GetBlockHeight retrieves the current block height.
	GetBlockHeight(ctx context.Context) (uint64, error)
}

// BlockhashSource is the part of RPCClient the submitter's fallback
// path needs.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*Blockhash, error)
}
