package solana

import "encoding/json"

// Blockhash is a short-lived value a transaction must carry to be valid.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus is the confirmation state of a submitted transaction.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64
	ConfirmationStatus Commitment
	Err                json.RawMessage // non-null when the transaction failed on-chain
}

// Failed reports whether the transaction executed and failed.
func (s *SignatureStatus) Failed() bool {
	return s != nil && len(s.Err) > 0 && string(s.Err) != "null"
}

// AtLeast reports whether the status has reached the given commitment.
func (s *SignatureStatus) AtLeast(c Commitment) bool {
	if s == nil {
		return false
	}
	rank := map[Commitment]int{
		CommitmentProcessed: 0,
		CommitmentConfirmed: 1,
		CommitmentFinalized: 2,
	}
	return rank[s.ConfirmationStatus] >= rank[c]
}

// AccountInfo represents on-chain account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
