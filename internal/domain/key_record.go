// Package domain holds the core data types shared by storage
// implementations and services.
package domain

import "time"

// KeyCategory distinguishes the two vanity pools.
type KeyCategory string

const (
	// CategoryMeme keys carry the shared branded ending.
	CategoryMeme KeyCategory = "meme"
	// CategoryCustom keys carry user-chosen endings.
	CategoryCustom KeyCategory = "custom"
)

// KeyStatus is the lifecycle state of a pool record.
//
// available -> reserved -> used is the happy path; reserved -> available
// on release. Deleted records leave the pool entirely.
type KeyStatus string

const (
	KeyAvailable KeyStatus = "available"
	KeyReserved  KeyStatus = "reserved"
	KeyUsed      KeyStatus = "used"
)

// KeyRecord is one pre-generated vanity keypair in the pool.
type KeyRecord struct {
	ID            int64
	Category      KeyCategory
	SecretKey     []byte // 64-byte ed25519 secret
	PublicAddress string // base58 public key
	Ending        string // case-sensitive address suffix
	Status        KeyStatus
	ReservedAt    *time.Time // set while Status is reserved
	UsedForMint   string     // mint address, set when Status is used
	CreatedAt     time.Time
}

// PoolStats is a per-category count of records in each state.
type PoolStats struct {
	Category  KeyCategory
	Available int64
	Reserved  int64
	Used      int64
}

// EndingCount reports how many custom keys with a given ending remain
// available.
type EndingCount struct {
	Ending    string
	Available int64
}
