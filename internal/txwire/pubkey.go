// Package txwire implements the minimal legacy transaction wire format
// needed to sign and broadcast transfers: pubkeys, keypairs, message
// compilation, and serialization.
package txwire

import (
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLength is the byte length of an ed25519 public key.
const PubkeyLength = 32

// SystemProgramID is the native system program address.
var SystemProgramID = MustParsePubkey("11111111111111111111111111111111")

// Pubkey is a 32-byte ed25519 public key.
type Pubkey [PubkeyLength]byte

// ParsePubkey decodes a base58 address into a Pubkey.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != PubkeyLength {
		return pk, fmt.Errorf("address %q: expected %d bytes, got %d", s, PubkeyLength, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for known-good constants.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 address.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// OnCurve reports whether the key is a valid edwards25519 curve point.
// Wallet addresses must be on-curve; program-derived addresses are not.
func (p Pubkey) OnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// ValidateRecipient parses an address and requires it to be an on-curve
// wallet key. Used to reject malformed payout destinations before any
// network traffic happens.
func ValidateRecipient(address string) (Pubkey, error) {
	pk, err := ParsePubkey(address)
	if err != nil {
		return Pubkey{}, err
	}
	if !pk.OnCurve() {
		return Pubkey{}, fmt.Errorf("address %q is not an on-curve wallet key", address)
	}
	return pk, nil
}

// HasEnding reports whether a base58 address ends with the requested
// vanity suffix. The match is exact, including case.
func HasEnding(address, ending string) bool {
	return ending != "" && strings.HasSuffix(address, ending)
}
