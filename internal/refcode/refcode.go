// Package refcode derives deterministic referral codes from user ids.
package refcode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// alphabet is the 36-symbol code alphabet. Order matters: changing it
// changes every issued code.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the fixed length of every referral code.
const CodeLength = 6

// Compute derives the referral code for a user id.
// Formula: SHA256(secret_userID_secret), first 12 hex chars parsed as an
// integer, then six base-36 digits taken least-significant first and
// prepended. The same id always yields the same code; the mapping is not
// collision-free across all ids, so callers must keep codes unique at
// the store level.
func Compute(secret string, userID int64) string {
	combined := fmt.Sprintf("%s_%d_%s", secret, userID, secret)
	digest := sha256.Sum256([]byte(combined))

	hexDigest := hex.EncodeToString(digest[:])
	value, err := strconv.ParseUint(hexDigest[:12], 16, 64)
	if err != nil {
		// 12 hex chars always fit in 48 bits; unreachable.
		panic("refcode: parse digest prefix: " + err.Error())
	}

	code := make([]byte, CodeLength)
	for i := CodeLength - 1; i >= 0; i-- {
		code[i] = alphabet[value%36]
		value /= 36
	}
	return string(code)
}
