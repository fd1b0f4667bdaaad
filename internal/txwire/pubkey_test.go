package txwire

import (
	"strings"
	"testing"
)

func TestParsePubkey(t *testing.T) {
	kp := mustGenerate(t)
	addr := kp.Address()

	pk, err := ParsePubkey(addr)
	if err != nil {
		t.Fatalf("ParsePubkey failed: %v", err)
	}
	if pk != kp.Pubkey() {
		t.Error("parsed pubkey != original")
	}
	if pk.String() != addr {
		t.Errorf("String() = %s, want %s", pk.String(), addr)
	}

	if _, err := ParsePubkey("not-base58-0OIl"); err == nil {
		t.Error("expected error for invalid base58")
	}
	if _, err := ParsePubkey("abc"); err == nil {
		t.Error("expected error for short address")
	}
}

func TestValidateRecipient(t *testing.T) {
	kp := mustGenerate(t)

	pk, err := ValidateRecipient(kp.Address())
	if err != nil {
		t.Fatalf("ValidateRecipient failed: %v", err)
	}
	if !pk.OnCurve() {
		t.Error("generated wallet key must be on-curve")
	}

	// Mutate the key until it falls off the curve; roughly half of all
	// 32-byte strings do.
	raw := kp.Pubkey()
	var offCurve *Pubkey
	for i := 0; i < 256; i++ {
		candidate := raw
		candidate[31] = byte(i)
		if !candidate.OnCurve() {
			offCurve = &candidate
			break
		}
	}
	if offCurve == nil {
		t.Fatal("could not derive an off-curve address")
	}
	if _, err := ValidateRecipient(offCurve.String()); err == nil {
		t.Error("expected error for off-curve address")
	}
}

func TestHasEnding(t *testing.T) {
	cases := []struct {
		address string
		ending  string
		want    bool
	}{
		{"So11111111111111111111111111111111111111ABCD", "ABCD", true},
		{"So11111111111111111111111111111111111111ABCD", "abcd", false},
		{"So11111111111111111111111111111111111111ABCD", "XYZ", false},
		{"So11111111111111111111111111111111111111ABCD", "", false},
		{"ABCD", "ABCD", true},
	}
	for _, tc := range cases {
		if got := HasEnding(tc.address, tc.ending); got != tc.want {
			t.Errorf("HasEnding(%s, %q) = %v, want %v", tc.address, tc.ending, got, tc.want)
		}
	}
}

func TestKeypairRoundtrips(t *testing.T) {
	kp := mustGenerate(t)
	secret := kp.SecretKey()
	if len(secret) != 64 {
		t.Fatalf("secret key length = %d, want 64", len(secret))
	}

	from64, err := KeypairFromSecretKey(secret)
	if err != nil {
		t.Fatalf("KeypairFromSecretKey(64) failed: %v", err)
	}
	if from64.Address() != kp.Address() {
		t.Error("64-byte roundtrip changed the address")
	}

	fromSeed, err := KeypairFromSecretKey(secret[:32])
	if err != nil {
		t.Fatalf("KeypairFromSecretKey(32) failed: %v", err)
	}
	if fromSeed.Address() != kp.Address() {
		t.Error("seed roundtrip changed the address")
	}

	if _, err := KeypairFromSecretKey(secret[:10]); err == nil {
		t.Error("expected error for bad secret length")
	}
}

func TestKeypairFromEncodings(t *testing.T) {
	kp := mustGenerate(t)
	secret := kp.SecretKey()

	hexEncoded := make([]byte, 0, 128)
	for _, b := range secret {
		hexEncoded = append(hexEncoded, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&0x0f])
	}
	fromHex, err := KeypairFromHex(string(hexEncoded))
	if err != nil {
		t.Fatalf("KeypairFromHex failed: %v", err)
	}
	if fromHex.Address() != kp.Address() {
		t.Error("hex roundtrip changed the address")
	}

	if _, err := KeypairFromHex("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := KeypairFromBase58(strings.Repeat("0", 10)); err == nil {
		t.Error("expected error for invalid base58")
	}
}
