package txwire

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// Keypair holds an ed25519 signing key and its public address.
type Keypair struct {
	secret ed25519.PrivateKey
	pubkey Pubkey
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return keypairFromPrivate(priv)
}

// KeypairFromSecretKey builds a keypair from a 64-byte secret key
// (seed followed by public key) or a 32-byte seed.
func KeypairFromSecretKey(secret []byte) (*Keypair, error) {
	switch len(secret) {
	case ed25519.PrivateKeySize:
		return keypairFromPrivate(ed25519.PrivateKey(secret))
	case ed25519.SeedSize:
		return keypairFromPrivate(ed25519.NewKeyFromSeed(secret))
	default:
		return nil, fmt.Errorf("secret key: expected %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(secret))
	}
}

// KeypairFromHex builds a keypair from a hex-encoded secret key.
func KeypairFromHex(s string) (*Keypair, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex secret key: %w", err)
	}
	return KeypairFromSecretKey(raw)
}

// KeypairFromBase58 builds a keypair from a base58-encoded secret key.
func KeypairFromBase58(s string) (*Keypair, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 secret key: %w", err)
	}
	return KeypairFromSecretKey(raw)
}

func keypairFromPrivate(priv ed25519.PrivateKey) (*Keypair, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok || len(pub) != PubkeyLength {
		return nil, fmt.Errorf("derive public key")
	}
	var pk Pubkey
	copy(pk[:], pub)
	return &Keypair{secret: priv, pubkey: pk}, nil
}

// Pubkey returns the public key.
func (k *Keypair) Pubkey() Pubkey {
	return k.pubkey
}

// Address returns the base58 public address.
func (k *Keypair) Address() string {
	return k.pubkey.String()
}

// SecretKey returns the 64-byte secret key.
func (k *Keypair) SecretKey() []byte {
	out := make([]byte, len(k.secret))
	copy(out, k.secret)
	return out
}

// Sign signs a message with the secret key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.secret, message)
}
