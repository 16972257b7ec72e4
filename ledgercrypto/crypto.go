// Package ledgercrypto wraps Ed25519 signing and verification for
// transaction payloads.
package ledgercrypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/ed25519"
)

var errSeedSize = errors.New("ledgercrypto: seed must be 32 bytes")

// PublicKeySize and PrivateKeySize match the Ed25519 spec: a 32-byte
// public key and a 64-byte private key (32-byte seed || 32-byte public key).
const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
)

// PublicKey and PrivateKey are re-exported so callers outside this package
// never need to import golang.org/x/crypto/ed25519 directly.
type (
	PublicKey  = ed25519.PublicKey
	PrivateKey = ed25519.PrivateKey
)

// Generate produces a fresh Ed25519 keypair.
func Generate() (PublicKey, PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// FromSeed deterministically derives a keypair from a 32-byte seed, for
// callers that need a reproducible identity (tests, fixed-id demos).
func FromSeed(seed []byte) (PublicKey, PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, errSeedSize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv, nil
}

// Sign signs msg with priv. Ed25519 signing is deterministic: the same
// (msg, priv) pair always yields the same signature.
func Sign(priv PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid signature of msg under pub.
// Malformed key material or signatures surface as a false return, never
// a panic.
func Verify(pub PublicKey, msg, sig []byte) (ok bool) {
	if len(pub) != PublicKeySize {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return ed25519.Verify(pub, msg, sig)
}
