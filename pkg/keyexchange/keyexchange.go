package keyexchange

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the byte length of X25519 public keys, private keys and the
// raw shared secret.
const KeySize = 32

// ErrInvalidPeerKey is returned when a peer's public key is malformed or
// produces a degenerate shared secret.
var ErrInvalidPeerKey = errors.New("invalid peer public key")

// KeyPair is an ephemeral X25519 key pair. A pair belongs to exactly one
// session and must never be persisted or reused.
type KeyPair struct {
	privateKey [KeySize]byte
	PublicKey  [KeySize]byte
}

// GenerateKeyPair creates a fresh ephemeral X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(rand.Reader, kp.privateKey[:]); err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	// Clamp per RFC 7748.
	kp.privateKey[0] &= 248
	kp.privateKey[31] &= 127
	kp.privateKey[31] |= 64

	pub, err := curve25519.X25519(kp.privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	copy(kp.PublicKey[:], pub)

	return kp, nil
}

// DeriveSharedSecret computes the X25519 shared secret between our private
// key and the peer's public key. The peer key must be exactly KeySize bytes
// and must not be a low-order point.
func (kp *KeyPair) DeriveSharedSecret(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPeerKey, KeySize, len(peerPublic))
	}

	secret, err := curve25519.X25519(kp.privateKey[:], peerPublic)
	if err != nil {
		// curve25519 rejects low-order points that would yield an
		// all-zero secret.
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}

	return secret, nil
}

// Destroy zeroes the private key. The pair is unusable afterwards.
func (kp *KeyPair) Destroy() {
	for i := range kp.privateKey {
		kp.privateKey[i] = 0
	}
}
