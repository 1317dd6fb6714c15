package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// payloadInfo domain-separates the payload key from other derivations off
// the same shared secret (the SAS uses its own label).
const payloadInfo = "vaultbeam/payload/v1"

// ErrIntegrityCheckFailed is returned when a reassembled payload fails to
// authenticate. This is fatal for the session: a tampered or corrupted
// stream must never surface as plaintext.
var ErrIntegrityCheckFailed = errors.New("payload integrity check failed")

// deriveKey expands the raw shared secret into the payload encryption key.
// The session id salts the derivation so a secret can never be replayed
// across sessions.
func deriveKey(sharedSecret []byte, sessionID string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, sharedSecret, []byte(sessionID), []byte(payloadInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive payload key: %w", err)
	}
	return key, nil
}

// EncryptPayload seals plaintext under the session's shared secret with
// XChaCha20-Poly1305. The random nonce is prepended; the session id is
// bound as associated data. The Poly1305 tag is the integrity check that
// gates decode completion on the receiving side.
func EncryptPayload(sharedSecret []byte, sessionID string, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(sharedSecret, sessionID)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, []byte(sessionID)), nil
}

// DecryptPayload opens a sealed payload. Any authentication failure is
// reported as ErrIntegrityCheckFailed.
func DecryptPayload(sharedSecret []byte, sessionID string, sealed []byte) ([]byte, error) {
	key, err := deriveKey(sharedSecret, sessionID)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: payload too short", ErrIntegrityCheckFailed)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(sessionID))
	if err != nil {
		return nil, ErrIntegrityCheckFailed
	}

	return plaintext, nil
}
