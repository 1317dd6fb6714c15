package keyexchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// sasLabel domain-separates the SAS derivation from any other use of the
// shared secret.
const sasLabel = "vaultbeam/sas/v1"

// SASDigits is the length of the short authentication string shown to the
// user for visual comparison.
const SASDigits = 6

// ErrEmptySecret is returned when SAS derivation is attempted before a
// shared secret exists.
var ErrEmptySecret = errors.New("shared secret is empty")

// DeriveSAS derives the short authentication string for a session. Both
// devices compute it independently from the shared secret and the session
// id; the code itself never crosses the channel. Two parties holding the
// same secret always see the same code, and a man in the middle holding
// separate secrets with each side sees different codes with overwhelming
// probability.
func DeriveSAS(sharedSecret []byte, sessionID string) (string, error) {
	if len(sharedSecret) == 0 {
		return "", ErrEmptySecret
	}

	mac := hmac.New(sha256.New, sharedSecret)
	mac.Write([]byte(sasLabel))
	mac.Write([]byte(sessionID))
	sum := mac.Sum(nil)

	// Truncate to a 6-digit decimal code, HOTP-style dynamic offset so the
	// code draws on the whole digest.
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", code%1000000), nil
}
