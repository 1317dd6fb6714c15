package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RequestVersion is the current import request format version.
const RequestVersion = 1

// RequestType tags the request document so scanners can tell it apart from
// fountain frames and unrelated QR content.
const RequestType = "vaultbeam/import-request"

// DefaultRequestTTL bounds how long a displayed import request stays
// valid. Expiry is enforced by the exporter at start time; there is no
// background sweep.
const DefaultRequestTTL = 5 * time.Minute

// ImportRequest is the document a receiving device renders as a single
// static QR code (or deep link). It is created once per import session,
// immutable, and consumed by exactly one export session.
type ImportRequest struct {
	Version           int       `json:"version"`
	Type              string    `json:"type"`
	SessionID         string    `json:"session_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	ReceiverPublicKey []byte    `json:"receiver_public_key"`
}

// Expired reports whether the request's validity window has passed.
func (r *ImportRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Encode serializes the request to its transport string: base64url over
// the JSON document.
func (r *ImportRequest) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal import request: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeImportRequest parses a scanned or deep-linked request string. Both
// the base64url transport form and raw JSON are accepted.
func DecodeImportRequest(s string) (*ImportRequest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedRequest)
	}

	data := []byte(s)
	if !strings.HasPrefix(s, "{") {
		decoded, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		data = decoded
	}

	var r ImportRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if r.Version != RequestVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedRequest, r.Version)
	}
	if r.Type != RequestType {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrMalformedRequest, r.Type)
	}
	if r.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformedRequest)
	}
	if len(r.ReceiverPublicKey) == 0 {
		return nil, fmt.Errorf("%w: missing receiver public key", ErrMalformedRequest)
	}

	return &r, nil
}
