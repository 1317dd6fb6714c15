package pairing

import "errors"

// ErrNetwork wraps discovery, connection, and transfer failures so callers
// can distinguish channel problems from protocol violations.
var ErrNetwork = errors.New("network error")

// ErrNotVerifying is returned when a confirmation arrives outside the
// verifying phase.
var ErrNotVerifying = errors.New("no pairing awaiting confirmation")

// ErrPeerBusy is returned when the remote device is already in a pairing
// exchange.
var ErrPeerBusy = errors.New("peer device is busy")

// handshakeRequest opens a pairing exchange: the sender's ephemeral public
// key plus enough identity to show "who is connecting" on the receiver.
type handshakeRequest struct {
	SessionID       string `json:"session_id"`
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	SenderPublicKey []byte `json:"sender_public_key"`
}

// handshakeResponse carries the receiver's ephemeral public key back. Both
// sides can now derive the shared secret and the verification code.
type handshakeResponse struct {
	DeviceID          string `json:"device_id"`
	DeviceName        string `json:"device_name"`
	ReceiverPublicKey []byte `json:"receiver_public_key"`
}

// confirmationStatus reports whether the receiver's user has confirmed the
// code. The sender polls this before shipping the payload.
type confirmationStatus struct {
	ReceiverConfirmed bool `json:"receiver_confirmed"`
}

// payloadRequest carries the sealed vault configuration, sent exactly once
// after both sides confirmed.
type payloadRequest struct {
	SessionID string `json:"session_id"`
	Sealed    []byte `json:"sealed"`
}
