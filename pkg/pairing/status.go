// Package pairing implements local-network vault transfer: the same key
// agreement and SAS verification as the QR flow, but over mDNS discovery
// and a direct HTTP connection instead of camera-scanned frames. Because
// this channel is bidirectional, payload transfer is gated on an explicit
// confirmation from BOTH devices' users.
package pairing

import (
	"github.com/vaultbeam/vaultbeam/pkg/discovery"
)

// State is the pairing lifecycle state. Exactly one exists per device at a
// time.
type State int

const (
	// StateIdle means no pairing activity.
	StateIdle State = iota
	// StateListening means this device is announced and accepting a peer.
	StateListening
	// StateDiscovering means this device is browsing for peers.
	StateDiscovering
	// StateConnecting means an outbound handshake is in flight.
	StateConnecting
	// StateVerifying means the shared secret exists and both users must
	// compare the verification code.
	StateVerifying
	// StateTransferring means both sides confirmed and the payload is
	// moving.
	StateTransferring
	// StateSuccess means the vault configuration arrived (or was sent).
	StateSuccess
	// StateError means the session failed; see Status.Error.
	StateError
)

// String returns the wire/log name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateVerifying:
		return "verifying"
	case StateTransferring:
		return "transferring"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CanTransitionTo checks whether a transition is legal. Stopping always
// returns to idle; any active state may fail into error.
func (s State) CanTransitionTo(next State) bool {
	if next == StateIdle {
		return true
	}
	if next == StateError {
		return s != StateIdle && s != StateSuccess
	}

	switch s {
	case StateIdle:
		return next == StateListening || next == StateDiscovering
	case StateListening:
		return next == StateVerifying
	case StateDiscovering:
		return next == StateConnecting
	case StateConnecting:
		return next == StateVerifying
	case StateVerifying:
		return next == StateTransferring
	case StateTransferring:
		return next == StateSuccess
	default:
		return false
	}
}

// Status is a point-in-time snapshot of the pairing session, safe to hand
// to the UI.
type Status struct {
	State            State             `json:"state"`
	VerificationCode string            `json:"verification_code,omitempty"`
	ConnectedDevice  *discovery.Device `json:"connected_device,omitempty"`
	Error            string            `json:"error,omitempty"`
}
