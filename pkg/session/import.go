package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultbeam/vaultbeam/pkg/fountain"
	"github.com/vaultbeam/vaultbeam/pkg/keyexchange"
	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

// ImportProgress is the receiver-side progress snapshot. Complete is the
// authoritative flag; EstimatedPercent is a heuristic for UI display only.
type ImportProgress struct {
	Complete         bool    `json:"complete"`
	SASCode          string  `json:"sas_code,omitempty"`
	FramesReceived   int     `json:"frames_received"`
	EstimatedPercent float64 `json:"estimated_percent"`
	ExpectedParts    int     `json:"expected_parts"`
}

// ImportSession owns the receiving side of a QR transfer: it issues the
// import request, ingests scanned frames, and releases the decrypted vault
// configuration once the stream authenticates.
//
// SubmitFrame and Progress are safe to call concurrently with each other
// and with Cancel; every call does a bounded amount of work so the
// scanning loop never stalls.
type ImportSession struct {
	mu sync.Mutex

	id      uuid.UUID
	request *ImportRequest
	keyPair *keyexchange.KeyPair
	decoder *fountain.Decoder
	logger  *slog.Logger

	state        State
	sharedSecret []byte
	sas          string
	plaintext    []byte
}

// NewImportSession generates a fresh ephemeral keypair and session id and
// returns the session in awaiting_frames, ready to hand out its request.
func NewImportSession(ttl time.Duration, logger *slog.Logger) (*ImportSession, error) {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	keyPair, err := keyexchange.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key pair: %w", err)
	}

	id := uuid.New()
	s := &ImportSession{
		id:      id,
		keyPair: keyPair,
		decoder: fountain.NewDecoder(id),
		logger:  logger,
		state:   StateAwaitingFrames,
		request: &ImportRequest{
			Version:           RequestVersion,
			Type:              RequestType,
			SessionID:         id.String(),
			ExpiresAt:         time.Now().Add(ttl).UTC(),
			ReceiverPublicKey: keyPair.PublicKey[:],
		},
	}

	return s, nil
}

// ID returns the session id.
func (s *ImportSession) ID() string {
	return s.id.String()
}

// Request returns the immutable import request for rendering.
func (s *ImportSession) Request() *ImportRequest {
	return s.request
}

// State returns the current lifecycle state.
func (s *ImportSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubmitFrame ingests one scanned string. Camera noise (unparseable
// content, frames from foreign sessions) is dropped silently and scanning
// continues; only terminal-state submission and integrity failure surface
// as errors.
func (s *ImportSession) SubmitFrame(frame string) (ImportProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return s.progressLocked(), fmt.Errorf("%w: %s", ErrSessionTerminal, s.state)
	}
	if s.plaintext != nil {
		// Payload already reconstructed and authenticated; extra frames
		// from the still-animating sender are expected and ignored.
		return s.progressLocked(), nil
	}

	sym, err := fountain.DecodeFrame(frame)
	if err != nil {
		s.logger.Debug("dropping unparseable frame", "error", err)
		return s.progressLocked(), nil
	}
	if sym.SessionID != s.id {
		s.logger.Debug("dropping frame from foreign session", "session_id", sym.SessionID)
		return s.progressLocked(), nil
	}

	if s.sharedSecret == nil {
		if err := s.bootstrapLocked(sym); err != nil {
			s.state = StateError
			return s.progressLocked(), err
		}
	}

	_, complete, err := s.decoder.Ingest(sym)
	if err != nil {
		// Inconsistent symbols are channel noise, not a protocol error.
		s.logger.Debug("dropping inconsistent symbol", "index", sym.Index, "error", err)
		return s.progressLocked(), nil
	}

	if complete {
		payload, err := s.decoder.Payload()
		if err != nil {
			s.state = StateError
			return s.progressLocked(), fmt.Errorf("failed to assemble payload: %w", err)
		}
		plaintext, err := vault.DecryptPayload(s.sharedSecret, s.id.String(), payload)
		if err != nil {
			s.state = StateError
			s.logger.Error("payload failed to authenticate", "session_id", s.id)
			return s.progressLocked(), err
		}
		s.plaintext = plaintext
	}

	return s.progressLocked(), nil
}

// bootstrapLocked runs the key agreement off the first valid frame: the
// sender's ephemeral public key rides in every frame's metadata.
func (s *ImportSession) bootstrapLocked(sym *fountain.Symbol) error {
	secret, err := s.keyPair.DeriveSharedSecret(sym.Meta)
	if err != nil {
		return fmt.Errorf("sender key in frame is unusable: %w", err)
	}
	sas, err := keyexchange.DeriveSAS(secret, s.id.String())
	if err != nil {
		return fmt.Errorf("failed to derive SAS: %w", err)
	}

	s.sharedSecret = secret
	s.sas = sas
	if s.state == StateAwaitingFrames {
		s.state = StateDecoding
	}
	s.logger.Info("import handshake established", "session_id", s.id, "expected_parts", sym.K)
	return nil
}

// Progress returns the current counters. Safe at any time, including
// before the first frame (all-zero snapshot).
func (s *ImportSession) Progress() ImportProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *ImportSession) progressLocked() ImportProgress {
	p := ImportProgress{
		Complete:       s.plaintext != nil,
		SASCode:        s.sas,
		FramesReceived: s.decoder.UniqueSymbols(),
		ExpectedParts:  s.decoder.ExpectedParts(),
	}
	if p.ExpectedParts > 0 {
		p.EstimatedPercent = float64(p.FramesReceived) / float64(p.ExpectedParts) * 100.0
		if p.EstimatedPercent > 100 {
			p.EstimatedPercent = 100
		}
	}
	return p
}

// Complete releases the decrypted vault configuration and moves the
// session to its terminal state. Further SubmitFrame calls are rejected.
func (s *ImportSession) Complete() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, s.state)
	}
	if s.plaintext == nil {
		return nil, ErrNotComplete
	}

	s.state = StateComplete
	plaintext := s.plaintext
	s.teardownKeysLocked()
	return plaintext, nil
}

// Cancel tears down key material and partial decode state. Idempotent and
// safe concurrently with SubmitFrame; cancelling a completed session is a
// no-op.
func (s *ImportSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return
	}
	s.state = StateCancelled
	s.plaintext = nil
	s.decoder.Reset()
	s.teardownKeysLocked()
	s.logger.Info("import session cancelled", "session_id", s.id)
}

func (s *ImportSession) teardownKeysLocked() {
	s.keyPair.Destroy()
	for i := range s.sharedSecret {
		s.sharedSecret[i] = 0
	}
	s.sharedSecret = nil
}
