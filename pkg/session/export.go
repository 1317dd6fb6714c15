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

// ExportInfo is the summary handed to the UI when an export starts.
// PayloadBytes is the size of the sealed payload on the wire, not the
// plaintext configuration.
type ExportInfo struct {
	SessionID    string `json:"session_id"`
	SASCode      string `json:"sas_code"`
	TotalFrames  int    `json:"total_frames"`
	PayloadBytes int    `json:"payload_bytes"`
}

// ExportSession owns the sending side of a QR transfer. It validates the
// scanned import request, encrypts the vault configuration under the
// agreed secret, and emits an unbounded rotation of fountain frames until
// cancelled.
type ExportSession struct {
	mu sync.Mutex

	id        uuid.UUID
	senderKey []byte
	encoder   *fountain.Encoder
	sas       string
	state     State
	logger    *slog.Logger
	keyPair   *keyexchange.KeyPair
}

// StartExport consumes a scanned import request and arms an export session
// for the given vault. It refuses expired requests and malformed receiver
// keys; either failure leaves no usable session behind.
func StartExport(provider vault.Provider, vaultID, requestStr string, logger *slog.Logger) (*ExportSession, error) {
	if logger == nil {
		logger = slog.Default()
	}

	request, err := DecodeImportRequest(requestStr)
	if err != nil {
		return nil, err
	}
	if request.Expired(time.Now()) {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpiredRequest, request.ExpiresAt.Format(time.RFC3339))
	}

	sessionID, err := uuid.Parse(request.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad session id: %v", ErrMalformedRequest, err)
	}

	keyPair, err := keyexchange.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key pair: %w", err)
	}

	secret, err := keyPair.DeriveSharedSecret(request.ReceiverPublicKey)
	if err != nil {
		keyPair.Destroy()
		return nil, err
	}
	defer zero(secret)

	sas, err := keyexchange.DeriveSAS(secret, request.SessionID)
	if err != nil {
		keyPair.Destroy()
		return nil, fmt.Errorf("failed to derive SAS: %w", err)
	}

	cfg, err := provider.ExportConfig(vaultID)
	if err != nil {
		keyPair.Destroy()
		return nil, fmt.Errorf("failed to export vault %q: %w", vaultID, err)
	}
	plaintext, err := cfg.Marshal()
	if err != nil {
		keyPair.Destroy()
		return nil, fmt.Errorf("failed to marshal vault config: %w", err)
	}

	sealed, err := vault.EncryptPayload(secret, request.SessionID, plaintext)
	if err != nil {
		keyPair.Destroy()
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	encoder, err := fountain.NewEncoder(sessionID, sealed, fountain.DefaultBlockSize)
	if err != nil {
		keyPair.Destroy()
		return nil, fmt.Errorf("failed to build encoder: %w", err)
	}

	logger.Info("export session started",
		"session_id", request.SessionID, "vault_id", vaultID, "blocks", encoder.K())

	return &ExportSession{
		id:        sessionID,
		senderKey: keyPair.PublicKey[:],
		encoder:   encoder,
		sas:       sas,
		state:     StateExporting,
		logger:    logger,
		keyPair:   keyPair,
	}, nil
}

// ID returns the session id (taken from the consumed import request, which
// makes the request single-use across sessions).
func (s *ExportSession) ID() string {
	return s.id.String()
}

// Info returns the start summary for the UI.
func (s *ExportSession) Info() ExportInfo {
	return ExportInfo{
		SessionID:    s.id.String(),
		SASCode:      s.sas,
		TotalFrames:  s.encoder.ExpectedParts(),
		PayloadBytes: s.encoder.PayloadLen(),
	}
}

// SAS returns the short authentication string for display.
func (s *ExportSession) SAS() string {
	return s.sas
}

// State returns the current lifecycle state.
func (s *ExportSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextFrame pulls the next symbol and serializes it for the animated QR.
// The caller drives the cadence; calls are cheap and never block beyond a
// few XORs. The sequence does not terminate: the sender animates until the
// receiver reports completion and the user stops the export.
func (s *ExportSession) NextFrame() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return "", fmt.Errorf("%w: %s", ErrSessionTerminal, s.state)
	}

	sym := s.encoder.Next()
	sym.Meta = s.senderKey
	return fountain.EncodeFrame(sym), nil
}

// Complete marks the export finished after the receiver confirmed
// reconstruction out of band.
func (s *ExportSession) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CanTransitionTo(StateComplete) {
		s.state = StateComplete
		s.keyPair.Destroy()
	}
}

// Cancel discards the session's key material. Idempotent.
func (s *ExportSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return
	}
	s.state = StateCancelled
	s.keyPair.Destroy()
	s.logger.Info("export session cancelled", "session_id", s.id)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
