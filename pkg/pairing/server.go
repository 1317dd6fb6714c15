package pairing

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/keyexchange"
	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

// newServer builds the receiver-side pairing API.
func (s *Service) newServer() *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/pair/handshake", s.handleHandshake).Methods(http.MethodPost)
	r.HandleFunc("/v1/pair/confirm", s.handleConfirm).Methods(http.MethodPost)
	r.HandleFunc("/v1/pair/confirmation", s.handleConfirmation).Methods(http.MethodGet)
	r.HandleFunc("/v1/pair/payload", s.handlePayload).Methods(http.MethodPost)

	return &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintln(w, "OK")
}

// handleHandshake accepts exactly one inbound pairing while listening.
// First connector wins; anyone else gets 409 until the session resets.
func (s *Service) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var req handshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || len(req.SenderPublicKey) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	keyPair, err := keyexchange.GenerateKeyPair()
	if err != nil {
		s.logger.Error("handshake key generation failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	secret, err := keyPair.DeriveSharedSecret(req.SenderPublicKey)
	if err != nil {
		keyPair.Destroy()
		s.logger.Warn("rejecting handshake with unusable sender key", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	sas, err := keyexchange.DeriveSAS(secret, req.SessionID)
	if err != nil {
		keyPair.Destroy()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	peer := &discovery.Device{
		ID:   req.DeviceID,
		Name: req.DeviceName,
	}
	if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
		peer.IP = net.ParseIP(host)
	}

	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		keyPair.Destroy()
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}
	s.state = StateVerifying
	s.sessionID = req.SessionID
	s.keyPair = keyPair
	s.secret = secret
	s.verification = sas
	s.connected = peer
	s.localConfirmed = false
	s.remoteConfirmed = false
	s.mu.Unlock()

	s.logger.Info("inbound pairing handshake", "session_id", req.SessionID, "peer", req.DeviceName)

	writeJSON(w, handshakeResponse{
		DeviceID:          s.deviceID,
		DeviceName:        s.deviceName,
		ReceiverPublicKey: keyPair.PublicKey[:],
	})
}

// handleConfirm records the sender's confirmation and tells it whether our
// user has confirmed yet.
func (s *Service) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if req.SessionID != s.sessionID || (s.state != StateVerifying && s.state != StateTransferring) {
		s.mu.Unlock()
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}
	s.remoteConfirmed = true
	if s.localConfirmed && s.state == StateVerifying {
		s.state = StateTransferring
	}
	confirmed := s.localConfirmed
	s.mu.Unlock()

	writeJSON(w, confirmationStatus{ReceiverConfirmed: confirmed})
}

func (s *Service) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	s.mu.Lock()
	if sessionID != s.sessionID {
		s.mu.Unlock()
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	confirmed := s.localConfirmed
	if s.remoteConfirmed && confirmed && s.state == StateVerifying {
		s.state = StateTransferring
	}
	s.mu.Unlock()

	writeJSON(w, confirmationStatus{ReceiverConfirmed: confirmed})
}

// handlePayload accepts the sealed configuration exactly once, and only
// after both sides confirmed the verification code.
func (s *Service) handlePayload(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if req.SessionID != s.sessionID || s.state != StateTransferring || !s.localConfirmed || !s.remoteConfirmed {
		s.mu.Unlock()
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}
	// StopPairingMode zeroes s.secret in place, so the bytes must be
	// copied out while the lock is held.
	secret := make([]byte, len(s.secret))
	copy(secret, s.secret)
	sessionID := s.sessionID
	s.mu.Unlock()
	defer zeroBytes(secret)

	plaintext, err := vault.DecryptPayload(secret, sessionID, req.Sealed)
	if err != nil {
		s.setError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if _, err := vault.ParseConfig(plaintext); err != nil {
		s.setError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.receivedConfig = plaintext
	s.state = StateSuccess
	s.teardownKeysLocked()
	s.mu.Unlock()

	s.logger.Info("vault configuration received", "session_id", sessionID)
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
