package pairing

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/keyexchange"
	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

// confirmationPollInterval is how often the sender re-checks whether the
// receiver's user confirmed the code. The wait is unbounded: a pairing
// stays in verifying until the user on the other side acts or someone
// cancels.
const confirmationPollInterval = 500 * time.Millisecond

// Service runs one device's side of network pairing. A device is either
// the receiver (announced, listening) or the sender (discovering,
// initiating), never both at once. All state is guarded by one mutex;
// network waits happen outside it.
type Service struct {
	deviceID   string
	deviceName string
	port       int
	adapter    discovery.Adapter
	provider   vault.Provider
	logger     *slog.Logger

	mu           sync.Mutex
	state        State
	verification string
	connected    *discovery.Device
	lastErr      error
	devices      []discovery.Device

	listener     net.Listener
	stopListen   context.CancelFunc
	stopDiscover context.CancelFunc
	stopPoll     context.CancelFunc

	sessionID       string
	keyPair         *keyexchange.KeyPair
	secret          []byte
	localConfirmed  bool
	remoteConfirmed bool
	receivedConfig  []byte

	client  *Client
	vaultID string
}

// NewService creates an idle pairing service for this device.
func NewService(deviceID, deviceName string, port int, adapter discovery.Adapter, provider vault.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deviceID:   deviceID,
		deviceName: deviceName,
		port:       port,
		adapter:    adapter,
		provider:   provider,
		logger:     logger,
		state:      StateIdle,
	}
}

// StartPairingMode makes this device the receiver: it opens the pairing
// API listener and announces itself on the local network. Any prior
// pairing activity is discarded first.
func (s *Service) StartPairingMode(ctx context.Context) error {
	s.mu.Lock()
	s.resetLocked()

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.port)))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: failed to open listener: %v", ErrNetwork, err)
	}
	s.listener = ln

	listenCtx, cancel := context.WithCancel(ctx)
	s.stopListen = cancel
	s.state = StateListening
	s.mu.Unlock()

	server := s.newServer()
	g, gctx := errgroup.WithContext(listenCtx)
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && gctx.Err() == nil {
			return fmt.Errorf("%w: pairing server: %v", ErrNetwork, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	})
	g.Go(func() error {
		if err := s.adapter.Announce(gctx, discovery.Announcement{
			DeviceID:   s.deviceID,
			DeviceName: s.deviceName,
			Port:       s.Port(),
		}); err != nil && gctx.Err() == nil {
			return fmt.Errorf("%w: announce: %v", ErrNetwork, err)
		}
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil && listenCtx.Err() == nil {
			s.setError(err)
		}
	}()

	s.logger.Info("pairing mode started", "device_id", s.deviceID, "port", s.Port())
	return nil
}

// Port returns the actual listening port, which differs from the
// configured one when it was 0.
func (s *Service) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// StopPairingMode stops listening and announcing and returns to idle. The
// received configuration, if any, survives until the next start.
func (s *Service) StopPairingMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSessionLocked()
	s.state = StateIdle
	s.logger.Info("pairing mode stopped", "device_id", s.deviceID)
}

// StartDiscovery makes this device the sender: it browses the local
// network for receivers. The discovered set is live and replaceable.
func (s *Service) StartDiscovery(ctx context.Context) error {
	s.mu.Lock()
	s.resetLocked()

	discoverCtx, cancel := context.WithCancel(ctx)
	s.stopDiscover = cancel
	s.state = StateDiscovering
	s.mu.Unlock()

	results := s.adapter.Browse(discoverCtx)
	go func() {
		for result := range results {
			if result.Error != nil {
				s.setError(fmt.Errorf("%w: browse: %v", ErrNetwork, result.Error))
				return
			}
			s.mu.Lock()
			s.devices = result.Devices
			s.mu.Unlock()
		}
	}()

	s.logger.Info("network discovery started", "device_id", s.deviceID)
	return nil
}

// StopDiscovery halts browsing and prunes all discovered entries.
func (s *Service) StopDiscovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopDiscover != nil {
		s.stopDiscover()
		s.stopDiscover = nil
	}
	s.devices = nil
	if s.state == StateDiscovering {
		s.state = StateIdle
	}
}

// Devices returns a snapshot of the currently visible peers.
func (s *Service) Devices() []discovery.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]discovery.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// InitiatePairing connects to a discovered device and runs the key
// agreement. On success the state is verifying and both users must compare
// codes before anything moves.
func (s *Service) InitiatePairing(ctx context.Context, deviceID, vaultID string) error {
	s.mu.Lock()
	if !s.state.CanTransitionTo(StateConnecting) {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot initiate pairing from state %s", state)
	}

	var peer *discovery.Device
	for i := range s.devices {
		if s.devices[i].ID == deviceID {
			peer = &s.devices[i]
			break
		}
	}
	if peer == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: device %q not in discovery results", ErrNetwork, deviceID)
	}

	keyPair, err := keyexchange.GenerateKeyPair()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	sessionID := uuid.New().String()
	client := NewClient(s.deviceID, *peer)
	peerCopy := *peer

	s.state = StateConnecting
	s.sessionID = sessionID
	s.keyPair = keyPair
	s.client = client
	s.vaultID = vaultID
	s.connected = &peerCopy
	s.mu.Unlock()

	resp, err := client.Handshake(ctx, handshakeRequest{
		SessionID:       sessionID,
		DeviceID:        s.deviceID,
		DeviceName:      s.deviceName,
		SenderPublicKey: keyPair.PublicKey[:],
	})
	if err != nil {
		s.setError(err)
		return err
	}

	secret, err := keyPair.DeriveSharedSecret(resp.ReceiverPublicKey)
	if err != nil {
		s.setError(err)
		return err
	}
	sas, err := keyexchange.DeriveSAS(secret, sessionID)
	if err != nil {
		s.setError(err)
		return err
	}

	s.mu.Lock()
	s.secret = secret
	s.verification = sas
	s.connected.Name = resp.DeviceName
	s.connected.ID = resp.DeviceID
	s.state = StateVerifying
	s.mu.Unlock()

	s.logger.Info("pairing handshake complete", "session_id", sessionID, "peer", resp.DeviceName)
	return nil
}

// ConfirmPairing records this (receiving) user's confirmation that the
// codes match. The payload is accepted only after the sender confirmed
// too.
func (s *Service) ConfirmPairing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateVerifying && s.state != StateTransferring {
		return ErrNotVerifying
	}
	s.localConfirmed = true
	if s.remoteConfirmed && s.state == StateVerifying {
		s.state = StateTransferring
	}
	return nil
}

// ConfirmPairingAsSender records this (sending) user's confirmation and,
// once the receiver has confirmed as well, ships the payload. If the
// receiver has not confirmed yet the service keeps polling until it does
// or the pairing is stopped; no payload moves before double confirmation.
func (s *Service) ConfirmPairingAsSender(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateVerifying {
		s.mu.Unlock()
		return ErrNotVerifying
	}
	s.localConfirmed = true
	client := s.client
	sessionID := s.sessionID
	s.mu.Unlock()

	status, err := client.Confirm(ctx, sessionID)
	if err != nil {
		s.setError(err)
		return err
	}

	if status.ReceiverConfirmed {
		return s.sendPayload(ctx)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stopPoll = cancel
	s.mu.Unlock()

	go s.awaitReceiverConfirmation(pollCtx, client, sessionID)
	return nil
}

// awaitReceiverConfirmation polls until the receiver confirms, then sends
// the payload. It gives up only on cancellation or a network failure.
func (s *Service) awaitReceiverConfirmation(ctx context.Context, client *Client, sessionID string) {
	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := client.ConfirmationStatus(ctx, sessionID)
			if err != nil {
				if ctx.Err() == nil {
					s.setError(err)
				}
				return
			}
			if status.ReceiverConfirmed {
				if err := s.sendPayload(ctx); err != nil {
					s.logger.Error("payload send failed", "error", err)
				}
				return
			}
		}
	}
}

// sendPayload encrypts this device's vault configuration under the session
// secret and delivers it in a single message.
func (s *Service) sendPayload(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.CanTransitionTo(StateTransferring) && s.state != StateTransferring {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot transfer from state %s", state)
	}
	s.state = StateTransferring
	client := s.client
	sessionID := s.sessionID
	vaultID := s.vaultID
	// StopPairingMode zeroes s.secret in place, so the bytes must be
	// copied out while the lock is held.
	secret := make([]byte, len(s.secret))
	copy(secret, s.secret)
	s.mu.Unlock()
	defer zeroBytes(secret)

	cfg, err := s.provider.ExportConfig(vaultID)
	if err != nil {
		err = fmt.Errorf("failed to export vault %q: %w", vaultID, err)
		s.setError(err)
		return err
	}
	plaintext, err := cfg.Marshal()
	if err != nil {
		s.setError(err)
		return err
	}
	sealed, err := vault.EncryptPayload(secret, sessionID, plaintext)
	if err != nil {
		s.setError(err)
		return err
	}

	if err := client.SendPayload(ctx, payloadRequest{SessionID: sessionID, Sealed: sealed}); err != nil {
		s.setError(err)
		return err
	}

	s.mu.Lock()
	s.state = StateSuccess
	s.teardownKeysLocked()
	s.mu.Unlock()

	s.logger.Info("vault configuration sent", "session_id", sessionID, "vault_id", vaultID)
	return nil
}

// Status returns a snapshot for the UI.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:            s.state,
		VerificationCode: s.verification,
	}
	if s.connected != nil {
		device := *s.connected
		status.ConnectedDevice = &device
	}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	return status
}

// ReceivedVaultConfig returns the decrypted configuration received in this
// pairing, or nil if none arrived.
func (s *Service) ReceivedVaultConfig() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receivedConfig == nil {
		return nil
	}
	out := make([]byte, len(s.receivedConfig))
	copy(out, s.receivedConfig)
	return out
}

// setError moves the session to the error state, keeping the cause for
// Status. Failures terminate only the pairing, never the process.
func (s *Service) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransitionTo(StateError) {
		return
	}
	s.state = StateError
	s.lastErr = err
	s.teardownKeysLocked()
	s.logger.Error("pairing failed", "error", err)
}

// stopSessionLocked cancels all background work and discards session
// material. Caller holds the mutex.
func (s *Service) stopSessionLocked() {
	if s.stopListen != nil {
		s.stopListen()
		s.stopListen = nil
	}
	if s.stopDiscover != nil {
		s.stopDiscover()
		s.stopDiscover = nil
	}
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	s.listener = nil
	s.devices = nil
	s.connected = nil
	s.client = nil
	s.verification = ""
	s.sessionID = ""
	s.vaultID = ""
	s.localConfirmed = false
	s.remoteConfirmed = false
	s.lastErr = nil
	s.teardownKeysLocked()
}

// resetLocked is stopSessionLocked plus clearing any previously received
// configuration; used when a fresh session starts.
func (s *Service) resetLocked() {
	s.stopSessionLocked()
	s.receivedConfig = nil
}

func (s *Service) teardownKeysLocked() {
	if s.keyPair != nil {
		s.keyPair.Destroy()
		s.keyPair = nil
	}
	zeroBytes(s.secret)
	s.secret = nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
