// Package app is the command layer between the UI and the protocol
// packages. It owns the per-role session registry and the pairing service,
// and pushes state changes to the UI over an explicit message channel
// instead of ambient events.
package app

import (
	"context"
	"log/slog"
	"time"

	appevents "github.com/vaultbeam/vaultbeam/internal/app_events"
	receiverEvents "github.com/vaultbeam/vaultbeam/internal/app_events/receiver"
	senderEvents "github.com/vaultbeam/vaultbeam/internal/app_events/sender"
	"github.com/vaultbeam/vaultbeam/pkg/concurrency"
	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/pairing"
	"github.com/vaultbeam/vaultbeam/pkg/session"
	"github.com/vaultbeam/vaultbeam/pkg/vault"
)

const uiMessageBuffer = 16

// Commands is the request/response surface consumed by the UI layer. One
// instance exists per process; it serializes nothing itself, the
// underlying registry and service are already concurrency-safe.
type Commands struct {
	registry  *session.Registry
	pairing   *pairing.Service
	provider  vault.Provider
	activator *vault.Activator
	guard     *concurrency.Guard
	logger    *slog.Logger
	ui        chan appevents.AppUIMessage
}

// NewCommands wires the command surface. The activator may be nil when the
// host has no local vault runtime (pure transfer tool); completed imports
// then just return the configuration without activating it.
func NewCommands(registry *session.Registry, pairingSvc *pairing.Service, provider vault.Provider, activator *vault.Activator, logger *slog.Logger) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{
		registry:  registry,
		pairing:   pairingSvc,
		provider:  provider,
		activator: activator,
		guard:     concurrency.NewGuard(),
		logger:    logger,
		ui:        make(chan appevents.AppUIMessage, uiMessageBuffer),
	}
}

// UIMessages returns the channel the UI drains for state updates.
func (c *Commands) UIMessages() <-chan appevents.AppUIMessage {
	return c.ui
}

// notify pushes a message without ever blocking a command on a slow UI. A
// full buffer drops the oldest kind of traffic this carries, periodic
// snapshots, which the next command re-emits anyway.
func (c *Commands) notify(msg appevents.AppUIMessage) {
	select {
	case c.ui <- msg:
	default:
		c.logger.Debug("ui message dropped, buffer full")
	}
}

// --- QR import (receiving device) ---

// CreateImportRequest starts a fresh import session and returns the
// encoded request for QR display. Any prior import session is discarded.
func (c *Commands) CreateImportRequest() (string, error) {
	s, err := c.registry.CreateImport(session.DefaultRequestTTL)
	if err != nil {
		return "", err
	}
	encoded, err := s.Request().Encode()
	if err != nil {
		c.registry.CancelImport()
		return "", err
	}
	c.notify(receiverEvents.RequestReadyMsg{Request: encoded})
	return encoded, nil
}

// SubmitImportFrame feeds one scanned string into the active import
// session and returns the updated progress.
func (c *Commands) SubmitImportFrame(frame string) (session.ImportProgress, error) {
	s, err := c.registry.Import()
	if err != nil {
		return session.ImportProgress{}, err
	}

	before := s.Progress()
	progress, err := s.SubmitFrame(frame)
	if err != nil {
		c.notify(appevents.AppErrorMsg{Err: err})
		return progress, err
	}

	if before.SASCode == "" && progress.SASCode != "" {
		c.notify(receiverEvents.SASReadyMsg{Code: progress.SASCode})
	}
	c.notify(receiverEvents.ProgressMsg{Progress: progress})
	return progress, nil
}

// GetImportProgress returns the current counters without mutating state.
func (c *Commands) GetImportProgress() (session.ImportProgress, error) {
	s, err := c.registry.Import()
	if err != nil {
		return session.ImportProgress{}, err
	}
	return s.Progress(), nil
}

// CompleteQRImport releases the decrypted vault configuration and, when an
// activator is wired, runs the three-step local activation. Single-flight:
// a second call while activation runs gets concurrency.ErrBusy.
func (c *Commands) CompleteQRImport(ctx context.Context) (string, error) {
	var configJSON string
	err := c.guard.Execute(func() error {
		s, err := c.registry.Import()
		if err != nil {
			return err
		}
		plaintext, err := s.Complete()
		if err != nil {
			return err
		}

		if c.activator != nil {
			cfg, err := vault.ParseConfig(plaintext)
			if err != nil {
				c.notify(appevents.AppErrorMsg{Err: err})
				return err
			}
			if err := c.activator.Activate(ctx, cfg); err != nil {
				c.notify(appevents.AppErrorMsg{Err: err})
				return err
			}
		}

		configJSON = string(plaintext)
		return nil
	})
	if err != nil {
		return "", err
	}

	c.notify(receiverEvents.ImportCompleteMsg{ConfigJSON: configJSON})
	return configJSON, nil
}

// CancelQRImport discards the active import session. Idempotent.
func (c *Commands) CancelQRImport() {
	c.registry.CancelImport()
}

// --- QR export (sending device) ---

// StartQRExport validates the scanned import request and arms the frame
// rotation for the given vault. Any prior export session is discarded.
func (c *Commands) StartQRExport(vaultID, request string) (session.ExportInfo, error) {
	s, err := c.registry.StartExport(c.provider, vaultID, request)
	if err != nil {
		return session.ExportInfo{}, err
	}
	info := s.Info()
	c.notify(senderEvents.ExportStartedMsg{Info: info})
	return info, nil
}

// GetExportFrame returns the next frame string for the animated QR.
func (c *Commands) GetExportFrame() (string, error) {
	s, err := c.registry.Export()
	if err != nil {
		return "", err
	}
	frame, err := s.NextFrame()
	if err != nil {
		return "", err
	}
	c.notify(senderEvents.FrameMsg{Frame: frame})
	return frame, nil
}

// GetExportSAS returns the verification code for display next to the QR.
func (c *Commands) GetExportSAS() (string, error) {
	s, err := c.registry.Export()
	if err != nil {
		return "", err
	}
	return s.SAS(), nil
}

// CancelQRExport discards the active export session. Idempotent.
func (c *Commands) CancelQRExport() {
	c.registry.CancelExport()
}

// --- Network pairing ---

// StartPairingMode puts this device in the receiver role: announced on the
// local network, listening for one inbound pairing.
func (c *Commands) StartPairingMode(ctx context.Context) error {
	if err := c.pairing.StartPairingMode(ctx); err != nil {
		c.notify(appevents.AppErrorMsg{Err: err})
		return err
	}
	c.notify(senderEvents.PairingStatusMsg{Status: c.pairing.Status()})
	return nil
}

// StopPairingMode returns the device to idle.
func (c *Commands) StopPairingMode() {
	c.pairing.StopPairingMode()
	c.notify(senderEvents.PairingStatusMsg{Status: c.pairing.Status()})
}

// ConfirmPairing records the receiving user's code confirmation.
func (c *Commands) ConfirmPairing() error {
	if err := c.pairing.ConfirmPairing(); err != nil {
		return err
	}
	c.notify(senderEvents.PairingStatusMsg{Status: c.pairing.Status()})
	return nil
}

// ConfirmPairingAsSender records the sending user's code confirmation and
// ships the payload once the receiver has confirmed too.
func (c *Commands) ConfirmPairingAsSender(ctx context.Context) error {
	if err := c.pairing.ConfirmPairingAsSender(ctx); err != nil {
		return err
	}
	c.notify(senderEvents.PairingStatusMsg{Status: c.pairing.Status()})
	return nil
}

// GetPairingStatus returns a snapshot of the pairing state machine.
func (c *Commands) GetPairingStatus() pairing.Status {
	return c.pairing.Status()
}

// GetReceivedVaultConfig returns the configuration received over network
// pairing, or the empty string when none arrived.
func (c *Commands) GetReceivedVaultConfig() string {
	return string(c.pairing.ReceivedVaultConfig())
}

// StartNetworkDiscovery puts this device in the sender role, browsing the
// local network for receivers.
func (c *Commands) StartNetworkDiscovery(ctx context.Context) error {
	if err := c.pairing.StartDiscovery(ctx); err != nil {
		c.notify(appevents.AppErrorMsg{Err: err})
		return err
	}
	return nil
}

// StopNetworkDiscovery halts browsing and prunes the discovered set.
func (c *Commands) StopNetworkDiscovery() {
	c.pairing.StopDiscovery()
	c.notify(senderEvents.DevicesUpdatedMsg{Devices: nil})
}

// GetDiscoveredDevices returns the current device snapshot.
func (c *Commands) GetDiscoveredDevices() []discovery.Device {
	devices := c.pairing.Devices()
	c.notify(senderEvents.DevicesUpdatedMsg{Devices: devices})
	return devices
}

// InitiatePairing connects to a discovered device and runs the key
// agreement; on success both sides show the verification code.
func (c *Commands) InitiatePairing(ctx context.Context, deviceID, vaultID string) error {
	if err := c.pairing.InitiatePairing(ctx, deviceID, vaultID); err != nil {
		c.notify(appevents.AppErrorMsg{Err: err})
		return err
	}
	c.notify(senderEvents.PairingStatusMsg{Status: c.pairing.Status()})
	return nil
}

// WatchTransfer polls the pairing state until it leaves the given state or
// the context ends, pushing snapshots to the UI. Used by the TUI while a
// confirmation or transfer is pending on the other device.
func (c *Commands) WatchTransfer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := c.pairing.Status().State
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := c.pairing.Status()
			if status.State != last {
				last = status.State
				c.notify(senderEvents.PairingStatusMsg{Status: status})
				if status.State == pairing.StateSuccess {
					c.notify(senderEvents.TransferCompleteMsg{})
					return
				}
				if status.State == pairing.StateError || status.State == pairing.StateIdle {
					return
				}
			}
		}
	}
}
