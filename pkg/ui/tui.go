// Package ui is the terminal front end. Each mode wraps one flow of the
// command layer; state changes arrive over the command layer's message
// channel, never by the UI reaching into session internals.
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/vaultbeam/vaultbeam/internal/app_events"
	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/pairing"
	"github.com/vaultbeam/vaultbeam/pkg/session"
)

// Mode selects which flow the TUI drives.
type Mode int

const (
	// ModeReceive displays the import request QR and tracks frame ingest.
	ModeReceive Mode = iota
	// ModeSend animates fountain frames for a scanned import request.
	ModeSend
	// ModePair puts the device in network receiver mode.
	ModePair
	// ModeDiscover browses for receivers and initiates network pairing.
	ModeDiscover
)

// Controller is the slice of the command layer the TUI needs. Satisfied by
// *app.Commands; narrowed here so models are testable with a fake.
type Controller interface {
	UIMessages() <-chan appevents.AppUIMessage

	CreateImportRequest() (string, error)
	GetImportProgress() (session.ImportProgress, error)
	CompleteQRImport(ctx context.Context) (string, error)
	CancelQRImport()

	StartQRExport(vaultID, request string) (session.ExportInfo, error)
	GetExportFrame() (string, error)
	CancelQRExport()

	StartPairingMode(ctx context.Context) error
	StopPairingMode()
	ConfirmPairing() error
	ConfirmPairingAsSender(ctx context.Context) error
	GetPairingStatus() pairing.Status
	GetReceivedVaultConfig() string

	StartNetworkDiscovery(ctx context.Context) error
	StopNetworkDiscovery()
	GetDiscoveredDevices() []discovery.Device
	InitiatePairing(ctx context.Context, deviceID, vaultID string) error
}

// Options carries the flow inputs taken from the command line.
type Options struct {
	// VaultID names the vault to send (ModeSend, ModeDiscover).
	VaultID string
	// Request is the scanned import request string (ModeSend).
	Request string
}

// Model is the top-level bubbletea model dispatching to the mode models.
type Model struct {
	mode     Mode
	commands Controller
	ctx      context.Context
	opts     Options

	receive  receiveModel
	send     sendModel
	pair     pairModel
	discover discoverModel
}

// NewModel builds the model for one flow.
func NewModel(ctx context.Context, mode Mode, commands Controller, opts Options) Model {
	m := Model{
		mode:     mode,
		commands: commands,
		ctx:      ctx,
		opts:     opts,
	}
	switch mode {
	case ModeReceive:
		m.receive = initReceiveModel()
	case ModeSend:
		m.send = initSendModel()
	case ModePair:
		m.pair = initPairModel()
	case ModeDiscover:
		m.discover = initDiscoverModel()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	switch m.mode {
	case ModeReceive:
		return m.initReceive()
	case ModeSend:
		return m.initSend()
	case ModePair:
		return m.initPair()
	case ModeDiscover:
		return m.initDiscover()
	default:
		return nil
	}
}

// listenForAppMessages relays one message from the command layer into the
// bubbletea loop; handlers re-issue it to keep the stream flowing.
func (m *Model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		return <-m.commands.UIMessages()
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyCtrlC {
		m.teardown()
		return m, tea.Quit
	}

	switch m.mode {
	case ModeReceive:
		return m.updateReceive(msg)
	case ModeSend:
		return m.updateSend(msg)
	case ModePair:
		return m.updatePair(msg)
	case ModeDiscover:
		return m.updateDiscover(msg)
	}
	return m, nil
}

func (m Model) View() string {
	var s string
	switch m.mode {
	case ModeReceive:
		s = m.receiveView()
	case ModeSend:
		s = m.sendView()
	case ModePair:
		s = m.pairView()
	case ModeDiscover:
		s = m.discoverView()
	}
	return s + "\nPress ctrl+c to quit\n"
}

// teardown cancels whatever session this mode owns before quitting.
func (m *Model) teardown() {
	switch m.mode {
	case ModeReceive:
		m.commands.CancelQRImport()
	case ModeSend:
		m.commands.CancelQRExport()
	case ModePair:
		m.commands.StopPairingMode()
	case ModeDiscover:
		m.commands.StopNetworkDiscovery()
		m.commands.StopPairingMode()
	}
}
