package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vaultbeam/vaultbeam/internal/style"
	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/pairing"
)

// discoverState defines the different states of the discover (network
// sender) UI.
type discoverState int

const (
	browsingDevices discoverState = iota
	connectingToPeer
	verifyingCode
	awaitingPeerConfirmation
	transferInFlight
	discoverComplete
	discoverFailed
)

type discoverModel struct {
	state     discoverState
	spinner   spinner.Model
	table     table.Model
	devices   []discovery.Device
	selected  discovery.Device
	status    pairing.Status
	lastError error
}

var deviceColumns = []table.Column{
	{Title: "Index", Width: 6},
	{Title: "Name", Width: 24},
	{Title: "Address", Width: 18},
	{Title: "Port", Width: 8},
}

type discoverStartedMsg struct {
	err error
}

type devicesMsg []discovery.Device

type initiatedMsg struct {
	err error
}

type confirmSentMsg struct {
	err error
}

func initDiscoverModel() discoverModel {
	t := table.New(
		table.WithColumns(deviceColumns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(0),
	)
	t.SetStyles(style.NewTableStyles())

	return discoverModel{
		state:   browsingDevices,
		spinner: style.NewSpinner(),
		table:   t,
	}
}

func (m *Model) initDiscover() tea.Cmd {
	commands := m.commands
	ctx := m.ctx
	start := func() tea.Msg {
		return discoverStartedMsg{err: commands.StartNetworkDiscovery(ctx)}
	}
	return tea.Batch(m.discover.spinner.Tick, start)
}

func (m *Model) pollDevices() tea.Cmd {
	commands := m.commands
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg {
		return devicesMsg(commands.GetDiscoveredDevices())
	})
}

func (m *Model) pollDiscoverStatus() tea.Cmd {
	commands := m.commands
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg {
		return pairStatusMsg(commands.GetPairingStatus())
	})
}

func (m *Model) updateDeviceTable(devices []discovery.Device) {
	m.discover.devices = devices
	rows := []table.Row{}
	for index, d := range devices {
		rows = append(rows, table.Row{
			strconv.Itoa(index), d.Name, d.IP.String(), strconv.Itoa(d.Port),
		})
	}
	m.discover.table.SetRows(rows)
	m.discover.table.SetHeight(len(rows) + 1)
}

func (m Model) updateDiscover(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case discoverStartedMsg:
		if msg.err != nil {
			m.discover.lastError = msg.err
			m.discover.state = discoverFailed
			return m, nil
		}
		return m, m.pollDevices()

	case devicesMsg:
		if m.discover.state != browsingDevices {
			return m, nil
		}
		m.updateDeviceTable(msg)
		return m, m.pollDevices()

	case initiatedMsg:
		if msg.err != nil {
			m.discover.lastError = msg.err
			m.discover.state = discoverFailed
			return m, nil
		}
		m.discover.state = verifyingCode
		m.discover.status = m.commands.GetPairingStatus()
		return m, nil

	case confirmSentMsg:
		if msg.err != nil {
			m.discover.lastError = msg.err
			m.discover.state = discoverFailed
			return m, nil
		}
		m.discover.state = awaitingPeerConfirmation
		return m, m.pollDiscoverStatus()

	case pairStatusMsg:
		return m.trackTransfer(pairing.Status(msg))

	case tea.KeyMsg:
		return m.handleDiscoverKeys(msg)
	}

	var spinCmd tea.Cmd
	m.discover.spinner, spinCmd = m.discover.spinner.Update(msg)
	return m, spinCmd
}

// trackTransfer follows the pairing state machine after this user
// confirmed, until the payload lands or the session dies.
func (m Model) trackTransfer(status pairing.Status) (tea.Model, tea.Cmd) {
	m.discover.status = status
	switch status.State {
	case pairing.StateTransferring:
		m.discover.state = transferInFlight
		return m, m.pollDiscoverStatus()
	case pairing.StateSuccess:
		m.discover.state = discoverComplete
		return m, nil
	case pairing.StateError:
		m.discover.state = discoverFailed
		m.discover.lastError = fmt.Errorf("%s", status.Error)
		return m, nil
	default:
		return m, m.pollDiscoverStatus()
	}
}

func (m Model) handleDiscoverKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.discover.state {
	case browsingDevices:
		if msg.Type == tea.KeyEnter && len(m.discover.devices) > 0 {
			cursor := m.discover.table.Cursor()
			if cursor < 0 || cursor >= len(m.discover.devices) {
				return m, nil
			}
			m.discover.selected = m.discover.devices[cursor]
			m.discover.state = connectingToPeer

			commands := m.commands
			ctx := m.ctx
			deviceID := m.discover.selected.ID
			vaultID := m.opts.VaultID
			initiate := func() tea.Msg {
				return initiatedMsg{err: commands.InitiatePairing(ctx, deviceID, vaultID)}
			}
			return m, initiate
		}
		var cmd tea.Cmd
		m.discover.table, cmd = m.discover.table.Update(msg)
		return m, cmd

	case verifyingCode:
		switch {
		case key.Matches(msg, DefaultPairKeyMap.Confirm):
			commands := m.commands
			ctx := m.ctx
			confirm := func() tea.Msg {
				return confirmSentMsg{err: commands.ConfirmPairingAsSender(ctx)}
			}
			return m, confirm
		case key.Matches(msg, DefaultPairKeyMap.Reject):
			m.commands.StopPairingMode()
			m.commands.StopNetworkDiscovery()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) discoverView() string {
	d := m.discover
	switch d.state {
	case browsingDevices:
		if len(d.devices) == 0 {
			return fmt.Sprintf("\n%s Browsing the local network for receivers...", d.spinner.View())
		}
		s := fmt.Sprintf("\nFound %d device(s)\n", len(d.devices))
		s += style.BaseStyle.Render(d.table.View()) + "\n"
		s += style.HelpStyle.Render("Arrow keys to navigate, enter to pair.")
		return s
	case connectingToPeer:
		return fmt.Sprintf("\n%s Connecting to %s...", d.spinner.View(),
			style.HighlightFontStyle.Render(d.selected.Name))
	case verifyingCode:
		help := fmt.Sprintf("%s/%s  %s/%s",
			DefaultPairKeyMap.Confirm.Help().Key, DefaultPairKeyMap.Confirm.Help().Desc,
			DefaultPairKeyMap.Reject.Help().Key, DefaultPairKeyMap.Reject.Help().Desc)
		return fmt.Sprintf("\nVerification code: %s\n\nCompare with %s, then: %s",
			style.CodeStyle.Render(d.status.VerificationCode),
			style.HighlightFontStyle.Render(d.selected.Name),
			style.HelpStyle.Render(help))
	case awaitingPeerConfirmation:
		return fmt.Sprintf("\n%s Waiting for %s to confirm...", d.spinner.View(),
			style.HighlightFontStyle.Render(d.selected.Name))
	case transferInFlight:
		return fmt.Sprintf("\n%s Sending vault configuration...", d.spinner.View())
	case discoverComplete:
		return fmt.Sprintf("\nVault sent to %s.", style.HighlightFontStyle.Render(d.selected.Name))
	case discoverFailed:
		return fmt.Sprintf("\nPairing failed: %s", style.ErrorStyle.Render(fmt.Sprint(d.lastError)))
	default:
		return "Internal error: unknown discover state"
	}
}
