package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vaultbeam/vaultbeam/internal/style"
	"github.com/vaultbeam/vaultbeam/pkg/pairing"
)

// statusPollInterval is how often the TUI refreshes the pairing snapshot.
const statusPollInterval = 300 * time.Millisecond

type pairModel struct {
	state     pairing.Status
	spinner   spinner.Model
	confirmed bool
	lastError error
}

// PairKeyMap binds the verification decision.
type PairKeyMap struct {
	Confirm key.Binding
	Reject  key.Binding
}

var DefaultPairKeyMap = PairKeyMap{
	Confirm: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "codes match")),
	Reject:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "abort")),
}

type pairStartedMsg struct {
	err error
}

type pairStatusMsg pairing.Status

func initPairModel() pairModel {
	return pairModel{spinner: style.NewSpinner()}
}

func (m *Model) initPair() tea.Cmd {
	commands := m.commands
	ctx := m.ctx
	start := func() tea.Msg {
		return pairStartedMsg{err: commands.StartPairingMode(ctx)}
	}
	return tea.Batch(m.pair.spinner.Tick, start)
}

func (m *Model) pollPairingStatus() tea.Cmd {
	commands := m.commands
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg {
		return pairStatusMsg(commands.GetPairingStatus())
	})
}

func (m Model) updatePair(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pairStartedMsg:
		if msg.err != nil {
			m.pair.lastError = msg.err
			return m, nil
		}
		return m, m.pollPairingStatus()

	case pairStatusMsg:
		m.pair.state = pairing.Status(msg)
		switch m.pair.state.State {
		case pairing.StateSuccess, pairing.StateError, pairing.StateIdle:
			return m, nil
		}
		return m, m.pollPairingStatus()

	case tea.KeyMsg:
		if m.pair.state.State == pairing.StateVerifying && !m.pair.confirmed {
			return m.handlePairDecision(msg)
		}
		return m, nil
	}

	var spinCmd tea.Cmd
	m.pair.spinner, spinCmd = m.pair.spinner.Update(msg)
	return m, spinCmd
}

func (m Model) handlePairDecision(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultPairKeyMap.Confirm):
		if err := m.commands.ConfirmPairing(); err != nil {
			m.pair.lastError = err
			return m, nil
		}
		m.pair.confirmed = true
		return m, nil
	case key.Matches(msg, DefaultPairKeyMap.Reject):
		m.commands.StopPairingMode()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) pairView() string {
	p := m.pair
	if p.lastError != nil {
		return fmt.Sprintf("\nPairing failed: %s", style.ErrorStyle.Render(p.lastError.Error()))
	}

	switch p.state.State {
	case pairing.StateIdle:
		return fmt.Sprintf("\n%s Starting pairing mode...", p.spinner.View())
	case pairing.StateListening:
		return fmt.Sprintf("\n%s Announced on the local network. Waiting for a device to connect...", p.spinner.View())
	case pairing.StateVerifying:
		peer := "peer device"
		if p.state.ConnectedDevice != nil {
			peer = p.state.ConnectedDevice.Name
		}
		if p.confirmed {
			return fmt.Sprintf("\nVerification code: %s\n\n%s Waiting for %s to confirm...",
				style.CodeStyle.Render(p.state.VerificationCode), p.spinner.View(),
				style.HighlightFontStyle.Render(peer))
		}
		help := fmt.Sprintf("%s/%s  %s/%s",
			DefaultPairKeyMap.Confirm.Help().Key, DefaultPairKeyMap.Confirm.Help().Desc,
			DefaultPairKeyMap.Reject.Help().Key, DefaultPairKeyMap.Reject.Help().Desc)
		return fmt.Sprintf("\n%s is connecting.\nVerification code: %s\n\nCompare with the other screen: %s",
			style.HighlightFontStyle.Render(peer),
			style.CodeStyle.Render(p.state.VerificationCode),
			style.HelpStyle.Render(help))
	case pairing.StateTransferring:
		return fmt.Sprintf("\n%s Receiving vault configuration...", p.spinner.View())
	case pairing.StateSuccess:
		return "\nVault configuration received."
	case pairing.StateError:
		return fmt.Sprintf("\nPairing failed: %s", style.ErrorStyle.Render(p.state.Error))
	default:
		return "Internal error: unknown pairing state"
	}
}
