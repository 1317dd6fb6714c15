package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/vaultbeam/vaultbeam/internal/app_events"
	receiverEvents "github.com/vaultbeam/vaultbeam/internal/app_events/receiver"
	"github.com/vaultbeam/vaultbeam/internal/style"
	"github.com/vaultbeam/vaultbeam/pkg/qr"
	"github.com/vaultbeam/vaultbeam/pkg/session"
)

// receiveState defines the different states of the receive UI.
type receiveState int

const (
	creatingRequest receiveState = iota
	showingRequest
	receivingFrames
	awaitingAcceptance
	activating
	receiveComplete
	receiveFailed
)

type receiveModel struct {
	state     receiveState
	spinner   spinner.Model
	progress  progress.Model
	requestQR string
	sas       string
	current   session.ImportProgress
	lastError error
}

// ReceiveKeyMap binds the accept/reject decision once the payload is
// reconstructed and the codes have been compared.
type ReceiveKeyMap struct {
	Accept key.Binding
	Reject key.Binding
}

var DefaultReceiveKeyMap = ReceiveKeyMap{
	Accept: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "accept")),
	Reject: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "reject")),
}

type requestReadyMsg struct {
	qr  string
	err error
}

type importFinishedMsg struct {
	err error
}

func initReceiveModel() receiveModel {
	return receiveModel{
		state:    creatingRequest,
		spinner:  style.NewSpinner(),
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m *Model) initReceive() tea.Cmd {
	commands := m.commands
	createRequest := func() tea.Msg {
		request, err := commands.CreateImportRequest()
		if err != nil {
			return requestReadyMsg{err: err}
		}
		rendered, err := qr.Terminal(request)
		if err != nil {
			return requestReadyMsg{err: err}
		}
		return requestReadyMsg{qr: rendered}
	}
	return tea.Batch(m.receive.spinner.Tick, createRequest, m.listenForAppMessages())
}

func (m Model) updateReceive(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case requestReadyMsg:
		if msg.err != nil {
			m.receive.lastError = msg.err
			m.receive.state = receiveFailed
			return m, nil
		}
		m.receive.requestQR = msg.qr
		m.receive.state = showingRequest
		return m, nil

	case receiverEvents.SASReadyMsg:
		m.receive.sas = msg.Code
		m.receive.state = receivingFrames
		return m, m.listenForAppMessages()

	case receiverEvents.ProgressMsg:
		m.receive.current = msg.Progress
		if msg.Progress.Complete && m.receive.state == receivingFrames {
			m.receive.state = awaitingAcceptance
		}
		return m, m.listenForAppMessages()

	case receiverEvents.ImportCompleteMsg:
		m.receive.state = receiveComplete
		return m, nil

	case importFinishedMsg:
		if msg.err != nil {
			m.receive.lastError = msg.err
			m.receive.state = receiveFailed
		}
		return m, m.listenForAppMessages()

	case appevents.AppErrorMsg:
		m.receive.lastError = msg.Err
		m.receive.state = receiveFailed
		return m, nil

	case tea.KeyMsg:
		if m.receive.state == awaitingAcceptance {
			return m.handleAcceptance(msg)
		}
		return m, nil
	}

	var spinCmd tea.Cmd
	m.receive.spinner, spinCmd = m.receive.spinner.Update(msg)
	return m, spinCmd
}

func (m Model) handleAcceptance(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultReceiveKeyMap.Accept):
		m.receive.state = activating
		commands := m.commands
		ctx := m.ctx
		complete := func() tea.Msg {
			_, err := commands.CompleteQRImport(ctx)
			return importFinishedMsg{err: err}
		}
		return m, tea.Batch(m.receive.spinner.Tick, complete)
	case key.Matches(msg, DefaultReceiveKeyMap.Reject):
		m.commands.CancelQRImport()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) receiveView() string {
	r := m.receive
	switch r.state {
	case creatingRequest:
		return fmt.Sprintf("\n%s Preparing import request...", r.spinner.View())
	case showingRequest:
		return fmt.Sprintf("\n%s\nScan this code with the sending device.\n\n%s Waiting for frames...",
			r.requestQR, r.spinner.View())
	case receivingFrames:
		return fmt.Sprintf("\nVerification code: %s\n\n%s\n%d of ~%d frames",
			style.CodeStyle.Render(r.sas),
			m.receive.progress.ViewAs(r.current.EstimatedPercent/100),
			r.current.FramesReceived, r.current.ExpectedParts)
	case awaitingAcceptance:
		help := fmt.Sprintf("%s/%s  %s/%s",
			DefaultReceiveKeyMap.Accept.Help().Key, DefaultReceiveKeyMap.Accept.Help().Desc,
			DefaultReceiveKeyMap.Reject.Help().Key, DefaultReceiveKeyMap.Reject.Help().Desc)
		return fmt.Sprintf("\nPayload reconstructed.\nVerification code: %s\n\nCompare codes, then decide: %s",
			style.CodeStyle.Render(r.sas), style.HelpStyle.Render(help))
	case activating:
		return fmt.Sprintf("\n%s Activating vault...", r.spinner.View())
	case receiveComplete:
		return "\nVault received and activated."
	case receiveFailed:
		return fmt.Sprintf("\nImport failed: %s", style.ErrorStyle.Render(fmt.Sprint(r.lastError)))
	default:
		return "Internal error: unknown receive state"
	}
}
