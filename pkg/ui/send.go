package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/vaultbeam/vaultbeam/internal/app_events"
	"github.com/vaultbeam/vaultbeam/internal/style"
	"github.com/vaultbeam/vaultbeam/internal/util"
	"github.com/vaultbeam/vaultbeam/pkg/qr"
	"github.com/vaultbeam/vaultbeam/pkg/session"
)

// frameInterval is the animation cadence. Fast enough to finish a small
// payload in seconds, slow enough for phone cameras to lock on each code.
const frameInterval = 250 * time.Millisecond

// sendState defines the different states of the send UI.
type sendState int

const (
	startingExport sendState = iota
	animatingFrames
	sendFailed
)

type sendModel struct {
	state      sendState
	spinner    spinner.Model
	info       session.ExportInfo
	frameQR    string
	framesSent int
	lastError  error
}

type exportStartedMsg struct {
	info session.ExportInfo
	err  error
}

type frameTickMsg time.Time

type frameRenderedMsg struct {
	qr  string
	err error
}

func initSendModel() sendModel {
	return sendModel{
		state:   startingExport,
		spinner: style.NewSpinner(),
	}
}

func (m *Model) initSend() tea.Cmd {
	commands := m.commands
	vaultID := m.opts.VaultID
	request := m.opts.Request
	start := func() tea.Msg {
		info, err := commands.StartQRExport(vaultID, request)
		return exportStartedMsg{info: info, err: err}
	}
	return tea.Batch(m.send.spinner.Tick, start)
}

func nextFrameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameTickMsg(t)
	})
}

func (m Model) updateSend(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case exportStartedMsg:
		if msg.err != nil {
			m.send.lastError = msg.err
			m.send.state = sendFailed
			return m, nil
		}
		m.send.info = msg.info
		m.send.state = animatingFrames
		return m, nextFrameTick()

	case frameTickMsg:
		if m.send.state != animatingFrames {
			return m, nil
		}
		commands := m.commands
		render := func() tea.Msg {
			frame, err := commands.GetExportFrame()
			if err != nil {
				return frameRenderedMsg{err: err}
			}
			rendered, err := qr.Terminal(frame)
			if err != nil {
				return frameRenderedMsg{err: err}
			}
			return frameRenderedMsg{qr: rendered}
		}
		return m, render

	case frameRenderedMsg:
		if msg.err != nil {
			m.send.lastError = msg.err
			m.send.state = sendFailed
			return m, nil
		}
		m.send.frameQR = msg.qr
		m.send.framesSent++
		return m, nextFrameTick()

	case appevents.AppErrorMsg:
		m.send.lastError = msg.Err
		m.send.state = sendFailed
		return m, nil
	}

	var spinCmd tea.Cmd
	m.send.spinner, spinCmd = m.send.spinner.Update(msg)
	return m, spinCmd
}

func (m Model) sendView() string {
	s := m.send
	switch s.state {
	case startingExport:
		return fmt.Sprintf("\n%s Validating import request...", s.spinner.View())
	case animatingFrames:
		return fmt.Sprintf("\nVerification code: %s\n\n%s\nSending %s, frame %d (full pass every ~%d frames).\nKeep this visible to the scanning device until it reports completion.",
			style.CodeStyle.Render(s.info.SASCode), s.frameQR,
			util.FormatSize(int64(s.info.PayloadBytes)), s.framesSent, s.info.TotalFrames)
	case sendFailed:
		return fmt.Sprintf("\nExport failed: %s", style.ErrorStyle.Render(fmt.Sprint(s.lastError)))
	default:
		return "Internal error: unknown send state"
	}
}
