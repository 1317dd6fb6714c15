// Package style centralizes the lipgloss styles shared by the TUI models.
package style

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

var (
	// BaseStyle frames block content such as tables and QR codes.
	BaseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	// HelpStyle renders keybinding hints.
	HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	// ErrorStyle renders failure text.
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	// HighlightFontStyle emphasizes device and vault names.
	HighlightFontStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)

	// CodeStyle renders the verification code both users compare. Large
	// padding keeps it visually separate from surrounding chrome.
	CodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true).
			Padding(0, 2).
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("42"))
)

// NewSpinner returns the spinner used across all waiting states.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return s
}

// NewTableStyles returns the shared device table styling.
func NewTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	return s
}
