// Package appevents defines the messages the command layer pushes to the
// TUI. Traffic in the other direction is plain method calls on the command
// surface, so only the app-to-UI half needs message types.
package appevents

// AppUIMessage is a marker interface for messages sent from the command
// layer to the TUI. These flow over an explicit channel; the command layer
// never reaches into UI state directly. The unexported method ensures only
// types embedding UIMessage can satisfy it, which keeps the message set
// closed at compile time.
type AppUIMessage interface {
	isUIMessage()
}

// UIMessage is embedded by concrete message types to satisfy AppUIMessage.
type UIMessage struct{}

func (UIMessage) isUIMessage() {}

// AppErrorMsg reports a session failure to the UI. Failures terminate only
// the affected session, never the process.
type AppErrorMsg struct {
	UIMessage
	Err error
}
