package receiver

import (
	appevents "github.com/vaultbeam/vaultbeam/internal/app_events"
	"github.com/vaultbeam/vaultbeam/pkg/session"
)

// RequestReadyMsg carries the encoded import request for QR display.
type RequestReadyMsg struct {
	appevents.UIMessage
	Request string
}

// ProgressMsg updates the UI after each scanned frame.
type ProgressMsg struct {
	appevents.UIMessage
	Progress session.ImportProgress
}

// SASReadyMsg is sent once, when the first valid frame establishes the
// shared secret and the verification code becomes displayable.
type SASReadyMsg struct {
	appevents.UIMessage
	Code string
}

// ImportCompleteMsg delivers the decrypted vault configuration.
type ImportCompleteMsg struct {
	appevents.UIMessage
	ConfigJSON string
}
