package sender

import (
	appevents "github.com/vaultbeam/vaultbeam/internal/app_events"
	"github.com/vaultbeam/vaultbeam/pkg/discovery"
	"github.com/vaultbeam/vaultbeam/pkg/pairing"
	"github.com/vaultbeam/vaultbeam/pkg/session"
)

// ExportStartedMsg carries the session summary once the scanned request
// has been validated and the frame rotation is armed.
type ExportStartedMsg struct {
	appevents.UIMessage
	Info session.ExportInfo
}

// FrameMsg carries the next frame string for the animated QR.
type FrameMsg struct {
	appevents.UIMessage
	Frame string
}

// DevicesUpdatedMsg replaces the UI's discovered device list. The set is
// live; an empty slice means discovery found nothing or was stopped.
type DevicesUpdatedMsg struct {
	appevents.UIMessage
	Devices []discovery.Device
}

// PairingStatusMsg mirrors the pairing state machine for display.
type PairingStatusMsg struct {
	appevents.UIMessage
	Status pairing.Status
}

// TransferCompleteMsg signals that the vault configuration was delivered.
type TransferCompleteMsg struct {
	appevents.UIMessage
}
