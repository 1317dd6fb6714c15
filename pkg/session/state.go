package session

// State is the lifecycle state shared by both transfer roles. Import
// sessions move created → awaiting_frames → decoding → complete; export
// sessions move created → exporting → complete. Cancelled and error are
// reachable from any non-terminal state.
type State int

const (
	// StateCreated is the initial state before the session is armed.
	StateCreated State = iota
	// StateAwaitingFrames means the import request is issued and no valid
	// frame has arrived yet.
	StateAwaitingFrames
	// StateDecoding means at least one valid frame has been ingested.
	StateDecoding
	// StateExporting means the export session is emitting frames.
	StateExporting
	// StateComplete is the successful terminal state.
	StateComplete
	// StateCancelled is the user-initiated terminal state.
	StateCancelled
	// StateError is the failure terminal state.
	StateError
)

// String returns the wire/log name of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingFrames:
		return "awaiting_frames"
	case StateDecoding:
		return "decoding"
	case StateExporting:
		return "exporting"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is final. A terminal session
// accepts no further frames or commands.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateCancelled || s == StateError
}

// CanTransitionTo checks whether a transition is legal.
func (s State) CanTransitionTo(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateCancelled || next == StateError {
		return true
	}

	switch s {
	case StateCreated:
		return next == StateAwaitingFrames || next == StateExporting
	case StateAwaitingFrames:
		return next == StateDecoding
	case StateDecoding:
		return next == StateComplete
	case StateExporting:
		return next == StateComplete
	default:
		return false
	}
}
