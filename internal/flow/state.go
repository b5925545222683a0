package flow

// AuthState is the state of a Controller's authorization state machine.
type AuthState int

const (
	// StateIdle means no authorization was requested yet.
	StateIdle AuthState = iota

	// StatePendingExternalApproval means the user-agent shows the
	// authorization page and the controller waits for the redirect.
	StatePendingExternalApproval

	// StateApproved means an authorization code was received.
	StateApproved

	// StateUnknown means the last attempt was cancelled, interrupted or
	// failed. A new request may be started.
	StateUnknown
)

// String returns the string representation of the auth state.
func (s AuthState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingExternalApproval:
		return "pending_external_approval"
	case StateApproved:
		return "approved"
	case StateUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}
