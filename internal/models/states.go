package models

// Record lifecycle state codes. Closed and Cancelled are terminal.
const (
	StatePendingValidate    = 0
	StateInPlanning         = 1
	StateInResolution       = 2
	StatePendingAnswer      = 3
	StateClosed             = 4
	StateCancelled          = 5
	StateExternalProcessing = 6
	StateExternalReturned   = 7
)

// OpenStates lists every non-terminal state code.
func OpenStates() []int {
	return []int{
		StatePendingValidate,
		StateInPlanning,
		StateInResolution,
		StatePendingAnswer,
		StateExternalProcessing,
		StateExternalReturned,
	}
}

// ClosedStates lists the terminal state codes.
func ClosedStates() []int {
	return []int{StateClosed, StateCancelled}
}

// IsClosedState reports whether state is terminal.
func IsClosedState(state int) bool {
	return state == StateClosed || state == StateCancelled
}

// StateName returns a short human-readable name for a state code.
func StateName(state int) string {
	switch state {
	case StatePendingValidate:
		return "pending-validate"
	case StateInPlanning:
		return "in-planning"
	case StateInResolution:
		return "in-resolution"
	case StatePendingAnswer:
		return "pending-answer"
	case StateClosed:
		return "closed"
	case StateCancelled:
		return "cancelled"
	case StateExternalProcessing:
		return "external-processing"
	case StateExternalReturned:
		return "external-returned"
	}
	return "unknown"
}

// Response channels through which a citizen receives the answer.
const (
	ChannelEmail  = "email"
	ChannelSMS    = "sms"
	ChannelLetter = "letter"
	ChannelNone   = "none"
)

// Reasignation reason codes.
const (
	ReasonDerivation    = 1 // rule-driven reassignment
	ReasonCoordinator   = 2 // manual reassignment by a coordinator
	ReasonStaleRelease  = 3 // released by the deadline sweep
)

// Comment reason codes.
const (
	CommentReasonAutoClose        = 1
	CommentReasonValidationReject = 2
	CommentReasonReassignment     = 3
	CommentReasonClaim            = 4
	CommentReasonValidation       = 5
)
