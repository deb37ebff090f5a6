package core

// TaskPhase represents where a task is in its lifecycle
type TaskPhase int

const (
	PhasePending        TaskPhase = iota // Created, not yet started
	PhaseObserving                       // Capturing the screen
	PhaseAnalyzing                       // Classifying the command
	PhaseAuthenticating                  // Inside the login subflow
	PhaseActing                          // Executing a device primitive
	PhaseVerifying                       // Checking the result of an action
	PhaseConfirming                      // Waiting for user assent
	PhaseQuerying                        // Typing a deferred query
	PhaseCompleted                       // Finished successfully
	PhaseFailed                          // Finished with an error
	PhaseCancelled                       // User declined or cancelled
)

// String returns the string representation of TaskPhase
func (p TaskPhase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseObserving:
		return "observing"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseActing:
		return "acting"
	case PhaseVerifying:
		return "verifying"
	case PhaseConfirming:
		return "confirming"
	case PhaseQuerying:
		return "querying"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the phase is a final state
func (p TaskPhase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// MarshalText encodes the phase by name for archived tasks.
func (p TaskPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name. Unknown names decode to PhasePending.
func (p *TaskPhase) UnmarshalText(b []byte) error {
	for candidate := PhasePending; candidate <= PhaseCancelled; candidate++ {
		if candidate.String() == string(b) {
			*p = candidate
			return nil
		}
	}
	*p = PhasePending
	return nil
}

// ErrorCategory classifies the type of error for recovery decisions and reporting
type ErrorCategory int

const (
	ErrCategoryNone           ErrorCategory = iota // No error
	ErrCategoryTransientUI                         // Popup, unloaded screen; recovered locally
	ErrCategoryElement                             // Element or app could not be found
	ErrCategoryCoordinate                          // Coordinate rejected before tapping
	ErrCategoryAuth                                // Login subflow exhausted its budget
	ErrCategoryIterationLimit                      // Task ran past maxIterations
	ErrCategoryAction                              // Device primitive reported failure
	ErrCategoryParse                               // Malformed dump or service response
	ErrCategoryConnection                          // Device connection lost
	ErrCategoryConfig                              // Invalid configuration
	ErrCategoryUnknown                             // Not an ExecutionError
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryTransientUI:
		return "transient_ui"
	case ErrCategoryElement:
		return "element_not_found"
	case ErrCategoryCoordinate:
		return "coordinate"
	case ErrCategoryAuth:
		return "auth"
	case ErrCategoryIterationLimit:
		return "iteration_limit"
	case ErrCategoryAction:
		return "action"
	case ErrCategoryParse:
		return "parse"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// IsRecoverable reports whether errors of this category may be retried
// locally instead of ending the task.
func (c ErrorCategory) IsRecoverable() bool {
	return c == ErrCategoryTransientUI
}
