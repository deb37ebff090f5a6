package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, coordinate_invalid, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code, so that
// copies made by WithCause/WithMessage still match the predefined errors.
func (e *ExecutionError) Is(target error) bool {
	var t *ExecutionError
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Recoverable UI state: popup, screen still loading
	ErrTransientUI = &ExecutionError{
		Category: ErrCategoryTransientUI,
		Code:     "transient_ui",
		Message:  "screen is not in the expected state",
	}

	// Lookup errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryElement,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrAppNotFound = &ExecutionError{
		Category: ErrCategoryElement,
		Code:     "app_not_found",
		Message:  "no installed app matches that name",
	}
	ErrAppAmbiguous = &ExecutionError{
		Category: ErrCategoryElement,
		Code:     "app_ambiguous",
		Message:  "app name is ambiguous",
	}

	ErrCoordinateInvalid = &ExecutionError{
		Category: ErrCategoryCoordinate,
		Code:     "coordinate_invalid",
		Message:  "coordinate is outside the tappable screen area",
	}

	ErrAuthenticationFailed = &ExecutionError{
		Category: ErrCategoryAuth,
		Code:     "authentication_failed",
		Message:  "authentication failed",
	}

	ErrIterationLimitExceeded = &ExecutionError{
		Category: ErrCategoryIterationLimit,
		Code:     "iteration_limit_exceeded",
		Message:  "task exceeded its iteration limit",
	}

	ErrActionExecutionFailed = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "action_execution_failed",
		Message:  "device action failed",
	}

	ErrParse = &ExecutionError{
		Category: ErrCategoryParse,
		Code:     "parse_error",
		Message:  "could not parse input",
	}

	// Connection errors
	ErrDeviceDisconnected = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "device_disconnected",
		Message:  "device connection lost",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	var e *ExecutionError
	if errors.As(err, &e) {
		return e.Category
	}
	if err != nil {
		return ErrCategoryUnknown
	}
	return ErrCategoryNone
}
