package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no active session backs the operation.
	// Recoverable by re-login; never fatal to the process.
	ErrUnauthenticated = errors.New("flow: not authenticated")

	// ErrStaleOperation means the input addressed a flow kind or step that
	// no longer matches the live state, e.g. an old button pressed after a
	// new flow started.
	ErrStaleOperation = errors.New("flow: stale operation")
)

// InvalidInputError rejects a step input. The flow state stays unchanged and
// the reason is re-prompted to the user.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return "flow: invalid input: " + e.Reason }

// Code satisfies the router's error-code derivation.
func (e *InvalidInputError) Code() string { return "INVALID_INPUT" }

// Invalidf builds an InvalidInputError with a formatted user-facing reason.
func Invalidf(format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}

// CollaboratorError wraps a failed external call (payment API, notification
// service). The engine terminates the flow cleanly and surfaces Message.
type CollaboratorError struct {
	Message string
	Err     error
}

func (e *CollaboratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flow: collaborator: %s: %v", e.Message, e.Err)
	}
	return "flow: collaborator: " + e.Message
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// UserMessage returns the text shown to the user.
func (e *CollaboratorError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "The operation could not be completed"
}
