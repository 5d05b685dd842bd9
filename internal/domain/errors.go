package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCompleted is returned when a gated identity tries to start
	// a new attempt after having viewed the answers.
	ErrAlreadyCompleted = errors.New("answers already viewed, retakes are not allowed")
	// ErrSessionNotFound is returned when an attempt session id is unknown.
	ErrSessionNotFound = errors.New("attempt session not found")
	// ErrQuestionsNotFound indicates the question document could not be loaded.
	ErrQuestionsNotFound = errors.New("question document not found")
	// ErrAttemptNotFound indicates no stored attempt matches the given id.
	ErrAttemptNotFound = errors.New("attempt not found")
)

// ValidationError reports bad identity input. It is recoverable and meant to
// be surfaced inline to the user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError signals a failed credential exchange with the remote table
// service. It never blocks the local flow.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote auth failed: %s (code %d)", e.Msg, e.Code)
}

// TransportError wraps a genuine network fault talking to the remote table
// service, as opposed to an application-level rejection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s transport fault: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
