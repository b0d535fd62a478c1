package protocol

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by transports when a send is attempted while
// disconnected. Telemetry and responses drop it silently.
var ErrNotConnected = &TransportError{Op: "send", Err: errors.New("not connected")}

// NotFoundError reports a queue or job identity that is not known.
type NotFoundError struct {
	Kind string // "queue" or "job"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError reports a malformed request payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// EngineError wraps a failed queue-engine or store operation.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// TransportError wraps a failed transport operation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorType returns the taxonomy name of err for ErrorBody.Type.
func ErrorType(err error) string {
	var nf *NotFoundError
	var ve *ValidationError
	var te *TransportError
	switch {
	case errors.As(err, &nf):
		return "NotFoundError"
	case errors.As(err, &ve):
		return "ValidationError"
	case errors.As(err, &te):
		return "TransportError"
	default:
		return "EngineError"
	}
}

// NewErrorResult builds the Result payload for a failed request.
func NewErrorResult(err error) ErrorResult {
	return ErrorResult{Error: ErrorBody{Type: ErrorType(err), Message: err.Error()}}
}
