// Package realtime error codes reported back to the originating connection.
package realtime

import "fmt"

// ErrorCode identifies why an inbound operation failed.
type ErrorCode string

const (
	// CodePersistFailed means the persistence collaborator rejected the
	// write; no broadcast happened.
	CodePersistFailed ErrorCode = "persist_failed"
	// CodeNotFound means the referenced message does not exist.
	CodeNotFound ErrorCode = "not_found"
	// CodeInvalidPayload means the event data could not be decoded.
	CodeInvalidPayload ErrorCode = "invalid_payload"
)

// OpError is an operation failure surfaced only to the connection that issued
// the failing event. Other connections never observe it.
type OpError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Is matches errors by code so callers can compare against a bare OpError.
func (e *OpError) Is(target error) bool {
	t, ok := target.(*OpError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newOpError(code ErrorCode, message string, err error) *OpError {
	return &OpError{Code: code, Message: message, Err: err}
}
