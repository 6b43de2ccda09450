package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode classifies failures. Device facing codes travel in CALLERROR frames;
// the rest are returned to server side callers.
type ErrorCode string

const (
	ErrorCodeProtocolError      ErrorCode = "ProtocolError"
	ErrorCodeValidationFailed   ErrorCode = "ValidationFailed"
	ErrorCodeNotImplemented     ErrorCode = "NotImplemented"
	ErrorCodeInternalError      ErrorCode = "InternalError"
	ErrorCodeNotConnected       ErrorCode = "NotConnected"
	ErrorCodeTimeout            ErrorCode = "Timeout"
	ErrorCodeDisconnected       ErrorCode = "Disconnected"
	ErrorCodePersistenceFailure ErrorCode = "PersistenceFailure"
)

// Error is a coded OCPP failure. Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code        ErrorCode
	Description string
	Details     json.RawMessage
}

// Sentinels for errors.Is checks.
var (
	ErrNotConnected = &Error{Code: ErrorCodeNotConnected, Description: "station is not connected"}
	ErrTimeout      = &Error{Code: ErrorCodeTimeout, Description: "no response from station before deadline"}
	ErrDisconnected = &Error{Code: ErrorCodeDisconnected, Description: "station disconnected"}
)

// NewError builds an Error with a formatted description.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on code only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// AsError returns err as *Error, wrapping anything else as InternalError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr
	}
	return &Error{Code: ErrorCodeInternalError, Description: err.Error()}
}
