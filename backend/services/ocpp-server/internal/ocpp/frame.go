package ocpp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"evcharge/backend/services/ocpp-server/internal/ocpp/protocol"
)

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	TypeCall       MessageType = protocol.MessageTypeCall
	TypeCallResult MessageType = protocol.MessageTypeCallResult
	TypeCallError  MessageType = protocol.MessageTypeCallError
)

func (t MessageType) String() string {
	switch t {
	case TypeCall:
		return "Call"
	case TypeCallResult:
		return "CallResult"
	case TypeCallError:
		return "CallError"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

var emptyObject = json.RawMessage(`{}`)

// Frame is a decoded OCPP-J message.
//
//	Call:       [2, uniqueId, action, payload]
//	CallResult: [3, uniqueId, payload]
//	CallError:  [4, uniqueId, errorCode, errorDescription, errorDetails]
type Frame struct {
	Type             MessageType
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// ParseError reports a malformed frame. UniqueID holds the message id when it could
// still be recovered, so the caller can answer with a CALLERROR.
type ParseError struct {
	UniqueID string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.UniqueID == "" {
		return "ocpp: malformed frame: " + e.Reason
	}
	return fmt.Sprintf("ocpp: malformed frame %s: %s", e.UniqueID, e.Reason)
}

// Parse decodes a raw websocket message into a Frame.
func Parse(data []byte) (*Frame, error) {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil {
		return nil, &ParseError{Reason: "not a JSON array"}
	}

	var uniqueID string
	if len(array) >= 2 {
		// best effort, used for error replies
		_ = json.Unmarshal(array[1], &uniqueID)
	}

	if len(array) < 3 {
		return nil, &ParseError{UniqueID: uniqueID, Reason: "too few elements"}
	}

	var msgType int
	if err := json.Unmarshal(array[0], &msgType); err != nil {
		return nil, &ParseError{UniqueID: uniqueID, Reason: "message type is not an integer"}
	}
	if uniqueID == "" {
		return nil, &ParseError{Reason: "unique id must be a non-empty string"}
	}

	frame := &Frame{Type: MessageType(msgType), UniqueID: uniqueID}

	switch frame.Type {
	case TypeCall:
		if len(array) != 4 {
			return nil, &ParseError{UniqueID: uniqueID, Reason: "CALL must have 4 elements"}
		}
		if err := json.Unmarshal(array[2], &frame.Action); err != nil || frame.Action == "" {
			return nil, &ParseError{UniqueID: uniqueID, Reason: "action must be a non-empty string"}
		}
		if !isObject(array[3]) {
			return nil, &ParseError{UniqueID: uniqueID, Reason: "payload must be a JSON object"}
		}
		frame.Payload = array[3]
	case TypeCallResult:
		if len(array) != 3 {
			return nil, &ParseError{UniqueID: uniqueID, Reason: "CALLRESULT must have 3 elements"}
		}
		frame.Payload = array[2]
	case TypeCallError:
		if len(array) < 4 || len(array) > 5 {
			return nil, &ParseError{UniqueID: uniqueID, Reason: "CALLERROR must have 5 elements"}
		}
		if err := json.Unmarshal(array[2], &frame.ErrorCode); err != nil {
			return nil, &ParseError{UniqueID: uniqueID, Reason: "error code must be a string"}
		}
		if err := json.Unmarshal(array[3], &frame.ErrorDescription); err != nil {
			return nil, &ParseError{UniqueID: uniqueID, Reason: "error description must be a string"}
		}
		frame.ErrorDetails = emptyObject
		if len(array) == 5 {
			frame.ErrorDetails = array[4]
		}
	default:
		return nil, &ParseError{UniqueID: uniqueID, Reason: fmt.Sprintf("unsupported message type %d", msgType)}
	}

	return frame, nil
}

// Encode serializes a Frame into its JSON array form.
func Encode(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("ocpp: nil frame")
	}
	var frame []interface{}
	switch f.Type {
	case TypeCall:
		frame = []interface{}{TypeCall, f.UniqueID, f.Action, orEmpty(f.Payload)}
	case TypeCallResult:
		frame = []interface{}{TypeCallResult, f.UniqueID, orEmpty(f.Payload)}
	case TypeCallError:
		frame = []interface{}{TypeCallError, f.UniqueID, f.ErrorCode, f.ErrorDescription, orEmpty(f.ErrorDetails)}
	default:
		return nil, fmt.Errorf("ocpp: cannot encode message type %d", int(f.Type))
	}
	return json.Marshal(frame)
}

// NewCall builds a CALL frame.
func NewCall(uniqueID, action string, payload interface{}) (*Frame, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: TypeCall, UniqueID: uniqueID, Action: action, Payload: body}, nil
}

// NewCallResult builds standard CALLRESULT frame.
func NewCallResult(uniqueID string, payload interface{}) (*Frame, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: TypeCallResult, UniqueID: uniqueID, Payload: body}, nil
}

// NewCallError builds CALLERROR frame from an Error.
func NewCallError(uniqueID string, e *Error) *Frame {
	return &Frame{
		Type:             TypeCallError,
		UniqueID:         uniqueID,
		ErrorCode:        string(e.Code),
		ErrorDescription: e.Description,
		ErrorDetails:     orEmpty(e.Details),
	}
}

// Err converts a CALLERROR frame into an Error.
func (f *Frame) Err() *Error {
	if f.Type != TypeCallError {
		return nil
	}
	return &Error{Code: ErrorCode(f.ErrorCode), Description: f.ErrorDescription, Details: f.ErrorDetails}
}

// Decode convenience helper for handlers.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, err
	}
	return target, nil
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		return orEmpty(v), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp: encode payload: %w", err)
	}
	return body, nil
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return emptyObject
	}
	return raw
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
