// Package ocppwire implements the OCPP JSON-RPC-over-WebSocket envelope shape: the
// [2,id,action,payload] / [3,id,payload] / [4,id,code,desc,details] array framing shared
// by OCPP 1.6-J and 2.0.1 (component B). It owns only the envelope, never action-specific
// schemas — those live in internal/ocpp16 and internal/ocpp201.
package ocppwire

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators, the leading integer of every OCPP frame.
const (
	TypeCall       = 2
	TypeCallResult = 3
	TypeCallError  = 4
)

// Call is an outbound or inbound CALL frame: [2, id, action, payload].
type Call struct {
	ID      string
	Action  string
	Payload json.RawMessage
}

// CallResult is a CALLRESULT frame: [3, id, payload].
type CallResult struct {
	ID      string
	Payload json.RawMessage
}

// CallError is a CALLERROR frame: [4, id, code, description, details].
type CallError struct {
	ID          string
	Code        string
	Description string
	Details     json.RawMessage
}

// Frame is the result of decoding a raw OCPP text message: exactly one of the three
// pointers is non-nil.
type Frame struct {
	Call       *Call
	CallResult *CallResult
	CallError  *CallError
}

// Decode parses a raw OCPP JSON-RPC array frame.
func Decode(raw string) (Frame, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return Frame{}, fmt.Errorf("ocppwire: invalid frame: %w", err)
	}
	if len(arr) < 3 {
		return Frame{}, fmt.Errorf("ocppwire: frame too short: %d elements", len(arr))
	}

	var msgType int
	if err := json.Unmarshal(arr[0], &msgType); err != nil {
		return Frame{}, fmt.Errorf("ocppwire: invalid message type: %w", err)
	}

	var id string
	if err := json.Unmarshal(arr[1], &id); err != nil {
		return Frame{}, fmt.Errorf("ocppwire: invalid message id: %w", err)
	}

	switch msgType {
	case TypeCall:
		if len(arr) < 4 {
			return Frame{}, fmt.Errorf("ocppwire: CALL frame missing payload")
		}
		var action string
		if err := json.Unmarshal(arr[2], &action); err != nil {
			return Frame{}, fmt.Errorf("ocppwire: invalid action: %w", err)
		}
		return Frame{Call: &Call{ID: id, Action: action, Payload: arr[3]}}, nil

	case TypeCallResult:
		return Frame{CallResult: &CallResult{ID: id, Payload: arr[2]}}, nil

	case TypeCallError:
		if len(arr) < 4 {
			return Frame{}, fmt.Errorf("ocppwire: CALLERROR frame missing code/description")
		}
		var code, desc string
		if err := json.Unmarshal(arr[2], &code); err != nil {
			return Frame{}, fmt.Errorf("ocppwire: invalid error code: %w", err)
		}
		if err := json.Unmarshal(arr[3], &desc); err != nil {
			return Frame{}, fmt.Errorf("ocppwire: invalid error description: %w", err)
		}
		var details json.RawMessage
		if len(arr) >= 5 {
			details = arr[4]
		}
		return Frame{CallError: &CallError{ID: id, Code: code, Description: desc, Details: details}}, nil

	default:
		return Frame{}, fmt.Errorf("ocppwire: unknown message type %d", msgType)
	}
}

// EncodeCall serializes an outbound CALL frame.
func EncodeCall(id, action string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ocppwire: marshal call payload: %w", err)
	}
	frame := []any{TypeCall, id, action, json.RawMessage(body)}
	b, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("ocppwire: marshal call frame: %w", err)
	}
	return string(b), nil
}

// EncodeCallResult serializes a CALLRESULT frame.
func EncodeCallResult(id string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ocppwire: marshal result payload: %w", err)
	}
	frame := []any{TypeCallResult, id, json.RawMessage(body)}
	b, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("ocppwire: marshal result frame: %w", err)
	}
	return string(b), nil
}

// EncodeCallError serializes a CALLERROR frame.
func EncodeCallError(id, code, description string, details any) (string, error) {
	if details == nil {
		details = map[string]string{}
	}
	frame := []any{TypeCallError, id, code, description, details}
	b, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("ocppwire: marshal error frame: %w", err)
	}
	return string(b), nil
}
