package ocppwire

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeCallRoundTrip(t *testing.T) {
	frame, err := EncodeCall("msg-1", "Heartbeat", map[string]any{})
	if err != nil {
		t.Fatalf("EncodeCall failed: %v", err)
	}

	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Call == nil {
		t.Fatalf("expected a decoded Call frame, got %+v", decoded)
	}
	if decoded.Call.ID != "msg-1" || decoded.Call.Action != "Heartbeat" {
		t.Fatalf("unexpected call: %+v", decoded.Call)
	}
}

func TestEncodeDecodeCallResultRoundTrip(t *testing.T) {
	frame, err := EncodeCallResult("msg-1", map[string]any{"status": "Accepted"})
	if err != nil {
		t.Fatalf("EncodeCallResult failed: %v", err)
	}
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.CallResult == nil || decoded.CallResult.ID != "msg-1" {
		t.Fatalf("unexpected result: %+v", decoded.CallResult)
	}
	var payload map[string]string
	if err := json.Unmarshal(decoded.CallResult.Payload, &payload); err != nil {
		t.Fatalf("bad payload json: %v", err)
	}
	if payload["status"] != "Accepted" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEncodeDecodeCallErrorRoundTrip(t *testing.T) {
	frame, err := EncodeCallError("msg-1", "NotImplemented", "unsupported action", nil)
	if err != nil {
		t.Fatalf("EncodeCallError failed: %v", err)
	}
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.CallError == nil {
		t.Fatalf("expected a decoded CallError frame, got %+v", decoded)
	}
	if decoded.CallError.Code != "NotImplemented" || decoded.CallError.Description != "unsupported action" {
		t.Fatalf("unexpected call error: %+v", decoded.CallError)
	}
}

func TestDecode_RejectsNonArrayFrame(t *testing.T) {
	if _, err := Decode(`{"not":"an array"}`); err == nil {
		t.Fatalf("expected an error for a non-array frame")
	}
}

func TestDecode_RejectsTooShortFrame(t *testing.T) {
	if _, err := Decode(`[3,"msg-1"]`); err == nil {
		t.Fatalf("expected an error for a frame missing its payload")
	}
}

func TestDecode_RejectsCallMissingPayload(t *testing.T) {
	if _, err := Decode(`[2,"msg-1","Heartbeat"]`); err == nil {
		t.Fatalf("expected an error for a CALL frame missing its payload")
	}
}

func TestDecode_RejectsUnknownMessageType(t *testing.T) {
	if _, err := Decode(`[9,"msg-1","x"]`); err == nil {
		t.Fatalf("expected an error for an unknown message type")
	}
}

func TestDecode_RejectsNonStringID(t *testing.T) {
	if _, err := Decode(`[2,42,"Heartbeat",{}]`); err == nil {
		t.Fatalf("expected an error for a non-string message id")
	}
}
