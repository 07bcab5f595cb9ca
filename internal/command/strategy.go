package command

import "fmt"

// CallObject is a concrete, version-specific outbound call ready for session.SendCall
// (SPEC_FULL.md §4.I).
type CallObject struct {
	Action  string
	Payload map[string]any
}

// Strategy translates an (action, params) operator request into a CallObject.
type Strategy interface {
	Build(action string, params map[string]any) (CallObject, error)
}

// V16Strategy is the OCPP 1.6 command strategy: flat key/value ChangeConfiguration and
// the classic Remote{Start,Stop}Transaction calls.
type V16Strategy struct{}

func (V16Strategy) Build(action string, params map[string]any) (CallObject, error) {
	switch action {
	case "RemoteStartTransaction":
		idTag, _ := params["idTag"].(string)
		if idTag == "" {
			return CallObject{}, badRequest("idTag is required for RemoteStartTransaction")
		}
		payload := map[string]any{"idTag": idTag}
		if connectorID, ok := params["connectorId"]; ok {
			payload["connectorId"] = connectorID
		}
		return CallObject{Action: action, Payload: payload}, nil

	case "RemoteStopTransaction":
		txID, ok := params["transactionId"]
		if !ok || txID == nil {
			return CallObject{}, badRequest("transactionId is required for RemoteStopTransaction")
		}
		return CallObject{Action: action, Payload: map[string]any{"transactionId": txID}}, nil

	case "ChangeConfiguration":
		key, _ := params["key"].(string)
		value, hasValue := params["value"]
		if key == "" || !hasValue {
			return CallObject{}, badRequest("key and value are required for ChangeConfiguration")
		}
		return CallObject{Action: action, Payload: map[string]any{"key": key, "value": value}}, nil

	case "GetConfiguration":
		keys, _ := params["key"].([]any)
		return CallObject{Action: action, Payload: map[string]any{"key": keys}}, nil

	default:
		return CallObject{}, badRequest("unknown action %q for ocpp 1.6", action)
	}
}

// V201Strategy is the OCPP 2.0.1 command strategy: idToken-shaped transaction requests
// and the component/variable configuration model.
type V201Strategy struct{}

func (V201Strategy) Build(action string, params map[string]any) (CallObject, error) {
	switch action {
	case "RequestStartTransaction":
		return buildRequestStartTransaction(params), nil

	case "RequestStopTransaction":
		txID, _ := params["transactionId"].(string)
		if txID == "" {
			return CallObject{}, badRequest("transactionId is required for RequestStopTransaction")
		}
		return CallObject{Action: action, Payload: map[string]any{"transactionId": txID}}, nil

	case "GetBaseReport":
		requestID := params["requestId"]
		if requestID == nil {
			requestID = 55
		}
		reportBase := params["reportBase"]
		if reportBase == nil {
			reportBase = "FullInventory"
		}
		return CallObject{Action: action, Payload: map[string]any{
			"requestId":  requestID,
			"reportBase": reportBase,
		}}, nil

	case "GetVariables":
		keys, _ := params["key"].([]any)
		if len(keys) == 0 {
			return CallObject{}, badRequest("key must be a non-empty list for GetVariables")
		}
		return CallObject{Action: action, Payload: map[string]any{"getVariableData": keys}}, nil

	case "SetVariables":
		return buildSetVariables(params)

	default:
		return CallObject{}, badRequest("unknown action %q for ocpp 2.0.1", action)
	}
}

func buildRequestStartTransaction(params map[string]any) CallObject {
	idToken, ok := params["idToken"].(map[string]any)
	if !ok {
		tag, _ := params["idTag"].(string)
		if tag == "" {
			tag = "DEFAULT_TAG"
		}
		idToken = map[string]any{"idToken": tag, "type": "Central"}
	}
	remoteStartID := params["remoteStartId"]
	if remoteStartID == nil {
		remoteStartID = 1234
	}
	payload := map[string]any{"idToken": idToken, "remoteStartId": remoteStartID}
	if evseID, ok := params["evseId"]; ok {
		payload["evseId"] = evseID
	}
	return CallObject{Action: "RequestStartTransaction", Payload: payload}
}

// buildSetVariables accepts either the spec shape (set_variable_data: [...]) or the
// convenience shape ({key: {component, variable_name}, value}), expanding the latter
// with attributeType=Actual (SPEC_FULL.md §4.I).
func buildSetVariables(params map[string]any) (CallObject, error) {
	if raw, ok := params["set_variable_data"]; ok {
		return CallObject{Action: "SetVariables", Payload: map[string]any{"setVariableData": raw}}, nil
	}

	keyObj, ok := params["key"].(map[string]any)
	value, hasValue := params["value"]
	if !ok || !hasValue {
		return CallObject{}, badRequest("SetVariables requires either set_variable_data or {key, value}")
	}

	item := map[string]any{
		"attributeType":  "Actual",
		"attributeValue": fmt.Sprint(value),
		"component":      keyObj["component"],
		"variable":       map[string]any{"name": keyObj["variable_name"]},
	}
	return CallObject{Action: "SetVariables", Payload: map[string]any{
		"setVariableData": []any{item},
	}}, nil
}
