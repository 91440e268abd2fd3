package relay

import (
	"encoding/json"
	"fmt"
)

// Message types understood by the router. Everything else is subject to the
// fallthrough relay rule (device messages forwarded to controllers).
const (
	TypeControlDevices   = "control/devices"
	TypeControlRefresh   = "control/refresh"
	TypeControlCommand   = "control/command"
	TypeControlCommands  = "control/commands"
	TypeAppState         = "app/state"
	TypeDeviceDisconnect = "device/disconnect"
	TypeError            = "error"
)

// controlToken carries the authentication fields of a control/* request.
// TS must decode as an integer; a fractional or non-numeric ts fails the
// decode and with it the authentication.
type controlToken struct {
	TS   int64  `json:"ts"`
	Sign string `json:"sign"`
}

// commandRequest is the body of a control/command message.
type commandRequest struct {
	Devices []string        `json:"devices"`
	Type    string          `json:"type"`
	Body    json.RawMessage `json:"body"`
}

// commandsRequest is the body of a control/commands message.
type commandsRequest struct {
	Devices  []string      `json:"devices"`
	Commands []commandSpec `json:"commands"`
}

// commandSpec is a single command within a control/commands batch.
type commandSpec struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// statePayload extracts the device identity from an app/state body.
type statePayload struct {
	System struct {
		UDID string `json:"udid"`
	} `json:"system"`
}

// emptyBody is the wire representation of an absent command body: the empty
// string, not null and not an empty object.
var emptyBody = json.RawMessage(`""`)

// statePollMessage is the state-refresh request broadcast to devices by the
// poller and by control/refresh.
var statePollMessage = mustMarshal(map[string]any{
	"type": TypeAppState,
	"body": "",
})

// encodeCommand builds the message forwarded to a device for a single
// command. A missing or null body is sent as the empty string.
func encodeCommand(cmdType string, body json.RawMessage) []byte {
	if len(body) == 0 || string(body) == "null" {
		body = emptyBody
	}
	return mustMarshal(struct {
		Type string          `json:"type"`
		Body json.RawMessage `json:"body"`
	}{Type: cmdType, Body: body})
}

// encodeSnapshot builds the control/devices reply carrying the full registry
// snapshot, keyed by udid.
func encodeSnapshot(snapshot map[string]json.RawMessage) []byte {
	if snapshot == nil {
		snapshot = map[string]json.RawMessage{}
	}
	return mustMarshal(struct {
		Type string                     `json:"type"`
		Body map[string]json.RawMessage `json:"body"`
	}{Type: TypeControlDevices, Body: snapshot})
}

// encodeDisconnect builds the device/disconnect notification broadcast to
// controllers when a registered device's connection closes.
func encodeDisconnect(udid string) []byte {
	return mustMarshal(struct {
		Type string `json:"type"`
		Body string `json:"body"`
	}{Type: TypeDeviceDisconnect, Body: udid})
}

// encodeBadJSON builds the error reply for a payload that failed to parse.
// The offending raw text is echoed back in the body.
func encodeBadJSON(raw []byte) []byte {
	return mustMarshal(struct {
		Error string `json:"error"`
		Type  string `json:"type"`
		Body  string `json:"body"`
	}{Error: "bad json", Type: TypeError, Body: string(raw)})
}

// tagWithUDID re-encodes a decoded message with the originating device's
// udid attached, for the fallthrough relay to controllers.
func tagWithUDID(decoded map[string]any, udid string) ([]byte, error) {
	decoded["udid"] = udid
	data, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("tagging relay message: %w", err)
	}
	return data, nil
}

// mustMarshal marshals hub-constructed values. All inputs are composed of
// marshal-safe types, so failure indicates a programming error.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("relay: marshal of hub-built message failed: %v", err))
	}
	return data
}
