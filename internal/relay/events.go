package relay

import "encoding/json"

// Events is the observer interface through which infrastructure sinks
// (MQTT event bridge, command audit log, telemetry) watch hub activity
// without the relay package depending on them.
//
// Implementations must be safe for concurrent use and must not block:
// callbacks run on the message-handling path.
type Events interface {
	// DeviceOnline fires on every accepted app/state registration,
	// including re-registrations that refresh an existing entry.
	DeviceOnline(udid string, state json.RawMessage)

	// DeviceOffline fires when a registered device's connection closes
	// and its registry entry is removed.
	DeviceOffline(udid string)

	// CommandForwarded fires for each command delivered to a device.
	CommandForwarded(udid, commandType string)

	// UnknownDevice fires when a command names a udid with no registry
	// entry. The miss never aborts delivery to sibling targets.
	UnknownDevice(udid, commandType string)

	// MessageRelayed fires when a device message is relayed to controllers.
	MessageRelayed(udid, messageType string)

	// AuthRejected fires when a control request fails authentication.
	AuthRejected(messageType string)

	// BadPayload fires when an inbound frame fails to parse as JSON.
	BadPayload()
}

// NoopEvents is an Events implementation that does nothing. Embed it to
// implement only the callbacks a sink cares about.
type NoopEvents struct{}

func (NoopEvents) DeviceOnline(string, json.RawMessage) {}
func (NoopEvents) DeviceOffline(string)                 {}
func (NoopEvents) CommandForwarded(string, string)      {}
func (NoopEvents) UnknownDevice(string, string)         {}
func (NoopEvents) MessageRelayed(string, string)        {}
func (NoopEvents) AuthRejected(string)                  {}
func (NoopEvents) BadPayload()                          {}
