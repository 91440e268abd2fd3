package mqtt

import "fmt"

// Topic prefixes for hub event publications.
//
// All device topics follow the scheme: relayhub/device/{udid}/{kind}
const (
	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "relayhub/device"

	// TopicPrefixHub is the base for hub-level topics.
	TopicPrefixHub = "relayhub/hub"
)

// Topics provides builders for relay hub MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceState returns the topic for a device's latest state report.
//
// Example: relayhub/device/0123abcd/state
func (Topics) DeviceState(udid string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, udid)
}

// DevicePresence returns the topic for device online/offline events.
//
// Example: relayhub/device/0123abcd/presence
func (Topics) DevicePresence(udid string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixDevice, udid)
}

// DeviceCommand returns the topic mirroring commands forwarded to a device.
//
// Example: relayhub/device/0123abcd/command
func (Topics) DeviceCommand(udid string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, udid)
}

// DeviceMessage returns the topic mirroring relayed device traffic.
//
// Example: relayhub/device/0123abcd/message
func (Topics) DeviceMessage(udid string) string {
	return fmt.Sprintf("%s/%s/message", TopicPrefixDevice, udid)
}

// HubStatus returns the hub status topic, also used as the LWT target.
//
// Example: relayhub/hub/status
func (Topics) HubStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixHub)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: relayhub/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixDevice)
}

// AllDevicePresence returns a pattern matching every presence topic.
//
// Pattern: relayhub/device/+/presence
func (Topics) AllDevicePresence() string {
	return fmt.Sprintf("%s/+/presence", TopicPrefixDevice)
}
