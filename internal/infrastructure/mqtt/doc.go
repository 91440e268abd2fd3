// Package mqtt provides MQTT client connectivity for the relay hub's
// optional event bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The hub itself never consumes MQTT traffic; the bridge is a one-way
// egress that mirrors hub activity (device online/offline, state reports,
// forwarded commands) onto the broker so external consumers can observe
// the fleet without holding a WebSocket controller connection.
//
//	Relay Hub → MQTT Broker → external consumers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState("udid-1234")
//	client.Publish(topic, stateJSON, 1, true)
package mqtt
