package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteOccupancy records the hub's current fleet occupancy.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - devices: Number of registered devices
//   - controllers: Number of authenticated controllers
func (c *Client) WriteOccupancy(devices, controllers int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"hub_occupancy",
		nil,
		map[string]interface{}{
			"devices":     devices,
			"controllers": controllers,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandForwarded records one command delivered to a device.
//
// Parameters:
//   - udid: Target device identifier
//   - commandType: The forwarded message type (e.g., "touch/down")
func (c *Client) WriteCommandForwarded(udid, commandType string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"commands",
		map[string]string{
			"udid":         udid,
			"command_type": commandType,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMessageRelayed records one device message fanned out to controllers.
//
// Parameters:
//   - udid: Source device identifier
//   - messageType: The relayed message type (e.g., "app/state")
func (c *Client) WriteMessageRelayed(udid, messageType string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"relayed_messages",
		map[string]string{
			"udid":         udid,
			"message_type": messageType,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
