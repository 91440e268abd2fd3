package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xxtouch/relay-hub/internal/audit"
	"github.com/xxtouch/relay-hub/internal/infrastructure/influxdb"
	"github.com/xxtouch/relay-hub/internal/infrastructure/logging"
	"github.com/xxtouch/relay-hub/internal/infrastructure/mqtt"
	"github.com/xxtouch/relay-hub/internal/relay"
)

// auditWriteTimeout bounds each background audit insert.
const auditWriteTimeout = 5 * time.Second

// hubEvents adapts relay hub activity to the optional infrastructure
// sinks. Any subset of mqtt, commands and influx may be nil when the
// corresponding integration is disabled.
//
// MQTT publishes and audit inserts run on background goroutines so the
// message-handling path never waits on a broker or disk.
type hubEvents struct {
	registry    *relay.Registry
	controllers *relay.ControllerSet
	log         *logging.Logger

	mqtt     *mqtt.Client
	commands audit.Repository
	influx   *influxdb.Client

	topics mqtt.Topics
}

// presenceEvent is the payload published on device presence topics.
type presenceEvent struct {
	UDID   string `json:"udid"`
	Online bool   `json:"online"`
	TS     int64  `json:"ts"`
}

// commandEvent is the payload mirrored on device command topics.
type commandEvent struct {
	UDID string `json:"udid"`
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

// messageEvent is the payload mirrored on device message topics.
type messageEvent struct {
	UDID string `json:"udid"`
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

func (e *hubEvents) DeviceOnline(udid string, state json.RawMessage) {
	if e.influx != nil {
		e.influx.WriteOccupancy(e.registry.Count(), e.controllers.Len())
	}
	if e.mqtt == nil {
		return
	}

	payload := e.marshal(presenceEvent{UDID: udid, Online: true, TS: time.Now().Unix()})
	go func() {
		// Retained so late subscribers see the last known state.
		if err := e.mqtt.PublishRetained(e.topics.DeviceState(udid), state); err != nil {
			e.log.Warn("mqtt state publish failed", "udid", udid, "error", err)
		}
		if err := e.mqtt.PublishEvent(e.topics.DevicePresence(udid), payload); err != nil {
			e.log.Warn("mqtt presence publish failed", "udid", udid, "error", err)
		}
	}()
}

func (e *hubEvents) DeviceOffline(udid string) {
	if e.influx != nil {
		e.influx.WriteOccupancy(e.registry.Count(), e.controllers.Len())
	}
	if e.mqtt == nil {
		return
	}

	payload := e.marshal(presenceEvent{UDID: udid, Online: false, TS: time.Now().Unix()})
	go func() {
		// Empty retained payload clears the stale state report.
		if err := e.mqtt.PublishRetained(e.topics.DeviceState(udid), nil); err != nil {
			e.log.Warn("mqtt state clear failed", "udid", udid, "error", err)
		}
		if err := e.mqtt.PublishEvent(e.topics.DevicePresence(udid), payload); err != nil {
			e.log.Warn("mqtt presence publish failed", "udid", udid, "error", err)
		}
	}()
}

func (e *hubEvents) CommandForwarded(udid, commandType string) {
	if e.influx != nil {
		e.influx.WriteCommandForwarded(udid, commandType)
	}

	if e.mqtt != nil {
		payload := e.marshal(commandEvent{UDID: udid, Type: commandType, TS: time.Now().Unix()})
		go func() {
			if err := e.mqtt.PublishEvent(e.topics.DeviceCommand(udid), payload); err != nil {
				e.log.Warn("mqtt command publish failed", "udid", udid, "error", err)
			}
		}()
	}

	if e.commands != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			defer cancel()

			entry := &audit.CommandLog{
				UDID:        udid,
				CommandType: commandType,
			}
			if err := e.commands.Create(ctx, entry); err != nil {
				e.log.Warn("command audit write failed", "udid", udid, "error", err)
			}
		}()
	}
}

func (e *hubEvents) UnknownDevice(udid, commandType string) {
	e.log.Warn("command targets unknown device",
		"udid", udid,
		"command_type", commandType,
	)
}

func (e *hubEvents) MessageRelayed(udid, messageType string) {
	if e.influx != nil {
		e.influx.WriteMessageRelayed(udid, messageType)
	}
	if e.mqtt == nil {
		return
	}

	payload := e.marshal(messageEvent{UDID: udid, Type: messageType, TS: time.Now().Unix()})
	go func() {
		if err := e.mqtt.PublishEvent(e.topics.DeviceMessage(udid), payload); err != nil {
			e.log.Warn("mqtt message publish failed", "udid", udid, "error", err)
		}
	}()
}

func (e *hubEvents) AuthRejected(messageType string) {
	e.log.Warn("control request rejected", "type", messageType)
}

func (e *hubEvents) BadPayload() {
	e.log.Debug("dropped unparseable frame")
}

func (e *hubEvents) marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		e.log.Error("event payload marshal failed", "error", err)
		return nil
	}
	return data
}
