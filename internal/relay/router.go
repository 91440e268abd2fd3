package relay

import (
	"encoding/json"
	"time"

	"github.com/xxtouch/relay-hub/internal/auth"
)

// Router classifies inbound messages by type and dispatches them: control
// requests mutate the controller set and fan out to devices, app/state
// registers devices, and everything else a device sends is relayed to
// controllers tagged with the device's udid.
//
// One Router instance serves all connections. All methods are thread-safe;
// the registry and controller set provide the mutual exclusion.
type Router struct {
	verifier    *auth.Verifier
	registry    *Registry
	controllers *ControllerSet
	logger      Logger
	events      Events
	now         func() time.Time
}

// NewRouter creates a router over the given registry and controller set.
func NewRouter(verifier *auth.Verifier, registry *Registry, controllers *ControllerSet) *Router {
	return &Router{
		verifier:    verifier,
		registry:    registry,
		controllers: controllers,
		logger:      noopLogger{},
		events:      NoopEvents{},
		now:         time.Now,
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEvents sets the observer for hub activity.
func (r *Router) SetEvents(events Events) {
	r.events = events
}

// HandleMessage processes one inbound frame from a connection.
//
// Errors never escalate past this method: malformed JSON gets an error
// reply, failed authentication is a silent drop, per-target send failures
// are isolated, and a panic while processing is caught and logged. The
// connection terminates only via its own close.
func (r *Router) HandleMessage(conn Conn, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while handling message", "conn", conn.ID(), "panic", rec)
		}
	}()

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		r.events.BadPayload()
		r.logger.Debug("unparseable message", "conn", conn.ID(), "error", err)
		if sendErr := conn.Send(encodeBadJSON(raw)); sendErr != nil {
			r.logger.Debug("error reply send failed", "conn", conn.ID(), "error", sendErr)
		}
		return
	}

	msgType, _ := decoded["type"].(string)

	switch msgType {
	case TypeControlDevices:
		if !r.authenticate(conn, raw, msgType) {
			return
		}
		r.controllers.Add(conn)
		if err := conn.Send(encodeSnapshot(r.registry.Snapshot())); err != nil {
			r.logger.Debug("snapshot reply send failed", "conn", conn.ID(), "error", err)
		}
		return

	case TypeControlRefresh:
		if !r.authenticate(conn, raw, msgType) {
			return
		}
		r.controllers.Add(conn)
		r.broadcastStateRequest()
		return

	case TypeControlCommand:
		if !r.authenticate(conn, raw, msgType) {
			return
		}
		r.controllers.Add(conn)
		r.handleCommand(conn, raw)
		return

	case TypeControlCommands:
		if !r.authenticate(conn, raw, msgType) {
			return
		}
		r.controllers.Add(conn)
		r.handleCommands(conn, raw)
		return

	case TypeAppState:
		if !r.handleAppState(conn, raw) {
			return
		}
		// app/state deliberately falls through to the relay below so
		// controllers also receive state replies.
	}

	r.relayToControllers(conn, decoded, msgType)
}

// authenticate validates the ts/sign token of a control request. Failure
// is a silent drop on the wire: logged and counted, no reply, no state
// change, connection stays open.
func (r *Router) authenticate(conn Conn, raw []byte, msgType string) bool {
	var tok controlToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		r.events.AuthRejected(msgType)
		r.logger.Debug("control request with malformed token", "conn", conn.ID(), "type", msgType)
		return false
	}

	if !r.verifier.Valid(tok.TS, tok.Sign, r.now()) {
		r.events.AuthRejected(msgType)
		r.logger.Debug("control request failed authentication", "conn", conn.ID(), "type", msgType, "ts", tok.TS)
		return false
	}

	return true
}

// handleCommand forwards a single command to each named device. Each target
// is resolved and dispatched independently; an unknown udid or a failed
// send never blocks delivery to siblings.
func (r *Router) handleCommand(conn Conn, raw []byte) {
	var msg struct {
		Body commandRequest `json:"body"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Warn("control/command with malformed body", "conn", conn.ID(), "error", err)
		return
	}

	for _, udid := range msg.Body.Devices {
		r.dispatchCommand(udid, msg.Body.Type, msg.Body.Body)
	}
}

// handleCommands forwards a command batch: for each named device, every
// command in order. Target failures are isolated exactly as in handleCommand.
func (r *Router) handleCommands(conn Conn, raw []byte) {
	var msg struct {
		Body commandsRequest `json:"body"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Warn("control/commands with malformed body", "conn", conn.ID(), "error", err)
		return
	}

	for _, udid := range msg.Body.Devices {
		for _, cmd := range msg.Body.Commands {
			r.dispatchCommand(udid, cmd.Type, cmd.Body)
		}
	}
}

// dispatchCommand resolves one target udid and sends it one command.
func (r *Router) dispatchCommand(udid, commandType string, body json.RawMessage) {
	target, ok := r.registry.Lookup(udid)
	if !ok {
		r.events.UnknownDevice(udid, commandType)
		r.logger.Warn("command for unknown device", "udid", udid, "command", commandType)
		return
	}

	if err := target.Send(encodeCommand(commandType, body)); err != nil {
		r.logger.Debug("command send failed", "udid", udid, "command", commandType, "error", err)
		return
	}

	r.events.CommandForwarded(udid, commandType)
}

// handleAppState registers (or re-registers) the sending connection as the
// device named by body.system.udid. Returns false if the payload carries no
// usable identity, in which case the message is not relayed either.
func (r *Router) handleAppState(conn Conn, raw []byte) bool {
	var msg struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Body) == 0 {
		r.logger.Warn("app/state without body", "conn", conn.ID())
		return false
	}

	var payload statePayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload.System.UDID == "" {
		r.logger.Warn("app/state without system.udid", "conn", conn.ID())
		return false
	}

	udid := payload.System.UDID
	if superseded := r.registry.Register(udid, conn, msg.Body); superseded != nil {
		// A later registration from a different connection wins; the stale
		// connection is closed rather than left dangling. Its own close
		// cleanup is a no-op because the registry no longer references it.
		r.logger.Warn("device re-registered from new connection, closing stale one",
			"udid", udid, "stale_conn", superseded.ID(), "conn", conn.ID())
		if err := superseded.Close(); err != nil {
			r.logger.Debug("closing stale connection failed", "udid", udid, "error", err)
		}
	}

	r.logger.Debug("device state registered", "udid", udid, "conn", conn.ID())
	r.events.DeviceOnline(udid, msg.Body)
	return true
}

// relayToControllers forwards a device-originated message to every current
// controller, tagged with the device's udid. Messages from connections that
// are not registered devices are not relayed.
func (r *Router) relayToControllers(conn Conn, decoded map[string]any, msgType string) {
	udid, ok := r.registry.UDIDOf(conn)
	if !ok {
		return
	}

	targets := r.controllers.All()
	if len(targets) == 0 {
		return
	}

	data, err := tagWithUDID(decoded, udid)
	if err != nil {
		r.logger.Error("relay encode failed", "udid", udid, "error", err)
		return
	}

	for _, target := range targets {
		if err := target.Send(data); err != nil {
			r.logger.Debug("relay send failed", "controller", target.ID(), "error", err)
		}
	}

	r.events.MessageRelayed(udid, msgType)
}

// broadcastStateRequest sends an app/state request to every registered
// device, with per-target failure isolation.
func (r *Router) broadcastStateRequest() {
	for _, device := range r.registry.Connections() {
		if err := device.Send(statePollMessage); err != nil {
			r.logger.Debug("state request send failed", "conn", device.ID(), "error", err)
		}
	}
}
