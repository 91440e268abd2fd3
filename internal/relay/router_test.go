package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xxtouch/relay-hub/internal/auth"
)

const testPassword = "12345678"

// recordingEvents captures observer callbacks for assertions.
type recordingEvents struct {
	NoopEvents
	mu       sync.Mutex
	online   []string
	offline  []string
	unknown  []string
	commands []string
	relayed  []string
	rejected int
	badJSON  int
}

func (e *recordingEvents) DeviceOnline(udid string, _ json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.online = append(e.online, udid)
}

func (e *recordingEvents) DeviceOffline(udid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offline = append(e.offline, udid)
}

func (e *recordingEvents) UnknownDevice(udid, _ string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unknown = append(e.unknown, udid)
}

func (e *recordingEvents) CommandForwarded(udid, commandType string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, udid+":"+commandType)
}

func (e *recordingEvents) MessageRelayed(udid, _ string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.relayed = append(e.relayed, udid)
}

func (e *recordingEvents) AuthRejected(string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected++
}

func (e *recordingEvents) BadPayload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.badJSON++
}

// newTestRouter builds a router over fresh state with a recording observer.
func newTestRouter() (*Router, *Registry, *ControllerSet, *recordingEvents) {
	secret := auth.DeriveSecret(testPassword)
	registry := NewRegistry()
	controllers := NewControllerSet()
	router := NewRouter(auth.NewVerifier(secret), registry, controllers)
	events := &recordingEvents{}
	router.SetEvents(events)
	return router, registry, controllers, events
}

// controlMessage builds a signed control request with a current timestamp.
func controlMessage(t *testing.T, msgType string, body any) []byte {
	t.Helper()
	secret := auth.DeriveSecret(testPassword)
	ts := time.Now().Unix()
	msg := map[string]any{
		"ts":   ts,
		"sign": secret.Sign(ts),
		"type": msgType,
	}
	if body != nil {
		msg["body"] = body
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("building control message: %v", err)
	}
	return data
}

// stateMessage builds an app/state report for the given udid.
func stateMessage(t *testing.T, udid string, extra map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"system": map[string]any{"udid": udid},
	}
	for k, v := range extra {
		body[k] = v
	}
	data, err := json.Marshal(map[string]any{"type": TypeAppState, "body": body})
	if err != nil {
		t.Fatalf("building state message: %v", err)
	}
	return data
}

func TestRouter_ControlDevices_RepliesWithSnapshot(t *testing.T) {
	router, _, controllers, _ := newTestRouter()

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", map[string]any{"battery": 80}))

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlDevices, nil))

	if !controllers.Contains(ctrl) {
		t.Error("sender should be registered as a controller")
	}

	reply := ctrl.sentJSON(t, 0)
	if reply["type"] != TypeControlDevices {
		t.Fatalf("reply type = %v, want %s", reply["type"], TypeControlDevices)
	}

	body, ok := reply["body"].(map[string]any)
	if !ok {
		t.Fatalf("reply body is %T, want object", reply["body"])
	}
	if len(body) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(body))
	}

	state, ok := body["dev-1"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot missing dev-1")
	}
	if state["battery"] != float64(80) {
		t.Errorf("snapshot state battery = %v, want 80", state["battery"])
	}
}

func TestRouter_ControlDevices_EmptyRegistry(t *testing.T) {
	router, _, _, _ := newTestRouter()

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlDevices, nil))

	reply := ctrl.sentJSON(t, 0)
	body, ok := reply["body"].(map[string]any)
	if !ok {
		t.Fatalf("reply body is %T, want object (not null)", reply["body"])
	}
	if len(body) != 0 {
		t.Errorf("empty registry snapshot has %d entries", len(body))
	}
}

func TestRouter_AuthFailure_SilentDrop(t *testing.T) {
	router, _, controllers, events := newTestRouter()
	ctrl := newFakeConn("ctrl")

	tests := []struct {
		name string
		raw  []byte
	}{
		{
			name: "wrong signature",
			raw:  []byte(`{"ts":` + itoa(time.Now().Unix()) + `,"sign":"deadbeef","type":"control/devices"}`),
		},
		{
			name: "missing token",
			raw:  []byte(`{"type":"control/devices"}`),
		},
		{
			name: "non-integer ts",
			raw:  []byte(`{"ts":"soon","sign":"deadbeef","type":"control/devices"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router.HandleMessage(ctrl, tt.raw)

			if ctrl.sentCount() != 0 {
				t.Error("auth failure must not produce a reply")
			}
			if controllers.Contains(ctrl) {
				t.Error("auth failure must not register the sender as controller")
			}
		})
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if events.rejected != len(tests) {
		t.Errorf("rejected = %d, want %d", events.rejected, len(tests))
	}
}

func TestRouter_ExpiredTimestamp_SilentDrop(t *testing.T) {
	router, _, controllers, _ := newTestRouter()
	secret := auth.DeriveSecret(testPassword)

	// A correctly signed token that is 11 seconds old sits just outside
	// the inclusive ±10s window.
	ts := time.Now().Unix() - 11
	raw, _ := json.Marshal(map[string]any{
		"ts":   ts,
		"sign": secret.Sign(ts),
		"type": TypeControlDevices,
	})

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, raw)

	if ctrl.sentCount() != 0 || controllers.Contains(ctrl) {
		t.Error("expired token must be silently dropped")
	}
}

func TestRouter_ControlRefresh_BroadcastsToDevices(t *testing.T) {
	router, _, controllers, _ := newTestRouter()

	dev1 := newFakeConn("dev1")
	dev2 := newFakeConn("dev2")
	router.HandleMessage(dev1, stateMessage(t, "dev-1", nil))
	router.HandleMessage(dev2, stateMessage(t, "dev-2", nil))

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlRefresh, nil))

	if !controllers.Contains(ctrl) {
		t.Error("refresh sender should be registered as a controller")
	}
	if ctrl.sentCount() != 0 {
		t.Error("refresh must not reply to the controller")
	}

	for _, dev := range []*fakeConn{dev1, dev2} {
		msg := dev.sentJSON(t, 0)
		if msg["type"] != TypeAppState || msg["body"] != "" {
			t.Errorf("device %s got %v, want app/state with empty body", dev.id, msg)
		}
	}
}

func TestRouter_ControlCommand_UnknownTargetDoesNotBlockSiblings(t *testing.T) {
	router, _, _, events := newTestRouter()

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", nil))

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlCommand, map[string]any{
		"devices": []string{"ghost", "dev-1"},
		"type":    "touch/down",
		"body":    map[string]any{"x": 1, "y": 2},
	}))

	msg := device.sentJSON(t, 0)
	if msg["type"] != "touch/down" {
		t.Fatalf("forwarded type = %v, want touch/down", msg["type"])
	}
	body, _ := msg["body"].(map[string]any)
	if body["x"] != float64(1) || body["y"] != float64(2) {
		t.Errorf("forwarded body = %v", msg["body"])
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.unknown) != 1 || events.unknown[0] != "ghost" {
		t.Errorf("unknown targets = %v, want [ghost]", events.unknown)
	}
	if len(events.commands) != 1 || events.commands[0] != "dev-1:touch/down" {
		t.Errorf("forwarded commands = %v", events.commands)
	}
}

func TestRouter_ControlCommand_MissingBodyBecomesEmptyString(t *testing.T) {
	router, _, _, _ := newTestRouter()

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", nil))

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlCommand, map[string]any{
		"devices": []string{"dev-1"},
		"type":    "device/reboot",
	}))

	msg := device.sentJSON(t, 0)
	if msg["type"] != "device/reboot" {
		t.Fatalf("forwarded type = %v", msg["type"])
	}
	if msg["body"] != "" {
		t.Errorf("missing command body should be forwarded as empty string, got %v", msg["body"])
	}
}

func TestRouter_ControlCommands_PreservesOrderPerDevice(t *testing.T) {
	router, _, _, _ := newTestRouter()

	dev1 := newFakeConn("dev1")
	dev2 := newFakeConn("dev2")
	router.HandleMessage(dev1, stateMessage(t, "dev-1", nil))
	router.HandleMessage(dev2, stateMessage(t, "dev-2", nil))

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlCommands, map[string]any{
		"devices": []string{"dev-1", "dev-2"},
		"commands": []map[string]any{
			{"type": "touch/down", "body": map[string]any{"x": 1, "y": 2}},
			{"type": "touch/up", "body": map[string]any{"x": 1, "y": 2}},
		},
	}))

	for _, dev := range []*fakeConn{dev1, dev2} {
		if dev.sentCount() != 2 {
			t.Fatalf("device %s got %d commands, want 2", dev.id, dev.sentCount())
		}
		if first := dev.sentJSON(t, 0); first["type"] != "touch/down" {
			t.Errorf("device %s first command = %v, want touch/down", dev.id, first["type"])
		}
		if second := dev.sentJSON(t, 1); second["type"] != "touch/up" {
			t.Errorf("device %s second command = %v, want touch/up", dev.id, second["type"])
		}
	}
}

func TestRouter_AppState_RegistersDevice(t *testing.T) {
	router, registry, _, events := newTestRouter()

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", map[string]any{"battery": 42}))

	if _, ok := registry.Lookup("dev-1"); !ok {
		t.Fatal("device not registered after app/state")
	}
	checkInvariant(t, registry)

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.online) != 1 || events.online[0] != "dev-1" {
		t.Errorf("online events = %v, want [dev-1]", events.online)
	}
}

func TestRouter_AppState_RelayedToControllers(t *testing.T) {
	router, _, _, _ := newTestRouter()

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlDevices, nil))

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", nil))

	// Frame 0 is the control/devices reply; frame 1 the relayed state.
	relayed := ctrl.sentJSON(t, 1)
	if relayed["type"] != TypeAppState {
		t.Fatalf("relayed type = %v, want app/state", relayed["type"])
	}
	if relayed["udid"] != "dev-1" {
		t.Errorf("relayed message udid = %v, want dev-1", relayed["udid"])
	}
}

func TestRouter_AppState_SupersededConnectionClosed(t *testing.T) {
	router, registry, _, _ := newTestRouter()

	oldConn := newFakeConn("old")
	newConn := newFakeConn("new")
	router.HandleMessage(oldConn, stateMessage(t, "dev-1", nil))
	router.HandleMessage(newConn, stateMessage(t, "dev-1", nil))

	if !oldConn.isClosed() {
		t.Error("superseded connection should be closed")
	}
	if got, _ := registry.Lookup("dev-1"); got != newConn {
		t.Error("dev-1 should resolve to the new connection")
	}

	// The stale connection's close cleanup must not evict the new entry.
	router.HandleDisconnect(oldConn)
	if _, ok := registry.Lookup("dev-1"); !ok {
		t.Error("stale connection cleanup evicted the live registration")
	}
}

func TestRouter_AppState_MissingUDIDIgnored(t *testing.T) {
	router, registry, _, _ := newTestRouter()

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlDevices, nil))

	device := newFakeConn("device")
	raw := []byte(`{"type":"app/state","body":{"system":{}}}`)
	router.HandleMessage(device, raw)

	if registry.Count() != 0 {
		t.Error("app/state without udid must not register")
	}
	if ctrl.sentCount() != 1 {
		t.Error("app/state without udid must not be relayed")
	}
}

func TestRouter_FallthroughRelay(t *testing.T) {
	router, _, _, events := newTestRouter()

	ctrl1 := newFakeConn("ctrl1")
	ctrl2 := newFakeConn("ctrl2")
	router.HandleMessage(ctrl1, controlMessage(t, TypeControlDevices, nil))
	router.HandleMessage(ctrl2, controlMessage(t, TypeControlDevices, nil))

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", nil))

	router.HandleMessage(device, []byte(`{"type":"script/log","body":"hello"}`))

	for _, ctrl := range []*fakeConn{ctrl1, ctrl2} {
		// Frame 0: snapshot reply. Frame 1: relayed app/state.
		// Frame 2: the relayed script/log.
		msg := ctrl.sentJSON(t, 2)
		if msg["type"] != "script/log" || msg["body"] != "hello" {
			t.Errorf("controller %s got %v", ctrl.id, msg)
		}
		if msg["udid"] != "dev-1" {
			t.Errorf("relayed message missing udid tag: %v", msg)
		}
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.relayed) != 2 { // app/state + script/log
		t.Errorf("relayed events = %v", events.relayed)
	}
}

func TestRouter_FallthroughRelay_UnregisteredSenderDropped(t *testing.T) {
	router, _, _, _ := newTestRouter()

	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlDevices, nil))

	stranger := newFakeConn("stranger")
	router.HandleMessage(stranger, []byte(`{"type":"script/log","body":"hello"}`))

	if ctrl.sentCount() != 1 { // only the snapshot reply
		t.Error("message from unregistered connection must not be relayed")
	}
}

func TestRouter_FallthroughRelay_NoControllers(t *testing.T) {
	router, _, _, _ := newTestRouter()

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", nil))
	router.HandleMessage(device, []byte(`{"type":"script/log","body":"hello"}`))

	if device.sentCount() != 0 {
		t.Error("relay with no controllers must not send anything")
	}
}

func TestRouter_BadJSON_ErrorReply(t *testing.T) {
	router, _, _, events := newTestRouter()

	conn := newFakeConn("conn")
	router.HandleMessage(conn, []byte("not json at all"))

	reply := conn.sentJSON(t, 0)
	if reply["type"] != TypeError || reply["error"] != "bad json" {
		t.Fatalf("reply = %v, want bad json error", reply)
	}
	if reply["body"] != "not json at all" {
		t.Errorf("error body = %v, want the offending raw payload", reply["body"])
	}

	// The connection must remain usable.
	router.HandleMessage(conn, stateMessage(t, "dev-1", nil))
	if _, ok := router.registry.Lookup("dev-1"); !ok {
		t.Error("connection unusable after a bad json frame")
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if events.badJSON != 1 {
		t.Errorf("badJSON = %d, want 1", events.badJSON)
	}
}

func TestRouter_SendFailureDoesNotAbortFanOut(t *testing.T) {
	router, _, _, _ := newTestRouter()

	broken := newFakeConn("broken")
	broken.sendErr = errors.New("write on closed connection")
	healthy := newFakeConn("healthy")

	router.HandleMessage(broken, controlMessage(t, TypeControlDevices, nil))
	router.HandleMessage(healthy, controlMessage(t, TypeControlDevices, nil))

	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", nil))

	// Frame 1 on the healthy controller is the relayed app/state; the
	// broken controller's failure must not have prevented it.
	msg := healthy.sentJSON(t, 1)
	if msg["udid"] != "dev-1" {
		t.Errorf("healthy controller missed the relay: %v", msg)
	}
}

func TestRouter_EndToEndScenario(t *testing.T) {
	router, _, _, _ := newTestRouter()

	// Device connects and reports state.
	device := newFakeConn("device")
	router.HandleMessage(device, stateMessage(t, "dev-1", map[string]any{"battery": 100}))

	// Controller connects and requests the device list.
	ctrl := newFakeConn("ctrl")
	router.HandleMessage(ctrl, controlMessage(t, TypeControlDevices, nil))

	reply := ctrl.sentJSON(t, 0)
	body, _ := reply["body"].(map[string]any)
	state, ok := body["dev-1"].(map[string]any)
	if !ok {
		t.Fatalf("device list missing dev-1: %v", reply)
	}
	if state["battery"] != float64(100) {
		t.Errorf("device list state = %v", state)
	}

	// Controller issues a command; the device must receive it verbatim.
	router.HandleMessage(ctrl, controlMessage(t, TypeControlCommand, map[string]any{
		"devices": []string{"dev-1"},
		"type":    "touch/down",
		"body":    map[string]any{"x": 1, "y": 2},
	}))

	cmd := device.sentJSON(t, 0)
	if cmd["type"] != "touch/down" {
		t.Fatalf("device received %v", cmd)
	}
	cmdBody, _ := cmd["body"].(map[string]any)
	if cmdBody["x"] != float64(1) || cmdBody["y"] != float64(2) {
		t.Errorf("command body = %v", cmd["body"])
	}
}

func itoa(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}
