package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsSendBufferSize is the per-connection outbound frame buffer size.
const wsSendBufferSize = 256

// upgrader configures the WebSocket upgrader. Origin checks are deliberately
// open: devices and controllers are not browsers, and the protocol carries
// its own control authentication.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsClient wraps a WebSocket connection as a relay peer. A single writePump
// goroutine owns all writes; Send only enqueues.
type wsClient struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

// ID returns the connection's unique identifier.
func (c *wsClient) ID() string { return c.id }

// Send enqueues a text frame for delivery. It never blocks: a peer whose
// buffer is full has stopped reading, and stalling the hub on it would stall
// every other peer, so the frame is dropped with an error instead.
func (c *wsClient) Send(data []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	default:
		return errSendBufferFull
	}
}

// Close tears down the underlying connection. The read pump observes the
// closed socket and runs disconnect cleanup exactly once.
func (c *wsClient) Close() error {
	return c.conn.Close()
}

var errSendBufferFull = &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "send buffer full"}

// handleWebSocket upgrades the HTTP connection and hands it to the relay
// router. Every peer enters unauthenticated; control messages authenticate
// per-message via signed tokens, devices identify via state reports.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := &wsClient{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		done:   make(chan struct{}),
	}

	s.registerClient(client)
	s.logger.Debug("connection opened", "conn", client.id, "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

// readPump reads frames from the connection and feeds them to the relay
// router. It owns disconnect cleanup: when the read loop exits for any
// reason, the connection is deregistered and the router notified once.
func (c *wsClient) readPump() {
	s := c.server
	defer func() {
		close(c.done)
		c.conn.Close()
		s.unregisterClient(c)
		s.router.HandleDisconnect(c)
		s.logger.Debug("connection closed", "conn", c.id)
	}()

	pingInterval := s.cfg.GetPingInterval()
	pongWait := s.cfg.GetPongTimeout()

	c.conn.SetReadLimit(int64(s.cfg.Server.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "conn", c.id, "error", err)
			}
			return
		}

		// Any inbound frame proves the peer alive.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		// The protocol is text-only JSON; binary frames are ignored.
		if msgType != websocket.TextMessage {
			continue
		}

		s.router.HandleMessage(c, message)
	}
}

// writePump drains the send queue onto the wire and emits keepalive pings.
// It is the sole writer on the connection.
func (c *wsClient) writePump() {
	s := c.server
	pingInterval := s.cfg.GetPingInterval()
	pongWait := s.cfg.GetPongTimeout()

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			//nolint:errcheck // Best-effort close message
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

// registerClient tracks a live connection for shutdown teardown.
func (s *Server) registerClient(client *wsClient) {
	s.wsMu.Lock()
	s.wsConns[client] = struct{}{}
	s.wsMu.Unlock()
}

// unregisterClient forgets a connection after its read pump exits.
func (s *Server) unregisterClient(client *wsClient) {
	s.wsMu.Lock()
	delete(s.wsConns, client)
	s.wsMu.Unlock()
}

// closeAllClients force-closes every live connection so their pumps exit
// during shutdown.
func (s *Server) closeAllClients() {
	s.wsMu.Lock()
	clients := make([]*wsClient, 0, len(s.wsConns))
	for client := range s.wsConns {
		clients = append(clients, client)
	}
	s.wsMu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}
