package relay

// Conn is an opaque handle to a live duplex message channel.
//
// Implementations must make Send safe for concurrent use and non-blocking
// with respect to slow peers (the hub's fan-out paths call Send for many
// targets in a row and must not stall on any single one). A failed or
// dropped send is reported via the error; the hub treats per-target send
// failures as isolated, never aborting delivery to sibling targets.
//
// Conn values are used as map keys, so each live connection must be a
// distinct comparable value (a pointer in practice).
type Conn interface {
	// ID returns a stable identifier for this connection, used only for
	// logging and correlation.
	ID() string

	// Send queues a single outbound message frame.
	Send(data []byte) error

	// Close tears down the underlying transport connection. The transport
	// reports the resulting close back through Router.HandleDisconnect.
	Close() error
}
