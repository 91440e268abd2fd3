// Package relay implements the core of the relay hub: the device registry,
// controller set, message router, status poller, and connection lifecycle.
//
// Two client roles converge on the hub over a message-oriented duplex
// transport. Devices report state (app/state) and execute commands;
// controllers authenticate with signed, time-windowed tokens and issue
// commands or observe device state and events. The router classifies each
// inbound message by type and fans writes out to one or more connections.
//
// # Roles
//
// A connection has no declared role. Role membership is inferred from which
// structures reference it: a connection becomes a device when its first valid
// app/state message is registered, and a controller on its first accepted
// control/* request. The two memberships are not mutually exclusive; a single
// connection may hold both. On close, cleanup is controller-first (see
// Router.HandleDisconnect).
//
// # Concurrency
//
// The Registry and ControllerSet are the only shared mutable state. Both are
// internally mutex-guarded; broadcasts snapshot membership under the lock and
// send outside it. Per-connection write ordering is the transport's
// responsibility (a single-writer outbound queue per connection); the relay
// package only requires that Conn.Send be safe for concurrent use.
//
// The package has no transport or infrastructure dependencies: transports
// implement Conn, and observability sinks implement Events.
package relay
