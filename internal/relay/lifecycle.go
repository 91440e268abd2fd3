package relay

// HandleDisconnect performs close-triggered cleanup for a connection. The
// transport calls it exactly once per connection, after the read loop exits
// for any reason (peer close, error, heartbeat timeout).
//
// Cleanup is controller-first: a connection in the controller set loses that
// membership and nothing else. Otherwise, if the connection is a registered
// device, its registry entry is removed and every current controller is
// notified with a device/disconnect message. A connection in neither set
// closes with no further action.
//
// Role memberships are not mutually exclusive at registration time, so a
// dual-role connection loses only its controller membership here; its device
// entry survives until re-registered or superseded.
func (r *Router) HandleDisconnect(conn Conn) {
	if r.controllers.Contains(conn) {
		r.controllers.Remove(conn)
		r.logger.Info("controller disconnected", "conn", conn.ID())
		return
	}

	udid, ok := r.registry.Remove(conn)
	if !ok {
		r.logger.Debug("unclassified connection closed", "conn", conn.ID())
		return
	}

	r.logger.Info("device disconnected", "udid", udid, "conn", conn.ID())
	r.events.DeviceOffline(udid)

	targets := r.controllers.All()
	if len(targets) == 0 {
		return
	}

	notice := encodeDisconnect(udid)
	for _, target := range targets {
		if err := target.Send(notice); err != nil {
			r.logger.Debug("disconnect notice send failed", "controller", target.ID(), "error", err)
		}
	}
}
