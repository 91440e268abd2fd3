// Package auth implements the relay hub's control authentication.
//
// Authentication is a two-step HMAC-SHA256 scheme fixed by the wire contract:
//
//	passhash = lower(hex(HMAC-SHA256(key="XXTouch", message=password)))
//	sign     = lower(hex(HMAC-SHA256(key=passhash, message=decimal(ts))))
//
// Every control/* request carries (ts, sign). The hub accepts a request iff
// ts is within ±10 seconds of its own clock (inclusive) and sign matches.
// Failed authentication is a silent drop; the connection stays open.
//
// There is no replay memory beyond the clock window and no rate limiting.
// Signature comparison is constant-time.
package auth
