package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// derivationKey is the fixed HMAC key for deriving the passhash from the
// shared control password. It is part of the published wire contract and
// must not change.
const derivationKey = "XXTouch"

// SkewSeconds is the permitted clock skew between hub and controller, in
// seconds. A control token with timestamp ts is accepted iff
// now-SkewSeconds <= ts <= now+SkewSeconds (inclusive both ends).
const SkewSeconds = 10

// Secret is the pre-derived shared secret (the "passhash").
//
// It is the lowercase hex encoding of HMAC-SHA256 keyed with "XXTouch" over
// the shared password bytes. Controllers derive the same value locally and
// sign their request timestamps with it; the password itself never appears
// on the wire.
type Secret string

// DeriveSecret computes the passhash for a shared control password.
//
// The derivation is deterministic: the same password always yields the same
// secret. It is computed once at startup and immutable thereafter.
func DeriveSecret(password string) Secret {
	mac := hmac.New(sha256.New, []byte(derivationKey))
	mac.Write([]byte(password))
	return Secret(strings.ToLower(hex.EncodeToString(mac.Sum(nil))))
}

// String returns the passhash as a lowercase hex string.
func (s Secret) String() string {
	return string(s)
}

// Sign computes the control signature for a timestamp: the lowercase hex
// HMAC-SHA256 keyed with the passhash (its ASCII hex bytes) over the decimal
// string of ts. Exported so clients and tests can produce valid tokens.
func (s Secret) Sign(ts int64) string {
	mac := hmac.New(sha256.New, []byte(s))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}

// Verifier validates signed, time-windowed control tokens against a
// pre-derived secret.
//
// Valid is a pure predicate: it has no side effects, keeps no replay memory,
// and performs no rate limiting. An intercepted valid token can be replayed
// within the clock-skew window; that is an accepted property of the protocol.
type Verifier struct {
	secret Secret
}

// NewVerifier creates a Verifier for the given secret.
func NewVerifier(secret Secret) *Verifier {
	return &Verifier{secret: secret}
}

// Valid reports whether a control token (ts, sign) is acceptable at time now.
//
// A token is valid iff:
//   - ts is within SkewSeconds of now, inclusive at both boundaries
//   - sign equals (case-insensitively) the HMAC-SHA256 of the decimal ts
//     string keyed with the passhash
//
// The signature comparison is constant-time.
func (v *Verifier) Valid(ts int64, sign string, now time.Time) bool {
	nowSec := now.Unix()
	if ts < nowSec-SkewSeconds || ts > nowSec+SkewSeconds {
		return false
	}

	expected := v.secret.Sign(ts)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sign)))
}
