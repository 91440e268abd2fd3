package auth

import (
	"testing"
	"time"
)

func TestDeriveSecret_Deterministic(t *testing.T) {
	s1 := DeriveSecret("12345678")
	s2 := DeriveSecret("12345678")

	if s1 != s2 {
		t.Errorf("same password should derive the same secret: %q != %q", s1, s2)
	}

	if s1 == DeriveSecret("different") {
		t.Error("different passwords should derive different secrets")
	}
}

func TestDeriveSecret_Format(t *testing.T) {
	s := DeriveSecret("12345678")

	// SHA-256 output is 32 bytes, hex-encoded to 64 characters.
	if len(s) != 64 {
		t.Errorf("secret length = %d, want 64", len(s))
	}

	for _, c := range s.String() {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("secret contains non-lowercase-hex character %q", c)
		}
	}
}

func TestVerifier_Valid(t *testing.T) {
	secret := DeriveSecret("12345678")
	v := NewVerifier(secret)
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name string
		ts   int64
		sign func(ts int64) string
		want bool
	}{
		{
			name: "current timestamp",
			ts:   now.Unix(),
			sign: secret.Sign,
			want: true,
		},
		{
			name: "lower boundary inclusive",
			ts:   now.Unix() - 10,
			sign: secret.Sign,
			want: true,
		},
		{
			name: "upper boundary inclusive",
			ts:   now.Unix() + 10,
			sign: secret.Sign,
			want: true,
		},
		{
			name: "just below window",
			ts:   now.Unix() - 11,
			sign: secret.Sign,
			want: false,
		},
		{
			name: "just above window",
			ts:   now.Unix() + 11,
			sign: secret.Sign,
			want: false,
		},
		{
			name: "wrong signature",
			ts:   now.Unix(),
			sign: func(int64) string { return "deadbeef" },
			want: false,
		},
		{
			name: "signature for different timestamp",
			ts:   now.Unix(),
			sign: func(ts int64) string { return secret.Sign(ts + 1) },
			want: false,
		},
		{
			name: "signature from different secret",
			ts:   now.Unix(),
			sign: DeriveSecret("other-password").Sign,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Valid(tt.ts, tt.sign(tt.ts), now)
			if got != tt.want {
				t.Errorf("Valid(ts=%d) = %v, want %v", tt.ts, got, tt.want)
			}
		})
	}
}

func TestVerifier_Valid_CaseInsensitiveSign(t *testing.T) {
	secret := DeriveSecret("12345678")
	v := NewVerifier(secret)
	now := time.Unix(1700000000, 0)

	ts := now.Unix()
	upper := toUpper(secret.Sign(ts))

	if !v.Valid(ts, upper, now) {
		t.Error("uppercase signature should be accepted")
	}
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func TestSecret_Sign_Deterministic(t *testing.T) {
	secret := DeriveSecret("12345678")

	if secret.Sign(1700000000) != secret.Sign(1700000000) {
		t.Error("signing the same timestamp should be deterministic")
	}
	if secret.Sign(1700000000) == secret.Sign(1700000001) {
		t.Error("different timestamps should produce different signatures")
	}
}
