package authn

import (
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateChallenged: "CHALLENGED",
		StateAuthorized: "AUTHORIZED",
		StateExpired:    "EXPIRED",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestRandomNonceLength(t *testing.T) {
	n, err := randomNonce()
	if err != nil {
		t.Fatalf("randomNonce: %v", err)
	}
	if len(n) != 32 { // 16 bytes hex-encoded = 32 chars, 128 bits here
		t.Fatalf("expected 32-char hex nonce, got %d chars: %s", len(n), n)
	}
}

func TestRandomNonceUnique(t *testing.T) {
	a, _ := randomNonce()
	b, _ := randomNonce()
	if a == b {
		t.Fatal("two consecutive nonces must not collide")
	}
}

func TestCheckAdminFreshnessWithinWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	created := now.Add(-2 * time.Second)
	if err := CheckAdminFreshness(created, now, 3*time.Second); err != nil {
		t.Fatalf("expected fresh timestamp to pass, got %v", err)
	}
}

func TestCheckAdminFreshnessOutsideWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	created := now.Add(-5 * time.Second)
	if err := CheckAdminFreshness(created, now, 3*time.Second); err != ErrStale {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestCheckAdminFreshnessFutureTimestampRejected(t *testing.T) {
	now := time.Unix(1000, 0)
	created := now.Add(1 * time.Second)
	if err := CheckAdminFreshness(created, now, 3*time.Second); err != ErrStale {
		t.Fatalf("future created_time must be rejected as stale, got %v", err)
	}
}
