package mailbox

import (
	"encoding/json"
	"testing"
)

func TestContentHashStable(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	if a != b {
		t.Fatalf("content hash must be deterministic: %s != %s", a, b)
	}
	if a == ContentHash([]byte("world")) {
		t.Fatal("different envelopes must hash differently")
	}
}

func TestParseEphemeralHeaderAcceptsBoolean(t *testing.T) {
	v, err := ParseEphemeralHeader(json.RawMessage(`true`))
	if err != nil || !v {
		t.Fatalf("expected true, nil, got %v, %v", v, err)
	}
	v, err = ParseEphemeralHeader(json.RawMessage(`false`))
	if err != nil || v {
		t.Fatalf("expected false, nil, got %v, %v", v, err)
	}
}

func TestParseEphemeralHeaderAbsent(t *testing.T) {
	v, err := ParseEphemeralHeader(nil)
	if err != nil || v {
		t.Fatalf("absent header should default to false, nil: got %v, %v", v, err)
	}
}

func TestParseEphemeralHeaderRejectsString(t *testing.T) {
	if _, err := ParseEphemeralHeader(json.RawMessage(`"true"`)); err != ErrEphemeralHeaderInvalid {
		t.Fatalf("string value must be rejected as a protocol error, got %v", err)
	}
}

func TestMessageFromFieldsParsesCounters(t *testing.T) {
	fields := map[string]string{
		"sender": "s", "recipient": "r", "bytes": "abc",
		"size": "3", "received_at": "1000", "expires_at": "2000", "ephemeral": "false",
	}
	m := messageFromFields("hash1", fields)
	if m.Size != 3 || m.ReceivedAt != 1000 || m.ExpiresAt != 2000 || m.Ephemeral {
		t.Fatalf("unexpected message: %+v", m)
	}
}
