package pubsub

import "testing"

func TestChannelForNaming(t *testing.T) {
	got := ChannelFor("abc123")
	want := "live:{abc123}"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
