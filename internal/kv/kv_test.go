package kv

import "testing"

// These are unit tests on the pieces that don't require a reachable Redis
// server; the scripts themselves are not exercised by any test in this
// repository.

func TestOpenDoesNotDial(t *testing.T) {
	s := Open("127.0.0.1:0", "", 0)
	if s == nil {
		t.Fatal("Open returned nil store")
	}
	if s.Raw() == nil {
		t.Fatal("Raw client not initialized")
	}
}

func TestMailboxInsertResultConstants(t *testing.T) {
	cases := map[MailboxInsertResult]int{
		MailboxInserted:         1,
		MailboxDuplicateIgnored: 0,
		MailboxSendCapExceeded:  -1,
		MailboxRecvCapExceeded:  -2,
	}
	for result, want := range cases {
		if int(result) != want {
			t.Fatalf("result %v: got %d want %d", result, int(result), want)
		}
	}
}
