package expiry

import (
	"testing"
	"time"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/kv"
	"github.com/affinidi-community/didcomm-mediator/internal/mailbox"
	"github.com/affinidi-community/didcomm-mediator/internal/pubsub"
)

func TestNewSetsInterval(t *testing.T) {
	store := kv.Open("127.0.0.1:0", "", 0)
	accounts := account.New(store, "mediator-hash", 10, 100, 10, 100, 50)
	bus := pubsub.New(store)
	mailboxes := mailbox.New(store, bus)

	s := New(mailboxes, accounts, 30*time.Second)
	if s.interval != 30*time.Second {
		t.Fatalf("expected interval 30s, got %v", s.interval)
	}
	if s.batch != 200 {
		t.Fatalf("expected default batch 200, got %d", s.batch)
	}
}
