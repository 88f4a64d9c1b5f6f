package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
	"github.com/affinidi-community/didcomm-mediator/internal/kv"
	"github.com/affinidi-community/didcomm-mediator/internal/mailbox"
	"github.com/affinidi-community/didcomm-mediator/internal/pubsub"
)

func newTestDispatcher() *Dispatcher {
	store := kv.Open("127.0.0.1:0", "", 0)
	accounts := account.New(store, "mediator-hash", 10, 100, 10, 100, 50)
	bus := pubsub.New(store)
	mailboxes := mailbox.New(store, bus)
	return New(Config{MediatorDIDHash: "mediator-hash"}, accounts, mailboxes, bus)
}

func TestIsPickupType(t *testing.T) {
	if !isPickupType(TypePickupStatusRequest) {
		t.Fatal("status-request should be a pickup type")
	}
	if isPickupType(TypeTrustPing) {
		t.Fatal("trust-ping is not a pickup type")
	}
}

func TestDispatchRejectsMalformedBody(t *testing.T) {
	d := newTestDispatcher()
	err := d.Dispatch(context.Background(), "did-a", envelope.Inner{Body: []byte("not json")})
	if err == nil {
		t.Fatal("expected message-unpack error")
	}
}

func TestDispatchRejectsMissingReturnRouteOnPickup(t *testing.T) {
	d := newTestDispatcher()
	msg := Message{Type: TypePickupStatusRequest}
	raw, _ := json.Marshal(msg)
	err := d.Dispatch(context.Background(), "did-a", envelope.Inner{Body: raw})
	if err == nil {
		t.Fatal("expected return-route-missing error")
	}
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	d := newTestDispatcher()
	msg := Message{Type: "https://example.org/unknown/1.0/thing"}
	raw, _ := json.Marshal(msg)
	err := d.Dispatch(context.Background(), "did-a", envelope.Inner{Body: raw})
	if err != errUnhandledType {
		t.Fatalf("expected errUnhandledType, got %v", err)
	}
}
