package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
	"github.com/affinidi-community/didcomm-mediator/internal/logging"
	"github.com/affinidi-community/didcomm-mediator/internal/mailbox"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
	"github.com/affinidi-community/didcomm-mediator/internal/pubsub"
)

// Handler processes one dispatched message within the session's permission
// context. Handlers write state only through the account/mailbox/ACL
// stores, never touching the key-value store directly.
type Handler func(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error

// Config bundles the dispatcher's policy knobs.
type Config struct {
	AdminMessageTTL time.Duration // default 3s
	MediatorDIDHash string
}

// Dispatcher routes a fully-unwrapped, ACL-cleared message to its protocol
// handler and implements envelope.Dispatcher.
type Dispatcher struct {
	cfg       Config
	accounts  *account.Store
	mailboxes *mailbox.Store
	bus       *pubsub.Bus
	handlers  map[string]Handler
}

func New(cfg Config, accounts *account.Store, mailboxes *mailbox.Store, bus *pubsub.Bus) *Dispatcher {
	d := &Dispatcher{cfg: cfg, accounts: accounts, mailboxes: mailboxes, bus: bus}
	d.handlers = map[string]Handler{
		TypeTrustPing:                 handleTrustPing,
		TypePickupStatusRequest:       handlePickupStatusRequest,
		TypePickupLiveDeliveryChange:  handlePickupLiveDeliveryChange,
		TypePickupDeliveryRequest:     handlePickupDeliveryRequest,
		TypePickupMessagesReceived:    handlePickupMessagesReceived,
		TypeMediatorAdminManagement:   handleAdminManagement,
		TypeMediatorAccountManagement: handleAccountManagement,
		TypeMediatorACLManagement:     handleACLManagement,
	}
	return d
}

var errUnhandledType = errors.New("dispatch: no handler registered for message type")

// Dispatch implements envelope.Dispatcher: parses the plaintext body as a
// Message, enforces the pickup protocol's return_route requirement, and
// routes by type URI.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionDIDHash string, in envelope.Inner) error {
	var msg Message
	if err := json.Unmarshal(in.Body, &msg); err != nil {
		return problem.Wrap("e.p.message-unpack")
	}

	if isPickupType(msg.Type) && msg.ReturnRoute != "all" {
		return problem.Wrap("w.p.return-route-missing")
	}

	handler, ok := d.handlers[msg.Type]
	if !ok {
		logging.FromContext(ctx).Warn("dispatch: unhandled message type", "type", msg.Type)
		return errUnhandledType
	}
	return handler(ctx, d, sessionDIDHash, msg)
}

func isPickupType(typeURI string) bool {
	switch typeURI {
	case TypePickupStatusRequest, TypePickupStatus, TypePickupLiveDeliveryChange,
		TypePickupDeliveryRequest, TypePickupDelivery, TypePickupMessagesReceived:
		return true
	}
	return false
}

// reply delivers a mediator-originated message directly into the
// recipient's mailbox and live channel, bypassing the envelope pipeline's
// ACL gate: replies to a session's own requests are never subject to the
// sender/recipient permission check that gate governs.
func (d *Dispatcher) reply(ctx context.Context, to string, typeURI, thid string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := Message{
		ID:          uuid.NewString(),
		Type:        typeURI,
		From:        d.cfg.MediatorDIDHash,
		To:          []string{to},
		ThID:        thid,
		CreatedTime: time.Now().Unix(),
		Body:        payload,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	recipientAcct, _ := d.accounts.Get(ctx, to)

	now := time.Now().UnixMilli()
	_, _, err = d.mailboxes.Put(ctx, mailbox.PutParams{
		Sender:      d.cfg.MediatorDIDHash,
		Recipient:   to,
		Envelope:    raw,
		ReceivedAt:  now,
		ExpiresAt:   now + int64(time.Hour/time.Millisecond),
		SendHardCap: -1, // the mediator's own sends are never capped
		RecvHardCap: d.accounts.EffectiveRecvHardCap(recipientAcct),
	})
	return err
}

func handleTrustPing(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	var body struct {
		ResponseRequested bool `json:"response_requested"`
	}
	_ = json.Unmarshal(msg.Body, &body)
	if !body.ResponseRequested {
		return nil
	}
	return d.reply(ctx, sessionDIDHash, TypeTrustPingResponse, msg.ID, struct{}{})
}
