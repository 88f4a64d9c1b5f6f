package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

// statusBody mirrors the message-pickup 3.0 status report, synthesised
// from mailbox counters.
type statusBody struct {
	RecipientDID    string `json:"recipient_did"`
	MessageCount    int64  `json:"message_count"`
	LongestWaitedMs int64  `json:"longest_waited_ms,omitempty"`
	TotalBytes      int64  `json:"total_bytes"`
	LiveDelivery    bool   `json:"live_delivery"`
}

func (d *Dispatcher) status(ctx context.Context, sessionDIDHash string) (statusBody, error) {
	count, bytes, err := d.mailboxes.Counts(ctx, sessionDIDHash)
	if err != nil {
		return statusBody{}, err
	}
	return statusBody{
		RecipientDID: sessionDIDHash,
		MessageCount: count,
		TotalBytes:   bytes,
	}, nil
}

func handlePickupStatusRequest(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	status, err := d.status(ctx, sessionDIDHash)
	if err != nil {
		return err
	}
	return d.reply(ctx, sessionDIDHash, TypePickupStatus, msg.ID, status)
}

// handlePickupLiveDeliveryChange acknowledges a live-delivery preference
// toggle with a fresh status report. Live-delivery itself is driven by
// whether the requesting connection holds an open internal/pubsub
// subscription, not by any stored flag here.
func handlePickupLiveDeliveryChange(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	var body struct {
		LiveDelivery bool `json:"live_delivery"`
	}
	_ = json.Unmarshal(msg.Body, &body)
	status, err := d.status(ctx, sessionDIDHash)
	if err != nil {
		return err
	}
	status.LiveDelivery = body.LiveDelivery
	return d.reply(ctx, sessionDIDHash, TypePickupStatus, msg.ID, status)
}

type attachment struct {
	ID   string `json:"id"`
	Data struct {
		Base64 string `json:"base64"`
	} `json:"data"`
}

type deliveryBody struct {
	RecipientDID string       `json:"recipient_did"`
	Attachments  []attachment `json:"attachments~attach,omitempty"`
}

// handlePickupDeliveryRequest implements the "delivery requests
// return <= 100 messages as attachments" contract.
func handlePickupDeliveryRequest(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	var body struct {
		Limit int64 `json:"limit"`
	}
	_ = json.Unmarshal(msg.Body, &body)

	messages, err := d.mailboxes.List(ctx, sessionDIDHash, body.Limit, -1)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		status, err := d.status(ctx, sessionDIDHash)
		if err != nil {
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypePickupStatus, msg.ID, status)
	}

	attachments := make([]attachment, 0, len(messages))
	for _, m := range messages {
		a := attachment{ID: m.ContentHash}
		a.Data.Base64 = base64.StdEncoding.EncodeToString(m.Envelope)
		attachments = append(attachments, a)
	}
	return d.reply(ctx, sessionDIDHash, TypePickupDelivery, msg.ID, deliveryBody{
		RecipientDID: sessionDIDHash,
		Attachments:  attachments,
	})
}

// handlePickupMessagesReceived deletes the acknowledged ids and returns a
// fresh status.
func handlePickupMessagesReceived(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	var body struct {
		MessageIDList []string `json:"message_id_list"`
	}
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return problem.Wrap("e.p.message-unpack")
	}
	if err := d.mailboxes.Delete(ctx, sessionDIDHash, body.MessageIDList); err != nil {
		return err
	}
	status, err := d.status(ctx, sessionDIDHash)
	if err != nil {
		return err
	}
	return d.reply(ctx, sessionDIDHash, TypePickupStatus, msg.ID, status)
}
