// Package mailbox implements the per-DID send/receive queue pair: atomic
// insert with cap enforcement and content-hash dedupe, oldest-first
// pickup, acknowledged delete, and the expiry sweep. All counter mutation
// happens through internal/kv's embedded scripts so the byte-counter
// invariant holds under concurrent writers.
package mailbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/affinidi-community/didcomm-mediator/internal/kv"
	"github.com/affinidi-community/didcomm-mediator/internal/pubsub"
)

const maxList = 100 // pickup contract hard ceiling

// Result classifies the outcome of Put.
type Result int

const (
	ResultStored Result = iota
	ResultDuplicate
	ResultLiveOnly
	ResultRejectedSenderCap
	ResultRejectedRecipientCap
)

var ErrEphemeralHeaderInvalid = errors.New("mailbox: ephemeral header must be a JSON boolean")

// Message is the immutable record stored here tuple definition.
type Message struct {
	ContentHash string
	Sender      string
	Recipient   string
	Envelope    []byte
	Size        int
	ReceivedAt  int64
	ExpiresAt   int64
	Ephemeral   bool
}

// Store is the Redis-backed mailbox store.
type Store struct {
	kv   *kv.Store
	bus  *pubsub.Bus
}

func New(store *kv.Store, bus *pubsub.Bus) *Store {
	return &Store{kv: store, bus: bus}
}

func sendZsetKey(hash string) string    { return "mailbox:{" + hash + "}:send" }
func recvZsetKey(hash string) string    { return "mailbox:{" + hash + "}:recv" }
func sendCounterKey(hash string) string { return "mailbox:{" + hash + "}:counters:send" }
func recvCounterKey(hash string) string { return "mailbox:{" + hash + "}:counters:recv" }
func envelopeKey(contentHash string) string { return "envelope:{" + contentHash + "}" }
func expiryIndexKey() string            { return "mailbox:expiry-index" }

// ContentHash computes the dedupe identifier for raw envelope bytes: the
// SHA-256 hex digest of the envelope bytes, used as the message id.
func ContentHash(envelope []byte) string {
	sum := sha256.Sum256(envelope)
	return hex.EncodeToString(sum[:])
}

// PutParams bundles the caller-resolved inputs Put needs. The sender and
// recipient hard caps come from the account store; mailbox has no opinion
// on account policy.
type PutParams struct {
	Sender, Recipient   string
	Envelope            []byte
	ReceivedAt          int64
	ExpiresAt           int64
	Ephemeral           bool
	SendHardCap         int64 // -1 disables the check (unlimited)
	RecvHardCap         int64
}

// Put implements the insert contract. Ephemeral messages are
// published to the recipient's live channel and never persisted.
func (s *Store) Put(ctx context.Context, p PutParams) (Result, string, error) {
	hash := ContentHash(p.Envelope)

	if p.Ephemeral {
		if err := s.bus.Publish(ctx, p.Recipient, p.Envelope); err != nil {
			return 0, hash, err
		}
		return ResultLiveOnly, hash, nil
	}

	score, err := s.arrivalScore(ctx, p.ReceivedAt)
	if err != nil {
		return 0, hash, err
	}

	res, err := s.kv.MailboxInsert(ctx, kv.MailboxInsertParams{
		SendZsetKey:    sendZsetKey(p.Sender),
		SendCounterKey: sendCounterKey(p.Sender),
		RecvZsetKey:    recvZsetKey(p.Recipient),
		RecvCounterKey: recvCounterKey(p.Recipient),
		EnvelopeKey:    envelopeKey(hash),
		ContentHash:    hash,
		Score:          score,
		Body:           p.Envelope,
		Size:           len(p.Envelope),
		Sender:         p.Sender,
		Recipient:      p.Recipient,
		ReceivedAt:     p.ReceivedAt,
		ExpiresAt:      p.ExpiresAt,
		Ephemeral:      false,
		SendHardCap:    p.SendHardCap,
		RecvHardCap:    p.RecvHardCap,
	})
	if err != nil {
		return 0, hash, err
	}

	switch res {
	case kv.MailboxDuplicateIgnored:
		return ResultDuplicate, hash, nil
	case kv.MailboxSendCapExceeded:
		return ResultRejectedSenderCap, hash, nil
	case kv.MailboxRecvCapExceeded:
		return ResultRejectedRecipientCap, hash, nil
	}

	if err := s.kv.ZAdd(ctx, expiryIndexKey(), float64(p.ExpiresAt), hash); err != nil {
		return 0, hash, err
	}
	if err := s.bus.Publish(ctx, p.Recipient, p.Envelope); err != nil {
		return 0, hash, err
	}
	return ResultStored, hash, nil
}

// arrivalScore combines millisecond epoch with a 0-999 monotonic
// tiebreaker arrival-order key.
func (s *Store) arrivalScore(ctx context.Context, millis int64) (float64, error) {
	tiebreak, err := s.kv.IncrBy(ctx, "mailbox:tiebreak", 1)
	if err != nil {
		return 0, err
	}
	return float64(millis)*1000 + float64(tiebreak%1000), nil
}

// List implements the pickup contract: the oldest
// min(limit, hard_cap, 100) messages in recipient's receive queue.
func (s *Store) List(ctx context.Context, recipient string, limit, hardCap int64) ([]Message, error) {
	n := limit
	if hardCap >= 0 && hardCap < n {
		n = hardCap
	}
	if n > maxList || n <= 0 {
		n = maxList
	}

	hashes, err := s.kv.ZRange(ctx, recvZsetKey(recipient), 0, n-1)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(hashes))
	for _, h := range hashes {
		fields, err := s.kv.HGetAll(ctx, envelopeKey(h))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		messages = append(messages, messageFromFields(h, fields))
	}
	return messages, nil
}

// Delete implements the delete contract: removes up to 100
// content-hashes from recipient's receive queue, garbage-collecting the
// envelope record once no queue references it.
func (s *Store) Delete(ctx context.Context, recipient string, contentHashes []string) error {
	if len(contentHashes) > maxList {
		contentHashes = contentHashes[:maxList]
	}
	for _, hash := range contentHashes {
		sender, err := s.kv.HGet(ctx, envelopeKey(hash), "sender")
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := s.kv.MailboxDelete(ctx, kv.MailboxDeleteParams{
			ZsetKey:      recvZsetKey(recipient),
			CounterKey:   recvCounterKey(recipient),
			OtherZsetKey: sendZsetKey(sender),
			EnvelopeKey:  envelopeKey(hash),
			ContentHash:  hash,
		}); err != nil {
			return err
		}
		if err := s.kv.ZRem(ctx, expiryIndexKey(), hash); err != nil {
			return err
		}
	}
	return nil
}

// Counts returns the current count/bytes pair for recipient's receive
// queue, used to synthesize message-pickup status reports.
func (s *Store) Counts(ctx context.Context, hash string) (count, bytes int64, err error) {
	fields, err := s.kv.HGetAll(ctx, recvCounterKey(hash))
	if err != nil {
		return 0, 0, err
	}
	return parseCounter(fields, "count"), parseCounter(fields, "bytes"), nil
}

// SendCounts mirrors Counts for the send-queue side, used by the expiry
// sweeper to decide whether an auto-created account has ever been used.
func (s *Store) SendCounts(ctx context.Context, hash string) (count, bytes int64, err error) {
	fields, err := s.kv.HGetAll(ctx, sendCounterKey(hash))
	if err != nil {
		return 0, 0, err
	}
	return parseCounter(fields, "count"), parseCounter(fields, "bytes"), nil
}

func messageFromFields(hash string, fields map[string]string) Message {
	return Message{
		ContentHash: hash,
		Sender:      fields["sender"],
		Recipient:   fields["recipient"],
		Envelope:    []byte(fields["bytes"]),
		Size:        int(parseCounter(fields, "size")),
		ReceivedAt:  parseCounter(fields, "received_at"),
		ExpiresAt:   parseCounter(fields, "expires_at"),
		Ephemeral:   fields["ephemeral"] == "true",
	}
}

func parseCounter(fields map[string]string, key string) int64 {
	n, _ := strconv.ParseInt(fields[key], 10, 64)
	return n
}
