package kv

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// The two scripts below are the only place mailbox byte/count counters are
// mutated. Running insert and delete as single EVALSHA calls is what keeps
// the byte counter equal to the sum of envelope sizes present, true under
// concurrent writers; a Go-side read-modify-write would race.

var mailboxInsertScript = redis.NewScript(`
local sendZset, sendCounter, recvZset, recvCounter, envelope = KEYS[1], KEYS[2], KEYS[3], KEYS[4], KEYS[5]
local contentHash, score, body, size, sender, recipient, receivedAt, expiresAt, ephemeral, sendHard, recvHard =
  ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7], ARGV[8], ARGV[9], ARGV[10], ARGV[11]

if redis.call('ZSCORE', recvZset, contentHash) then
  return 0
end

local sendCount = tonumber(redis.call('HGET', sendCounter, 'count') or '0')
local recvCount = tonumber(redis.call('HGET', recvCounter, 'count') or '0')

if tonumber(sendHard) >= 0 and sendCount >= tonumber(sendHard) then
  return -1
end
if tonumber(recvHard) >= 0 and recvCount >= tonumber(recvHard) then
  return -2
end

redis.call('HSET', envelope,
  'bytes', body,
  'sender', sender,
  'recipient', recipient,
  'size', size,
  'received_at', receivedAt,
  'expires_at', expiresAt,
  'ephemeral', ephemeral)

redis.call('ZADD', sendZset, score, contentHash)
redis.call('ZADD', recvZset, score, contentHash)
redis.call('HINCRBY', sendCounter, 'count', 1)
redis.call('HINCRBY', sendCounter, 'bytes', tonumber(size))
redis.call('HINCRBY', recvCounter, 'count', 1)
redis.call('HINCRBY', recvCounter, 'bytes', tonumber(size))
return 1
`)

var mailboxDeleteScript = redis.NewScript(`
local zset, counter, otherZset, envelope = KEYS[1], KEYS[2], KEYS[3], KEYS[4]
local contentHash = ARGV[1]

local score = redis.call('ZSCORE', zset, contentHash)
if not score then
  return 0
end

local size = tonumber(redis.call('HGET', envelope, 'size') or '0')
redis.call('ZREM', zset, contentHash)
redis.call('HINCRBY', counter, 'count', -1)
redis.call('HINCRBY', counter, 'bytes', -size)

if not redis.call('ZSCORE', otherZset, contentHash) then
  redis.call('DEL', envelope)
end
return 1
`)

// MailboxInsertResult mirrors the insert script's return codes.
type MailboxInsertResult int

const (
	MailboxInserted         MailboxInsertResult = 1
	MailboxDuplicateIgnored MailboxInsertResult = 0
	MailboxSendCapExceeded  MailboxInsertResult = -1
	MailboxRecvCapExceeded  MailboxInsertResult = -2
)

// MailboxInsertParams describes one message insertion into a sender's
// send-queue and a recipient's receive-queue.
type MailboxInsertParams struct {
	SendZsetKey    string
	SendCounterKey string
	RecvZsetKey    string
	RecvCounterKey string
	EnvelopeKey    string

	ContentHash string
	Score       float64
	Body        []byte
	Size        int
	Sender      string
	Recipient   string
	ReceivedAt  int64
	ExpiresAt   int64
	Ephemeral   bool

	SendHardCap int64 // -1 disables the cap check
	RecvHardCap int64
}

// MailboxInsert atomically dedupes, cap-checks, stores the envelope, and
// updates both queues' counters in a single script invocation.
func (s *Store) MailboxInsert(ctx context.Context, p MailboxInsertParams) (MailboxInsertResult, error) {
	ephemeral := "false"
	if p.Ephemeral {
		ephemeral = "true"
	}
	keys := []string{p.SendZsetKey, p.SendCounterKey, p.RecvZsetKey, p.RecvCounterKey, p.EnvelopeKey}
	args := []interface{}{
		p.ContentHash, p.Score, p.Body, p.Size, p.Sender, p.Recipient,
		p.ReceivedAt, p.ExpiresAt, ephemeral, p.SendHardCap, p.RecvHardCap,
	}
	res, err := mailboxInsertScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return 0, err
	}
	return MailboxInsertResult(res), nil
}

// MailboxDeleteParams describes removing one message from one queue side.
// Callers invoke this twice (once per queue) to fully remove a message;
// the envelope hash is only deleted once neither queue still references it.
type MailboxDeleteParams struct {
	ZsetKey      string
	CounterKey   string
	OtherZsetKey string
	EnvelopeKey  string
	ContentHash  string
}

// MailboxDelete atomically removes contentHash from one queue, adjusts its
// counters, and garbage-collects the envelope record if the paired queue no
// longer references it.
func (s *Store) MailboxDelete(ctx context.Context, p MailboxDeleteParams) (bool, error) {
	keys := []string{p.ZsetKey, p.CounterKey, p.OtherZsetKey, p.EnvelopeKey}
	res, err := mailboxDeleteScript.Run(ctx, s.rdb, keys, p.ContentHash).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
