package mailbox

import (
	"context"
	"strconv"

	"github.com/affinidi-community/didcomm-mediator/internal/kv"
)

const expirySweepBatch = 200

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func makeDeleteParams(zset, counter, other, envelope, hash string) kv.MailboxDeleteParams {
	return kv.MailboxDeleteParams{
		ZsetKey:      zset,
		CounterKey:   counter,
		OtherZsetKey: other,
		EnvelopeKey:  envelope,
		ContentHash:  hash,
	}
}

// SweepExpired removes messages whose expires-at has passed from both
// queues and the envelope hash expiry sweep. It returns
// the number of messages removed.
func (s *Store) SweepExpired(ctx context.Context, now int64) (int, error) {
	due, err := s.kv.ZRangeByScore(ctx, expiryIndexKey(), "-inf", itoa(now), expirySweepBatch)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, hash := range due {
		fields, err := s.kv.HGetAll(ctx, envelopeKey(hash))
		if err != nil {
			return removed, err
		}
		if len(fields) == 0 {
			if err := s.kv.ZRem(ctx, expiryIndexKey(), hash); err != nil {
				return removed, err
			}
			continue
		}

		sender, recipient := fields["sender"], fields["recipient"]
		if _, err := s.kv.MailboxDelete(ctx, makeDeleteParams(sendZsetKey(sender), sendCounterKey(sender), recvZsetKey(recipient), envelopeKey(hash), hash)); err != nil {
			return removed, err
		}
		if _, err := s.kv.MailboxDelete(ctx, makeDeleteParams(recvZsetKey(recipient), recvCounterKey(recipient), sendZsetKey(sender), envelopeKey(hash), hash)); err != nil {
			return removed, err
		}
		if err := s.kv.ZRem(ctx, expiryIndexKey(), hash); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
