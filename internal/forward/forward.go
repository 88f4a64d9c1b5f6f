// Package forward implements the forwarding processor: a bounded,
// due-time-ordered work queue, next-hop resolution, transport, and
// exponential-backoff retry on transient failure. The retry loop is
// built on github.com/cenkalti/backoff/v4.
package forward

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
	"github.com/affinidi-community/didcomm-mediator/internal/kv"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

func queueKey() string          { return "forward:queue" }
func taskKey(id string) string { return "forward:task:{" + id + "}" }

// NextHopResolver resolves a DID hash to the service endpoint it should be
// forwarded to. Implemented against the DID resolver cache, an external
// collaborator per the Non-goals.
type NextHopResolver interface {
	ResolveServiceEndpoint(ctx context.Context, didHash string) (endpoint string, mediatorOwn bool, err error)
}

// Notifier delivers a permanent-failure problem report back to the
// original sender, suppressible by config.
type Notifier interface {
	NotifyPermanentFailure(ctx context.Context, senderDIDHash string, report *problem.Report) error
}

// Config bundles the work queue's bounds and retry policy.
type Config struct {
	Capacity                int
	MaxDelay                time.Duration // scheduling horizon, default 1 day
	MaxAttempts             int
	BaseBackoff, MaxBackoff time.Duration
	BlockRemoteAdminMsgs    bool
	SuppressDenialNotice    bool
}

// Queue is the Redis-backed forwarding work queue.
type Queue struct {
	kv       *kv.Store
	cfg      Config
	resolver NextHopResolver
	notifier Notifier
	client   *http.Client
}

func New(store *kv.Store, cfg Config, resolver NextHopResolver, notifier Notifier) *Queue {
	return &Queue{kv: store, cfg: cfg, resolver: resolver, notifier: notifier, client: &http.Client{Timeout: 10 * time.Second}}
}

// Enqueue implements envelope.Enqueuer: admits a forward task if the queue
// has capacity, scheduling it at its resolved due time.
func (q *Queue) Enqueue(ctx context.Context, task envelope.ForwardTask) (bool, error) {
	depth, err := q.kv.ZCard(ctx, queueKey())
	if err != nil {
		return false, err
	}
	if int(depth) >= q.cfg.Capacity {
		return false, nil
	}

	delay := resolveDelay(task.DelayMillis, q.cfg.MaxDelay)
	dueAt := time.Now().Add(delay)

	id := uuid.NewString()
	if err := q.kv.HSet(ctx, taskKey(id), map[string]interface{}{
		"sender":    task.SenderDIDHash,
		"next_hop":  task.NextHopHash,
		"envelope":  task.Envelope,
		"anonymous": task.Anonymous,
		"attempts":  0,
	}); err != nil {
		return false, err
	}
	if err := q.kv.ZAdd(ctx, queueKey(), float64(dueAt.UnixMilli()), id); err != nil {
		return false, err
	}
	return true, nil
}

// resolveDelay implements the delay-scheduling rule: a negative
// delay_milli selects a uniform-random non-negative delay; anything else
// is clamped to the configured scheduling horizon.
func resolveDelay(delayMillis int64, horizon time.Duration) time.Duration {
	if delayMillis < 0 {
		return time.Duration(rand.Int63n(int64(horizon)))
	}
	d := time.Duration(delayMillis) * time.Millisecond
	if d > horizon {
		return horizon
	}
	return d
}

// Task is one popped, due work item.
type Task struct {
	ID        string
	Sender    string
	NextHop   string
	Envelope  []byte
	Anonymous bool
	Attempts  int
}

// PopDue pops up to n tasks whose due time has passed.
func (q *Queue) PopDue(ctx context.Context, now time.Time, n int64) ([]Task, error) {
	ids, err := q.kv.ZRangeByScore(ctx, queueKey(), "-inf", strconv.FormatInt(now.UnixMilli(), 10), n)
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		fields, err := q.kv.HGetAll(ctx, taskKey(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			if err := q.kv.ZRem(ctx, queueKey(), id); err != nil {
				return nil, err
			}
			continue
		}
		attempts, _ := strconv.Atoi(fields["attempts"])
		tasks = append(tasks, Task{
			ID:        id,
			Sender:    fields["sender"],
			NextHop:   fields["next_hop"],
			Envelope:  []byte(fields["envelope"]),
			Anonymous: fields["anonymous"] == "true",
			Attempts:  attempts,
		})
		if err := q.kv.ZRem(ctx, queueKey(), id); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// Deliver attempts one forwarding attempt: resolve next hop, enforce the
// admin-message remote-forward restriction, POST the envelope, and on
// transient failure re-enqueue with exponential backoff bounded by
// cfg.MaxAttempts. Permanent failures notify the original sender unless
// suppressed.
func (q *Queue) Deliver(ctx context.Context, t Task, isAdminMessage bool) error {
	endpoint, mediatorOwn, err := q.resolver.ResolveServiceEndpoint(ctx, t.NextHop)
	if err != nil {
		return q.retryOrFail(ctx, t, err)
	}
	if mediatorOwn {
		return q.fail(ctx, t, problem.Wrap("e.p.forwarding-next-is-self"))
	}
	if isAdminMessage && q.cfg.BlockRemoteAdminMsgs {
		return q.fail(ctx, t, problem.Wrap("e.p.direct-delivery-denied"))
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(t.Envelope))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/didcomm-encrypted+json")
		resp, err := q.client.Do(req)
		if err != nil {
			return err // transient: network error
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errors.New("forward: next hop returned server error")
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(errors.New("forward: next hop rejected the message"))
		}
		return nil
	}

	bo := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(q.cfg.BaseBackoff),
			backoff.WithMaxInterval(q.cfg.MaxBackoff),
		),
		uint64(max(0, q.cfg.MaxAttempts-t.Attempts-1)),
	)

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return q.retryOrFail(ctx, t, err)
	}
	return nil
}

func (q *Queue) retryOrFail(ctx context.Context, t Task, cause error) error {
	if t.Attempts+1 >= q.cfg.MaxAttempts {
		return q.fail(ctx, t, problem.New("e.p.forwarding-transient-exhausted", cause.Error(), false, http.StatusBadGateway))
	}
	if err := q.kv.HSet(ctx, taskKey(t.ID), map[string]interface{}{
		"sender":    t.Sender,
		"next_hop":  t.NextHop,
		"envelope":  t.Envelope,
		"anonymous": t.Anonymous,
		"attempts":  t.Attempts + 1,
	}); err != nil {
		return err
	}
	delay := q.cfg.BaseBackoff << uint(t.Attempts)
	if delay <= 0 || (q.cfg.MaxBackoff > 0 && delay > q.cfg.MaxBackoff) {
		delay = q.cfg.MaxBackoff
	}
	dueAt := time.Now().Add(delay)
	return q.kv.ZAdd(ctx, queueKey(), float64(dueAt.UnixMilli()), t.ID)
}

func (q *Queue) fail(ctx context.Context, t Task, report *problem.Report) error {
	if q.cfg.SuppressDenialNotice || q.notifier == nil {
		return nil
	}
	return q.notifier.NotifyPermanentFailure(ctx, t.Sender, report)
}

