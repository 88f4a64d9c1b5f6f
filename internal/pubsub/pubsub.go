// Package pubsub implements the live-delivery fan-out bus: one Redis
// pub/sub channel per recipient DID hash, fanned out in-process to every
// connected WebSocket subscriber for that DID.
//
// A single Redis subscription is kept open per channel regardless of how
// many local WebSocket connections are bound to the same DID, so N
// concurrently-connected devices for one DID cost one upstream
// subscription, not N.
package pubsub

import (
	"context"
	"sync"

	"github.com/affinidi-community/didcomm-mediator/internal/kv"
)

// ChannelFor returns the live-delivery channel name for a DID hash. Kept
// exported so internal/mailbox publishes to exactly the channel name this
// package subscribes to.
func ChannelFor(didHash string) string { return "live:{" + didHash + "}" }

// Bus multiplexes Redis pub/sub channels to local subscribers.
type Bus struct {
	kv *kv.Store

	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	refs int
	subs map[*Subscription]struct{}
	stop context.CancelFunc
}

func New(store *kv.Store) *Bus {
	return &Bus{kv: store, topics: make(map[string]*topic)}
}

// Publish broadcasts payload to every subscriber of didHash, local and
// remote (other mediator instances sharing the same Redis).
func (b *Bus) Publish(ctx context.Context, didHash string, payload []byte) error {
	return b.kv.Publish(ctx, ChannelFor(didHash), payload)
}

// Subscription is a single WebSocket connection's view of a DID's live
// channel.
type Subscription struct {
	didHash string
	ch      chan []byte
	bus     *Bus
}

// Messages returns the channel new envelopes arrive on. It is closed when
// the subscription is closed or the underlying topic is torn down.
func (s *Subscription) Messages() <-chan []byte { return s.ch }

// Close detaches the subscription. Once the last subscriber for a DID
// leaves, the underlying Redis subscription is closed too.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Subscribe attaches a new local subscriber to didHash's live channel,
// opening the upstream Redis subscription on first use.
func (b *Bus) Subscribe(ctx context.Context, didHash string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{didHash: didHash, ch: make(chan []byte, 16), bus: b}

	t, ok := b.topics[didHash]
	if !ok {
		topicCtx, cancel := context.WithCancel(context.Background())
		t = &topic{subs: make(map[*Subscription]struct{}), stop: cancel}
		b.topics[didHash] = t
		go b.pump(topicCtx, didHash, t)
	}
	t.refs++
	t.subs[sub] = struct{}{}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sub.didHash]
	if !ok {
		return
	}
	delete(t.subs, sub)
	close(sub.ch)
	t.refs--
	if t.refs <= 0 {
		t.stop()
		delete(b.topics, sub.didHash)
	}
}

// pump runs the single upstream Redis subscription for one DID and fans
// every message out to all currently-attached local subscribers.
func (b *Bus) pump(ctx context.Context, didHash string, t *topic) {
	ps := b.kv.Subscribe(ctx, ChannelFor(didHash))
	defer ps.Close()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.fanOut(t, []byte(msg.Payload))
		}
	}
}

func (b *Bus) fanOut(t *topic, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range t.subs {
		select {
		case sub.ch <- payload:
		default:
			// Slow consumer: drop rather than block the shared pump. The
			// client falls back to message-pickup for anything missed.
		}
	}
}
