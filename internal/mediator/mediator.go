// Package mediator wires the mediator's components into one running
// instance: one constructor that assembles every store and processor
// from config, a Run that blocks until the context is cancelled, and a
// Close that releases everything in reverse order.
package mediator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/authn"
	"github.com/affinidi-community/didcomm-mediator/internal/config"
	"github.com/affinidi-community/didcomm-mediator/internal/dispatch"
	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
	"github.com/affinidi-community/didcomm-mediator/internal/expiry"
	"github.com/affinidi-community/didcomm-mediator/internal/forward"
	"github.com/affinidi-community/didcomm-mediator/internal/kv"
	"github.com/affinidi-community/didcomm-mediator/internal/mailbox"
	"github.com/affinidi-community/didcomm-mediator/internal/metrics"
	"github.com/affinidi-community/didcomm-mediator/internal/oob"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
	"github.com/affinidi-community/didcomm-mediator/internal/pubsub"
)

// DIDResolver resolves a DID hash to its DIDComm service endpoint. The DID
// document cache and the resolution protocol itself are an external
// collaborator per the Non-goals; the mediator depends on one only
// through this interface.
type DIDResolver interface {
	ResolveServiceEndpoint(ctx context.Context, didHash string) (string, error)
}

// Unpacker is re-exported for callers assembling a StackConfig so they
// don't need to import internal/envelope directly.
type Unpacker = envelope.Unpacker

// StackConfig groups everything needed to build a Stack. Resolver and
// Unpacker are the DIDComm cryptographic and DID-resolution collaborators,
// treated as external; tests supply fakes, cmd/mediator wires
// internal/didcrypto's reference implementations.
type StackConfig struct {
	Config    config.Config
	Resolver  DIDResolver
	Unpacker  Unpacker
	Collector metrics.Collector // nil -> NoopCollector
	Logger    *slog.Logger      // nil -> slog.Default()
}

// Stack owns every component of a running mediator instance.
type Stack struct {
	Processor  *envelope.Processor
	Dispatcher *dispatch.Dispatcher
	Forward    *forward.Queue
	Expiry     *expiry.Sweeper
	Sessions   *authn.Manager
	Accounts   *account.Store
	Mailboxes  *mailbox.Store
	Bus        *pubsub.Bus
	OOB        *oob.Store
	Collector  metrics.Collector

	store      *kv.Store
	closers    []io.Closer
	logger     *slog.Logger
	metricsSrv *metrics.PrometheusServer

	bootstrapDID       string
	bootstrapToken     string
	bootstrapTokenHash string
}

// NewStack wires every component from cfg. It never starts background
// goroutines; call Run for that.
func NewStack(cfg StackConfig) (*Stack, error) {
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.Config.MediatorDID == "" {
		return nil, errors.New("mediator: Config.MediatorDID is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("mediator: Resolver is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	s := &Stack{
		logger:             logger,
		Collector:          collector,
		bootstrapDID:       cfg.Config.Auth.RootBootstrapDID,
		bootstrapToken:     cfg.Config.Auth.RootBootstrapToken,
		bootstrapTokenHash: cfg.Config.Auth.RootBootstrapTokenHash,
	}

	store := kv.Open(cfg.Config.Redis.Address, cfg.Config.Redis.Password, cfg.Config.Redis.DB)
	s.closers = append(s.closers, store)
	s.store = store

	mediatorDIDHash := account.NormalizeDID(cfg.Config.MediatorDID)

	accounts := account.New(store, mediatorDIDHash,
		cfg.Config.Queues.SendSoft, cfg.Config.Queues.SendHard,
		cfg.Config.Queues.ReceiveSoft, cfg.Config.Queues.ReceiveHard,
		cfg.Config.ACL.AccessListMax)
	s.Accounts = accounts

	bus := pubsub.New(store)
	s.Bus = bus

	mailboxes := mailbox.New(store, bus)
	s.Mailboxes = mailboxes

	s.OOB = oob.New(store)

	sessions := authn.New(store, cfg.Config.Auth.Secret)
	s.Sessions = sessions

	notifier := &mailboxNotifier{mailboxes: mailboxes, accounts: accounts, mediatorDIDHash: mediatorDIDHash}
	resolver := &hopResolver{external: cfg.Resolver, mediatorDIDHash: mediatorDIDHash}

	fwd := forward.New(store, forward.Config{
		Capacity:             cfg.Config.Forwarding.QueueCapacity,
		MaxDelay:             cfg.Config.Forwarding.MaxDelayDuration(),
		MaxAttempts:          cfg.Config.Forwarding.MaxAttempts,
		BaseBackoff:          cfg.Config.Forwarding.BaseBackoffDuration(),
		MaxBackoff:           cfg.Config.Forwarding.MaxBackoffDuration(),
		BlockRemoteAdminMsgs: cfg.Config.Policy.BlockRemoteAdminMsgs,
		SuppressDenialNotice: cfg.Config.Policy.SuppressForwardDenialNotice,
	}, resolver, notifier)
	s.Forward = fwd

	dispatcher := dispatch.New(dispatch.Config{
		AdminMessageTTL: cfg.Config.Timeouts.AdminMessagesTimeout(),
		MediatorDIDHash: mediatorDIDHash,
	}, accounts, mailboxes, bus)
	s.Dispatcher = dispatcher

	if cfg.Unpacker == nil {
		return nil, errors.New("mediator: Unpacker is required")
	}
	processor := envelope.New(envelope.Config{
		MaxEnvelopeBytes:             cfg.Config.Limits.MaxEnvelopeBytes,
		MaxRecipients:                cfg.Config.Limits.MaxRecipients,
		MaxRecipientKeys:             cfg.Config.Limits.MaxRecipientKeys,
		BlockAnonymousOuter:          cfg.Config.Policy.BlockAnonymousOuterEnvelope,
		ForceSessionDIDMatch:         cfg.Config.Policy.ForceSessionDIDMatch,
		LocalDirectDeliveryAllowed:   cfg.Config.Policy.LocalDirectDeliveryAllowed,
		LocalDirectDeliveryAllowAnon: cfg.Config.Policy.LocalDirectDeliveryAllowAnon,
		BlockRemoteAdminMsgs:         cfg.Config.Policy.BlockRemoteAdminMsgs,
		MediatorDIDHash:              mediatorDIDHash,
		BlockedDIDHashes:             map[string]bool{mediatorDIDHash: true},
	}, cfg.Unpacker, accounts, mailboxes, fwd, dispatcher)
	s.Processor = processor

	s.Expiry = expiry.New(mailboxes, accounts, cfg.Config.Expiry.SweepInterval())

	if cfg.Config.Metrics.Enabled {
		s.metricsSrv = metrics.NewPrometheusServer(cfg.Config.Metrics.Address, cfg.Config.Metrics.Path)
		s.closers = append(s.closers, closerFunc(func() error { return s.metricsSrv.Shutdown(context.Background()) }))
	}

	if err := s.bootstrapRootAdmin(context.Background()); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}

	return s, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Run starts the Stack's background processors (forwarding pump, expiry
// sweeper, Prometheus metrics listener if configured) and blocks until ctx
// is cancelled.
func (s *Stack) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() { errCh <- s.runForwardingPump(ctx) }()
	go func() { errCh <- s.Expiry.Run(ctx) }()
	if s.metricsSrv != nil {
		go func() {
			if err := s.metricsSrv.Start(ctx); err != nil && err != context.Canceled {
				errCh <- err
				return
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runForwardingPump repeatedly pops due forward tasks and delivers them,
// the same poll-and-drain loop internal/expiry.Sweeper.Run uses, scaled to
// the forwarding queue's shorter due-time granularity.
func (s *Stack) runForwardingPump(ctx context.Context) error {
	const batchSize = 50
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			tasks, err := s.Forward.PopDue(ctx, now, batchSize)
			if err != nil {
				s.logger.Error("forwarding pump: pop due failed", "error", err)
				continue
			}
			for _, t := range tasks {
				if err := s.Forward.Deliver(ctx, t, false); err != nil {
					s.logger.Warn("forwarding pump: delivery failed", "task", t.ID, "error", err)
					s.Collector.ForwardAttempt("failure")
				} else {
					s.Collector.ForwardAttempt("success")
				}
			}
		}
	}
}

// Close releases every closeable component in reverse registration order.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// hopResolver adapts the external DIDResolver into forward.NextHopResolver,
// adding the mediatorOwn check the work queue needs to reject self-forwards
// without every resolver implementation having to know the mediator's own
// hash.
type hopResolver struct {
	external        DIDResolver
	mediatorDIDHash string
}

func (r *hopResolver) ResolveServiceEndpoint(ctx context.Context, didHash string) (string, bool, error) {
	if didHash == r.mediatorDIDHash {
		return "", true, nil
	}
	endpoint, err := r.external.ResolveServiceEndpoint(ctx, didHash)
	return endpoint, false, err
}

// mailboxNotifier implements forward.Notifier by delivering the problem
// report straight into the sender's mailbox, the same direct-mailbox-write
// internal/dispatch's reply uses for mediator-originated messages.
type mailboxNotifier struct {
	mailboxes       *mailbox.Store
	accounts        *account.Store
	mediatorDIDHash string
}

func (n *mailboxNotifier) NotifyPermanentFailure(ctx context.Context, senderDIDHash string, report *problem.Report) error {
	if senderDIDHash == "" {
		return nil
	}
	recipientAcct, _ := n.accounts.Get(ctx, senderDIDHash)

	now := time.Now().UnixMilli()
	_, _, err := n.mailboxes.Put(ctx, mailbox.PutParams{
		Sender:      n.mediatorDIDHash,
		Recipient:   senderDIDHash,
		Envelope:    []byte(report.Error()),
		ReceivedAt:  now,
		ExpiresAt:   now + int64(time.Hour/time.Millisecond),
		SendHardCap: -1, // the mediator's own sends are never capped
		RecvHardCap: n.accounts.EffectiveRecvHardCap(recipientAcct),
	})
	return err
}
