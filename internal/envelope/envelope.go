// Package envelope implements the envelope processing pipeline: the
// strict-order size/shape check, outer unwrap, signing-policy enforcement,
// inner-envelope handling, ACL gate, dispatch routing, and loop detection
// that every inbound DIDComm message passes through.
//
// The DIDComm cryptographic primitives (outer JWE/JWS pack/unpack) and the
// DID resolver cache are treated as external collaborators; this package
// depends on them only through the Unpacker interface below.
package envelope

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/acl"
	"github.com/affinidi-community/didcomm-mediator/internal/mailbox"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

// Outer is the result of unwrapping a raw wire message's outer envelope.
type Outer struct {
	Anonymous       bool
	FromDIDHash     string // empty when Anonymous
	Recipients      []string
	Plaintext       []byte
	TypeURI         string
	EphemeralHeader json.RawMessage // raw `ephemeral` header value, nil if absent
}

// Inner is the extracted forward-wrapper payload, present only when the
// outer plaintext's type URI is a routing/forward message.
type Inner struct {
	From string
	To   []string
	Body []byte
}

// Unpacker performs the cryptographic unwrap the envelope processor
// orchestrates around. Implementations resolve keys via the DID resolver
// cache (external, per the Non-goals).
type Unpacker interface {
	UnpackOuter(ctx context.Context, raw []byte) (Outer, error)
	UnpackInnerForward(ctx context.Context, outer Outer) (Inner, bool, error)
}

// ForwardTask is a pending outbound forward, enqueued to the forwarding
// processor's work queue.
type ForwardTask struct {
	SenderDIDHash string
	NextHopHash   string
	Envelope      []byte
	Anonymous     bool
	DelayMillis   int64
}

// Enqueuer hands a forward task to the forwarding processor's work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task ForwardTask) (accepted bool, err error)
}

// Dispatcher routes a fully-unwrapped, ACL-cleared message to its protocol
// handler. Implemented by internal/dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionDIDHash string, in Inner) error
}

// Outcome classifies how a message was ultimately handled.
type Outcome int

const (
	OutcomeDispatchedLocal Outcome = iota
	OutcomeStoredLocal
	OutcomeForwarded
	OutcomeLiveOnly
)

// Config bundles the processor's size/amplification limits and policy flags.
type Config struct {
	MaxEnvelopeBytes int
	MaxRecipients    int
	MaxRecipientKeys int

	BlockAnonymousOuter  bool
	ForceSessionDIDMatch bool

	LocalDirectDeliveryAllowed   bool
	LocalDirectDeliveryAllowAnon bool
	BlockRemoteAdminMsgs         bool

	MediatorDIDHash  string
	BlockedDIDHashes map[string]bool // loop-detection block list
}

// Processor runs the pipeline. It never touches the key-value store
// directly — only through the account and mailbox stores, and the
// Enqueuer/Dispatcher interfaces.
type Processor struct {
	cfg       Config
	unpacker  Unpacker
	accounts  *account.Store
	mailboxes *mailbox.Store
	forward   Enqueuer
	dispatch  Dispatcher
}

func New(cfg Config, unpacker Unpacker, accounts *account.Store, mailboxes *mailbox.Store, forward Enqueuer, dispatch Dispatcher) *Processor {
	return &Processor{cfg: cfg, unpacker: unpacker, accounts: accounts, mailboxes: mailboxes, forward: forward, dispatch: dispatch}
}

// Input is one raw inbound wire message plus its receive-time metadata.
type Input struct {
	Raw             []byte
	SessionDIDHash  string // empty for unauthenticated / OOB-only contexts
	ReceivedAtMilli int64
	DefaultTTLMilli int64
}

// Process runs the full pipeline for one inbound message.
func (p *Processor) Process(ctx context.Context, in Input) (Outcome, error) {
	if len(in.Raw) > p.cfg.MaxEnvelopeBytes {
		return 0, problem.Wrap("e.p.size-limit")
	}

	outer, err := p.unpacker.UnpackOuter(ctx, in.Raw)
	if err != nil {
		return 0, problem.Wrap("e.p.message-unpack")
	}

	if len(outer.Recipients) > p.cfg.MaxRecipients {
		return 0, problem.Wrap("e.p.recipient-limit")
	}

	ephemeral, err := mailbox.ParseEphemeralHeader(outer.EphemeralHeader)
	if err != nil {
		return 0, problem.Wrap("e.p.ephemeral-header-invalid")
	}

	if p.cfg.BlockAnonymousOuter && outer.Anonymous {
		return 0, problem.Wrap("e.p.anonymous-outer-envelope-forbidden")
	}
	if p.cfg.ForceSessionDIDMatch && in.SessionDIDHash != "" && outer.FromDIDHash != in.SessionDIDHash {
		return 0, problem.Wrap("e.p.session-mismatch")
	}

	inner, isForward, err := p.unpacker.UnpackInnerForward(ctx, outer)
	if err != nil {
		return 0, problem.Wrap("e.p.message-unpack")
	}
	if !isForward {
		inner = Inner{From: outer.FromDIDHash, To: outer.Recipients, Body: outer.Plaintext}
	}

	for _, recipientDID := range inner.To {
		if len(recipientDID) > p.cfg.MaxRecipientKeys*128 {
			return 0, problem.Wrap("e.p.recipient-limit")
		}
	}

	return p.route(ctx, outer, inner, in, ephemeral)
}

// route implements pipeline steps 5-7: ACL gate, dispatch fallback, and
// loop detection.
func (p *Processor) route(ctx context.Context, outer Outer, inner Inner, in Input, ephemeral bool) (Outcome, error) {
	if len(inner.To) == 0 {
		return 0, problem.Wrap("e.p.message-unpack")
	}
	recipientHash := account.NormalizeDID(inner.To[0])

	if recipientHash == p.cfg.MediatorDIDHash || p.cfg.BlockedDIDHashes[recipientHash] {
		return p.deliverLocal(ctx, outer, inner, recipientHash, in, true, nil, nil, ephemeral)
	}

	recipientAcct, err := p.accounts.Get(ctx, recipientHash)
	if errors.Is(err, account.ErrNotFound) {
		recipientAcct, err = p.accounts.Create(ctx, recipientHash, acl.Mask(0), account.TypeUnknown)
	}
	if err != nil {
		return 0, err
	}

	senderHash := outer.FromDIDHash
	var senderAcct *account.Account
	if !outer.Anonymous {
		senderAcct, err = p.accounts.Get(ctx, senderHash)
		if errors.Is(err, account.ErrNotFound) {
			senderAcct = &account.Account{DIDHash: senderHash}
		} else if err != nil {
			return 0, err
		}
	} else {
		senderAcct = &account.Account{}
	}

	allowed := acl.Permit(acl.ActionSendToLocal, outer.Anonymous, senderAcct.ACL, recipientAcct.ACL,
		recipientAcct.AccessList, senderHash, p.cfg.MediatorDIDHash)
	if !allowed {
		return 0, problem.Wrap("e.p.access-list-denied")
	}

	if recipientAcct.Type == account.TypeMediator || recipientHash == p.cfg.MediatorDIDHash {
		return p.deliverLocal(ctx, outer, inner, recipientHash, in, true, senderAcct, recipientAcct, ephemeral)
	}

	if p.isLocal(recipientAcct) {
		return p.deliverLocal(ctx, outer, inner, recipientHash, in, false, senderAcct, recipientAcct, ephemeral)
	}

	return p.forwardOut(ctx, outer, inner, recipientHash, in)
}

func (p *Processor) isLocal(recipientAcct *account.Account) bool {
	return p.cfg.LocalDirectDeliveryAllowed && recipientAcct.ACL.DIDLocal()
}

func (p *Processor) deliverLocal(ctx context.Context, outer Outer, inner Inner, recipientHash string, in Input, mediatorOwn bool, senderAcct, recipientAcct *account.Account, ephemeral bool) (Outcome, error) {
	if mediatorOwn && p.dispatch != nil {
		if err := p.dispatch.Dispatch(ctx, in.SessionDIDHash, inner); err != nil {
			return 0, err
		}
		return OutcomeDispatchedLocal, nil
	}
	if outer.Anonymous && !p.cfg.LocalDirectDeliveryAllowAnon {
		return 0, problem.Wrap("e.p.direct-delivery-denied")
	}

	result, _, err := p.mailboxes.Put(ctx, mailbox.PutParams{
		Sender:      outer.FromDIDHash,
		Recipient:   recipientHash,
		Envelope:    inner.Body,
		ReceivedAt:  in.ReceivedAtMilli,
		ExpiresAt:   in.ReceivedAtMilli + in.DefaultTTLMilli,
		Ephemeral:   ephemeral,
		SendHardCap: p.accounts.EffectiveSendHardCap(senderAcct),
		RecvHardCap: p.accounts.EffectiveRecvHardCap(recipientAcct),
	})
	if err != nil {
		return 0, err
	}
	switch result {
	case mailbox.ResultRejectedSenderCap:
		return 0, problem.Wrap("e.m.queue-limit-sender")
	case mailbox.ResultRejectedRecipientCap:
		return 0, problem.Wrap("e.m.queue-limit-recipient")
	case mailbox.ResultLiveOnly:
		return OutcomeLiveOnly, nil
	}
	return OutcomeStoredLocal, nil
}

func (p *Processor) forwardOut(ctx context.Context, outer Outer, inner Inner, recipientHash string, in Input) (Outcome, error) {
	if recipientHash == p.cfg.MediatorDIDHash {
		return 0, problem.Wrap("e.p.forwarding-next-is-self")
	}
	accepted, err := p.forward.Enqueue(ctx, ForwardTask{
		SenderDIDHash: outer.FromDIDHash,
		NextHopHash:   recipientHash,
		Envelope:      inner.Body,
		Anonymous:     outer.Anonymous,
	})
	if err != nil {
		return 0, err
	}
	if !accepted {
		return 0, problem.Wrap("e.p.forwarding-queue-saturated")
	}
	return OutcomeForwarded, nil
}
