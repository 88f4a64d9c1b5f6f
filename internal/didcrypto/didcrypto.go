// Package didcrypto is the default wiring for two collaborators treated
// as external: DIDComm JWE/JWS pack/unpack and DID-document/service-endpoint
// resolution. Neither is implemented here beyond a plaintext-JSON reference
// shape good enough to run the mediator end-to-end against a test fixture;
// production deployments are expected to supply their own envelope.Unpacker
// and mediator.DIDResolver (a real DIDComm crypto stack, a DID-resolver
// client) and pass those into mediator.StackConfig instead of this
// package's types.
package didcrypto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
)

// wireEnvelope is the plaintext-JSON stand-in for a JWE/JWS outer
// envelope: a real Unpacker would instead verify a JWS signature and/or
// decrypt a JWE ciphertext per DIDComm v2 and return the same Outer shape.
type wireEnvelope struct {
	Anonymous bool            `json:"anonymous"`
	From      string          `json:"from,omitempty"`
	To        []string        `json:"to"`
	Body      json.RawMessage `json:"body"`
	TypeURI   string          `json:"type,omitempty"`
	Ephemeral json.RawMessage `json:"ephemeral,omitempty"`
}

// wireForward is the plaintext-JSON stand-in for an unwrapped
// routing/forward inner envelope (a DIDComm forward message).
type wireForward struct {
	To   []string        `json:"to"`
	Next string          `json:"next,omitempty"`
	Body json.RawMessage `json:"body"`
}

var ErrMalformedEnvelope = errors.New("didcrypto: malformed wire envelope")

// Unpacker implements envelope.Unpacker over the plaintext wire shape
// above. It performs no cryptographic verification: it exists so the
// mediator has a default it can run with before a real DIDComm crypto
// stack is wired in.
type Unpacker struct{}

func New() *Unpacker { return &Unpacker{} }

func (u *Unpacker) UnpackOuter(ctx context.Context, raw []byte) (envelope.Outer, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return envelope.Outer{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if !w.Anonymous && w.From == "" {
		return envelope.Outer{}, ErrMalformedEnvelope
	}

	recipients := make([]string, len(w.To))
	for i, to := range w.To {
		recipients[i] = account.NormalizeDID(to)
	}

	outer := envelope.Outer{
		Anonymous:       w.Anonymous,
		Recipients:      recipients,
		Plaintext:       w.Body,
		TypeURI:         w.TypeURI,
		EphemeralHeader: w.Ephemeral,
	}
	if !w.Anonymous {
		outer.FromDIDHash = account.NormalizeDID(w.From)
	}
	return outer, nil
}

// UnpackInnerForward reports whether outer's plaintext is a routing/forward
// wrapper and, if so, unwraps it.
func (u *Unpacker) UnpackInnerForward(ctx context.Context, outer envelope.Outer) (envelope.Inner, bool, error) {
	if outer.TypeURI != forwardTypeURI {
		return envelope.Inner{}, false, nil
	}
	var fwd wireForward
	if err := json.Unmarshal(outer.Plaintext, &fwd); err != nil {
		return envelope.Inner{}, false, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return envelope.Inner{From: outer.FromDIDHash, To: fwd.To, Body: fwd.Body}, true, nil
}

const forwardTypeURI = "https://didcomm.org/routing/2.0/forward"

// StaticResolver resolves a DID hash to a configured service endpoint from
// an in-memory map, a placeholder for a real DID-resolver client/cache.
type StaticResolver struct {
	endpoints map[string]string
}

func NewStaticResolver(endpoints map[string]string) *StaticResolver {
	return &StaticResolver{endpoints: endpoints}
}

var ErrNoServiceEndpoint = errors.New("didcrypto: no service endpoint for DID hash")

func (r *StaticResolver) ResolveServiceEndpoint(ctx context.Context, didHash string) (string, error) {
	endpoint, ok := r.endpoints[didHash]
	if !ok {
		return "", ErrNoServiceEndpoint
	}
	return endpoint, nil
}
