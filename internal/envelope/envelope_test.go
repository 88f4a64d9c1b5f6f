package envelope

import (
	"context"
	"testing"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
)

type stubUnpacker struct {
	outer      Outer
	outerErr   error
	inner      Inner
	innerIsFwd bool
	innerErr   error
}

func (s *stubUnpacker) UnpackOuter(ctx context.Context, raw []byte) (Outer, error) {
	return s.outer, s.outerErr
}

func (s *stubUnpacker) UnpackInnerForward(ctx context.Context, outer Outer) (Inner, bool, error) {
	return s.inner, s.innerIsFwd, s.innerErr
}

func TestProcessRejectsOversizedEnvelope(t *testing.T) {
	p := &Processor{cfg: Config{MaxEnvelopeBytes: 4}}
	_, err := p.Process(context.Background(), Input{Raw: []byte("too long")})
	if err == nil {
		t.Fatal("expected size-limit error")
	}
}

func TestProcessRejectsTooManyRecipients(t *testing.T) {
	p := &Processor{
		cfg: Config{MaxEnvelopeBytes: 1000, MaxRecipients: 1},
		unpacker: &stubUnpacker{
			outer: Outer{Recipients: []string{"a", "b"}},
		},
	}
	_, err := p.Process(context.Background(), Input{Raw: []byte("x")})
	if err == nil {
		t.Fatal("expected recipient-limit error")
	}
}

func TestProcessRejectsAnonymousWhenBlocked(t *testing.T) {
	p := &Processor{
		cfg: Config{MaxEnvelopeBytes: 1000, MaxRecipients: 10, BlockAnonymousOuter: true},
		unpacker: &stubUnpacker{
			outer: Outer{Anonymous: true, Recipients: []string{"a"}},
		},
	}
	_, err := p.Process(context.Background(), Input{Raw: []byte("x")})
	if err == nil {
		t.Fatal("expected anonymous-outer-envelope-forbidden error")
	}
}

func TestProcessRejectsSessionMismatch(t *testing.T) {
	p := &Processor{
		cfg: Config{MaxEnvelopeBytes: 1000, MaxRecipients: 10, ForceSessionDIDMatch: true},
		unpacker: &stubUnpacker{
			outer: Outer{FromDIDHash: "did-a", Recipients: []string{"a"}},
		},
	}
	_, err := p.Process(context.Background(), Input{Raw: []byte("x"), SessionDIDHash: "did-b"})
	if err == nil {
		t.Fatal("expected session-mismatch error")
	}
}

func TestIsLocalRequiresPolicyAndFlag(t *testing.T) {
	p := &Processor{cfg: Config{LocalDirectDeliveryAllowed: false}}
	acct := &account.Account{}
	if p.isLocal(acct) {
		t.Fatal("direct delivery disabled by policy must not be local")
	}
}

func TestProcessRejectsNonBooleanEphemeralHeader(t *testing.T) {
	p := &Processor{
		cfg: Config{MaxEnvelopeBytes: 1000, MaxRecipients: 10},
		unpacker: &stubUnpacker{
			outer: Outer{Recipients: []string{"a"}, EphemeralHeader: []byte(`"true"`)},
		},
	}
	_, err := p.Process(context.Background(), Input{Raw: []byte("x")})
	if err == nil {
		t.Fatal("expected ephemeral-header-invalid error")
	}
}
