package mediator

import (
	"context"
	"testing"
)

func TestHashAndVerifyBootstrapToken(t *testing.T) {
	salt := []byte("0123456789abcdef")
	stored := hashBootstrapToken("correct-horse", salt)
	if err := verifyBootstrapToken("correct-horse", stored); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := verifyBootstrapToken("wrong", stored); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestVerifyBootstrapTokenRejectsMalformedHash(t *testing.T) {
	if err := verifyBootstrapToken("anything", "not-salt-colon-hash-format"); err == nil {
		t.Fatal("expected malformed-hash error")
	}
}

type stubResolver struct {
	endpoint string
	called   bool
}

func (s *stubResolver) ResolveServiceEndpoint(ctx context.Context, didHash string) (string, error) {
	s.called = true
	return s.endpoint, nil
}

func TestHopResolverDetectsSelfForward(t *testing.T) {
	external := &stubResolver{endpoint: "https://example.org/inbox"}
	r := &hopResolver{external: external, mediatorDIDHash: "self-hash"}

	endpoint, mediatorOwn, err := r.ResolveServiceEndpoint(context.Background(), "self-hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mediatorOwn {
		t.Fatal("expected mediatorOwn=true for the mediator's own hash")
	}
	if endpoint != "" {
		t.Fatalf("expected empty endpoint for self-forward, got %q", endpoint)
	}
	if external.called {
		t.Fatal("expected the external resolver not to be consulted for self-forwards")
	}
}

func TestHopResolverDelegatesToExternal(t *testing.T) {
	external := &stubResolver{endpoint: "https://example.org/inbox"}
	r := &hopResolver{external: external, mediatorDIDHash: "self-hash"}

	endpoint, mediatorOwn, err := r.ResolveServiceEndpoint(context.Background(), "other-hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mediatorOwn {
		t.Fatal("expected mediatorOwn=false for a remote hash")
	}
	if endpoint != external.endpoint {
		t.Fatalf("expected endpoint %q, got %q", external.endpoint, endpoint)
	}
	if !external.called {
		t.Fatal("expected the external resolver to be consulted")
	}
}
