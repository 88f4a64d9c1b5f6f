package account

import (
	"testing"

	"github.com/affinidi-community/didcomm-mediator/internal/acl"
	"github.com/affinidi-community/didcomm-mediator/internal/kv"
)

func TestNormalizeDIDHashesRawDID(t *testing.T) {
	got := NormalizeDID("did:example:alice")
	if len(got) != 64 {
		t.Fatalf("expected 64-char hex hash, got %d chars: %s", len(got), got)
	}
}

func TestNormalizeDIDPassesThroughExistingHash(t *testing.T) {
	hash := NormalizeDID("did:example:alice")
	got := NormalizeDID(hash)
	if got != hash {
		t.Fatalf("pre-hashed input should pass through unchanged: got %s want %s", got, hash)
	}
}

func TestTypeIsAdminClass(t *testing.T) {
	cases := map[Type]bool{
		TypeStandard:  false,
		TypeAdmin:     true,
		TypeRootAdmin: true,
		TypeMediator:  false,
		TypeUnknown:   false,
	}
	for typ, want := range cases {
		if got := typ.IsAdminClass(); got != want {
			t.Errorf("%s.IsAdminClass() = %v, want %v", typ, got, want)
		}
	}
}

func newTestStore() *Store {
	return New(kv.Open("127.0.0.1:0", "", 0), NormalizeDID("did:example:mediator"), 10, 100, 10, 100, 50)
}

func TestResolveLimitSpecialValues(t *testing.T) {
	s := newTestStore()
	if got := s.resolveLimit(LimitUnlimited, 10, 100, false); got != LimitUnlimited {
		t.Fatalf("LimitUnlimited should pass through, got %d", got)
	}
	if got := s.resolveLimit(LimitResetSoft, 10, 100, false); got != 10 {
		t.Fatalf("LimitResetSoft should resolve to soft default, got %d", got)
	}
}

func TestResolveLimitClampsNonAdmin(t *testing.T) {
	s := newTestStore()
	if got := s.resolveLimit(5, 10, 100, false); got != 10 {
		t.Fatalf("value below soft should clamp up to soft, got %d", got)
	}
	if got := s.resolveLimit(500, 10, 100, false); got != 100 {
		t.Fatalf("value above hard should clamp down to hard, got %d", got)
	}
	if got := s.resolveLimit(50, 10, 100, false); got != 50 {
		t.Fatalf("in-range value should pass through, got %d", got)
	}
}

func TestResolveLimitAdminBypassesClamp(t *testing.T) {
	s := newTestStore()
	if got := s.resolveLimit(500, 10, 100, true); got != 500 {
		t.Fatalf("admin caller should bypass clamp, got %d", got)
	}
}

func TestEffectiveHardCapFallsBackToConfiguredHard(t *testing.T) {
	s := newTestStore()
	if got := s.EffectiveRecvHardCap(&Account{RecvLimit: 0}); got != 100 {
		t.Fatalf("never-customized account should fall back to configured hard default, got %d", got)
	}
	if got := s.EffectiveRecvHardCap(nil); got != 100 {
		t.Fatalf("nil account should fall back to configured hard default, got %d", got)
	}
}

func TestEffectiveHardCapHonorsUnlimited(t *testing.T) {
	s := newTestStore()
	if got := s.EffectiveSendHardCap(&Account{SendLimit: LimitUnlimited}); got != -1 {
		t.Fatalf("LimitUnlimited account should disable the hard cap check, got %d", got)
	}
}

func TestEffectiveHardCapUsesCustomLimit(t *testing.T) {
	s := newTestStore()
	if got := s.EffectiveRecvHardCap(&Account{RecvLimit: 3}); got != 3 {
		t.Fatalf("custom recv limit should be used as-is, got %d", got)
	}
}

func TestIsProtectedMediatorAccount(t *testing.T) {
	s := newTestStore()
	if !s.isProtected(s.MediatorDIDHash()) {
		t.Fatal("mediator's own DID hash must be protected")
	}
	if s.isProtected(NormalizeDID("did:example:bob")) {
		t.Fatal("unrelated account must not be protected")
	}
}

func TestAccountStructHoldsACLMask(t *testing.T) {
	a := &Account{DIDHash: "x", ACL: acl.Mask(0).Set(acl.BitSendMessages, true)}
	if !a.ACL.SendMessages() {
		t.Fatal("account ACL mask should be readable through acl.Mask helpers")
	}
}
