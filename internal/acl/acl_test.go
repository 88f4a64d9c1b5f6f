package acl

import "testing"

func TestEncodeDecodeHexRoundTrip(t *testing.T) {
	m := Mask(0).Set(BitSendMessages, true).Set(BitReceiveForwarded, true)
	hexStr := m.EncodeHex()
	got, err := DecodeHex(hexStr)
	if err != nil {
		t.Fatalf("DecodeHex: %v", err)
	}
	if got != m {
		t.Fatalf("roundtrip mismatch: got %v want %v", got, m)
	}
}

func TestDecodeHexInvalid(t *testing.T) {
	if _, err := DecodeHex("not-hex"); err == nil {
		t.Fatal("expected error for invalid literal")
	}
	if _, err := DecodeHex("ab"); err == nil {
		t.Fatal("expected error for short literal")
	}
}

func TestParseRuleAllowAll(t *testing.T) {
	m, err := ParseRule(RuleAllowAll)
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if !m.SendMessages() || !m.ReceiveMessages() || !m.SendForwarded() || !m.ReceiveForwarded() {
		t.Fatal("allow_all should grant send/receive and forwarding")
	}
}

func TestParseRuleDenyAll(t *testing.T) {
	m, err := ParseRule(RuleDenyAll)
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if !m.DIDBlocked() {
		t.Fatal("deny_all should set did-blocked")
	}
}

func TestPermitBlockedSubjectAlwaysDenied(t *testing.T) {
	subject := Mask(0).Set(BitDIDBlocked, true).Set(BitSendMessages, true)
	object := Mask(0).Set(BitReceiveMessages, true)
	if Permit(ActionSendToLocal, false, subject, object, nil, "a", "m") {
		t.Fatal("blocked subject must never be permitted")
	}
}

func TestPermitSendToLocalRequiresBothSides(t *testing.T) {
	subject := Mask(0).Set(BitSendMessages, true)
	object := Mask(0) // receive not granted
	if Permit(ActionSendToLocal, false, subject, object, nil, "a", "m") {
		t.Fatal("object without receive-messages must deny")
	}
}

func TestPermitAnonymousRequiresAnonReceive(t *testing.T) {
	subject := Mask(0).Set(BitSendMessages, true)
	object := Mask(0).Set(BitReceiveMessages, true)
	if Permit(ActionSendToLocal, true, subject, object, nil, "a", "m") {
		t.Fatal("anonymous sender without anon-receive grant must deny")
	}
	object = object.Set(BitAnonReceive, true).Set(BitAccessListMode, true)
	if !Permit(ActionSendToLocal, true, subject, object, nil, "a", "m") {
		t.Fatal("anonymous sender with anon-receive grant and an empty deny-list must be permitted")
	}
}

func TestPermitAllowListMode(t *testing.T) {
	subject := Mask(0).Set(BitSendMessages, true)
	object := Mask(0).Set(BitReceiveMessages, true) // allow-list mode (bit0=0)
	if Permit(ActionSendToLocal, false, subject, object, nil, "a", "m") {
		t.Fatal("allow-list mode with empty list and non-mediator subject must deny")
	}
	if !Permit(ActionSendToLocal, false, subject, object, []string{"a"}, "a", "m") {
		t.Fatal("allow-list mode with subject present must permit")
	}
}

func TestPermitDenyListMode(t *testing.T) {
	subject := Mask(0).Set(BitSendMessages, true)
	object := Mask(0).Set(BitReceiveMessages, true).Set(BitAccessListMode, true) // deny-list
	if !Permit(ActionSendToLocal, false, subject, object, nil, "a", "m") {
		t.Fatal("deny-list mode with empty list must permit")
	}
	if Permit(ActionSendToLocal, false, subject, object, []string{"a"}, "a", "m") {
		t.Fatal("deny-list mode with subject present must deny")
	}
}

func TestPermitMediatorBypassesList(t *testing.T) {
	subject := Mask(0).Set(BitSendMessages, true)
	object := Mask(0).Set(BitReceiveMessages, true) // allow-list, empty
	if !Permit(ActionSendToLocal, false, subject, object, nil, "med", "med") {
		t.Fatal("mediator DID hash must bypass list gating")
	}
}

func TestCanWriteOwnerRequiresSelfChangeBit(t *testing.T) {
	mask := Mask(0)
	if CanWrite(false, true, mask, BitSendMessages) {
		t.Fatal("owner without self-change bit must not be able to write")
	}
	mask = mask.Set(BitSendMessagesSelf, true)
	if !CanWrite(false, true, mask, BitSendMessages) {
		t.Fatal("owner with self-change bit set should be able to write")
	}
}

func TestCanWriteProtectedBitsNeverSelfWritable(t *testing.T) {
	if CanWrite(false, true, Mask(0), BitSelfManageList) {
		t.Fatal("self-manage-list must never be self-writable by a non-admin owner")
	}
}

func TestCanWriteAdminOnOtherAccountAlwaysAllowed(t *testing.T) {
	if !CanWrite(true, false, Mask(0), BitSelfManageList) {
		t.Fatal("admin acting on another account must be able to write any bit")
	}
}
