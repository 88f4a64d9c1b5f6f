// Package acl implements the mediator's 64-bit per-account permission
// bitmask: decoding/encoding and the pure permit() evaluation contract.
// The evaluator never touches storage — account/mailbox state is the
// account store's concern.
package acl

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Bit positions, per the normative table. Each paired self-change bit
// authorizes the account owner to toggle the action bit without admin
// intervention.
const (
	BitAccessListMode          = 0
	BitAccessListModeSelf      = 1
	BitDIDBlocked              = 2
	BitDIDLocal                = 3
	BitSendMessages            = 4
	BitSendMessagesSelf        = 5
	BitReceiveMessages         = 6
	BitReceiveMessagesSelf     = 7
	BitSendForwarded           = 8
	BitSendForwardedSelf       = 9
	BitReceiveForwarded        = 10
	BitReceiveForwardedSelf    = 11
	BitCreateInvites           = 12
	BitCreateInvitesSelf       = 13
	BitAnonReceive             = 14
	BitAnonReceiveSelf         = 15
	BitSelfManageList          = 16
	BitSelfManageSendLimit     = 17
	BitSelfManageReceiveLimit  = 18
)

// selfChangeOf maps an action bit to its paired self-change bit. Bits with
// no self-change pairing (did-blocked, did-local, and the three
// self-manage-* flags themselves) are absent from this map.
var selfChangeOf = map[uint]uint{
	BitAccessListMode:  BitAccessListModeSelf,
	BitSendMessages:    BitSendMessagesSelf,
	BitReceiveMessages: BitReceiveMessagesSelf,
	BitSendForwarded:   BitSendForwardedSelf,
	BitReceiveForwarded: BitReceiveForwardedSelf,
	BitCreateInvites:   BitCreateInvitesSelf,
	BitAnonReceive:     BitAnonReceiveSelf,
}

// protectedFromSelfDisable lists bits an admin can set on another account
// but a self-change can never clear on its own account.
var protectedFromSelfDisable = map[uint]bool{
	BitSelfManageList:         true,
	BitSelfManageSendLimit:    true,
	BitSelfManageReceiveLimit: true,
}

// Mask is the 64-bit little-endian permission bitmask.
type Mask uint64

// Named convenience rule strings recognised at the configuration layer
// and resolved to a concrete Mask here.
const (
	RuleAllowAll          = "allow_all"
	RuleDenyAll           = "deny_all"
	RuleModeExplicitAllow = "mode_explicit_allow"
	RuleModeExplicitDeny  = "mode_explicit_deny"
)

// ParseRule resolves a convenience rule string or a 16-hex-digit literal
// into a Mask.
func ParseRule(rule string) (Mask, error) {
	switch rule {
	case RuleAllowAll:
		return Mask(0).
			Set(BitSendMessages, true).
			Set(BitReceiveMessages, true).
			Set(BitSendForwarded, true).
			Set(BitReceiveForwarded, true).
			Set(BitCreateInvites, true).
			Set(BitAnonReceive, true).
			Set(BitSelfManageList, true).
			Set(BitSelfManageSendLimit, true).
			Set(BitSelfManageReceiveLimit, true).
			Set(BitSendMessagesSelf, true).
			Set(BitReceiveMessagesSelf, true).
			Set(BitSendForwardedSelf, true).
			Set(BitReceiveForwardedSelf, true).
			Set(BitCreateInvitesSelf, true).
			Set(BitAnonReceiveSelf, true), nil
	case RuleDenyAll:
		return Mask(0).Set(BitDIDBlocked, true), nil
	case RuleModeExplicitAllow:
		return Mask(0), nil
	case RuleModeExplicitDeny:
		return Mask(0).Set(BitAccessListMode, true), nil
	default:
		return DecodeHex(rule)
	}
}

// DecodeHex parses a lowercase 16-hex-digit string (the wire format used
// in the ACL expansion response) into a Mask.
func DecodeHex(s string) (Mask, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("acl: invalid mask literal %q", s)
	}
	return Mask(binary.LittleEndian.Uint64(b)), nil
}

// EncodeHex renders the mask as a lowercase 16-hex-digit string.
func (m Mask) EncodeHex() string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(m))
	return hex.EncodeToString(b[:])
}

// Get reports whether bit is set.
func (m Mask) Get(bit uint) bool {
	return m&(1<<bit) != 0
}

// Set returns a copy of m with bit set to v.
func (m Mask) Set(bit uint, v bool) Mask {
	if v {
		return m | (1 << bit)
	}
	return m &^ (1 << bit)
}

func (m Mask) DIDBlocked() bool          { return m.Get(BitDIDBlocked) }
func (m Mask) DIDLocal() bool            { return m.Get(BitDIDLocal) }
func (m Mask) SendMessages() bool        { return m.Get(BitSendMessages) }
func (m Mask) ReceiveMessages() bool     { return m.Get(BitReceiveMessages) }
func (m Mask) SendForwarded() bool       { return m.Get(BitSendForwarded) }
func (m Mask) ReceiveForwarded() bool    { return m.Get(BitReceiveForwarded) }
func (m Mask) CreateInvites() bool       { return m.Get(BitCreateInvites) }
func (m Mask) AnonReceive() bool         { return m.Get(BitAnonReceive) }
func (m Mask) SelfManageList() bool      { return m.Get(BitSelfManageList) }
func (m Mask) SelfManageSendLimit() bool { return m.Get(BitSelfManageSendLimit) }
func (m Mask) SelfManageReceiveLimit() bool {
	return m.Get(BitSelfManageReceiveLimit)
}

// ListMode reports the access-list interpretation: true = deny-list,
// false = allow-list (bit 0).
func (m Mask) ListMode() bool { return m.Get(BitAccessListMode) }

// Action names the operation being evaluated by Permit.
type Action string

const (
	ActionSendToLocal    Action = "send-to-local"
	ActionForwardNextHop Action = "forward-next-hop"
)

// Permit implements the evaluation contract:
//
//	permit(action, subject_acl, object_acl, object_access_list, subject_did_hash) -> bool
//
// accessList is the object account's access list; mediatorDIDHash is always
// permitted regardless of list membership.
func Permit(action Action, subjectAnonymous bool, subjectMask, objectMask Mask, accessList []string, subjectDIDHash, mediatorDIDHash string) bool {
	if subjectMask.DIDBlocked() {
		return false
	}

	switch action {
	case ActionSendToLocal:
		if !subjectMask.SendMessages() || !objectMask.ReceiveMessages() {
			return false
		}
		if subjectAnonymous && !objectMask.AnonReceive() {
			return false
		}
	case ActionForwardNextHop:
		if !subjectMask.SendForwarded() || !objectMask.ReceiveForwarded() {
			return false
		}
	default:
		return false
	}

	return listPermits(objectMask, accessList, subjectDIDHash, mediatorDIDHash)
}

// listPermits applies the access-list gating rule independently of the
// action-specific checks above, so ACL management handlers can preview
// list outcomes without re-deriving the action rules.
func listPermits(objectMask Mask, accessList []string, subjectDIDHash, mediatorDIDHash string) bool {
	if constantTimeEqual(subjectDIDHash, mediatorDIDHash) {
		return true
	}
	member := containsConstantTime(accessList, subjectDIDHash)
	if objectMask.ListMode() { // deny-list
		return !member
	}
	return member // allow-list
}

// CanSelfChange reports whether an account owner may toggle bit on their
// own mask without admin intervention.
func CanSelfChange(bit uint) bool {
	_, ok := selfChangeOf[bit]
	return ok
}

// CanWrite reports whether an actor may write bit on an account: owners
// may only flip bits whose paired self-change bit is set on the account's
// current mask; admins may write any bit except those an owner can never
// self-disable when acting in a self-change capacity.
func CanWrite(actorIsAdmin bool, actorIsSelf bool, currentMask Mask, bit uint) bool {
	if actorIsAdmin && !actorIsSelf {
		return true
	}
	if protectedFromSelfDisable[bit] && actorIsSelf && !actorIsAdmin {
		return false
	}
	selfBit, ok := selfChangeOf[bit]
	if !ok {
		return false
	}
	return currentMask.Get(selfBit)
}
