package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/acl"
	"github.com/affinidi-community/didcomm-mediator/internal/authn"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

// requireAdmin implements the additional admin-operation checks:
// the outer envelope must be signed (never anonymous, enforced here by
// requiring msg.From to equal the session DID), the signing DID hash must
// equal the session DID hash, created_time must fall within the stricter
// admin-message TTL, and the account must be admin-class or the mediator
// itself.
func (d *Dispatcher) requireAdmin(ctx context.Context, sessionDIDHash string, msg Message) (*account.Account, error) {
	if msg.From == "" || msg.From != sessionDIDHash {
		return nil, problem.Wrap("e.p.session-mismatch")
	}
	createdTime := time.Unix(msg.CreatedTime, 0)
	if err := authn.CheckAdminFreshness(createdTime, time.Now(), d.cfg.AdminMessageTTL); err != nil {
		return nil, problem.Wrap("e.p.session-invalid")
	}
	acct, err := d.accounts.Get(ctx, sessionDIDHash)
	if err != nil {
		return nil, err
	}
	if !acct.Type.IsAdminClass() && acct.Type != account.TypeMediator {
		return nil, problem.Wrap("e.p.access-list-denied")
	}
	return acct, nil
}

// accountRequest is the tagged-variant body for both account-management
// and admin-management messages.
type accountRequest struct {
	Action     string  `json:"action"`
	DIDHash    string  `json:"did_hash,omitempty"`
	Type       string  `json:"type,omitempty"`
	SendLimit  *int    `json:"send_limit,omitempty"`
	RecvLimit  *int    `json:"recv_limit,omitempty"`
	Cursor     uint64  `json:"cursor,omitempty"`
	Limit      int64   `json:"limit,omitempty"`
}

type accountResponse struct {
	OK      bool     `json:"ok"`
	Account *account.Account `json:"account,omitempty"`
	Hashes  []string `json:"hashes,omitempty"`
	Cursor  uint64   `json:"cursor,omitempty"`
}

func handleAccountManagement(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	actor, err := d.requireAdmin(ctx, sessionDIDHash, msg)
	if err != nil {
		return err
	}
	var req accountRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return problem.Wrap("e.p.message-unpack")
	}

	switch req.Action {
	case "create":
		acct, err := d.accounts.Create(ctx, req.DIDHash, acl.Mask(0), account.TypeStandard)
		if err != nil {
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorAccountManagement, msg.ID, accountResponse{OK: true, Account: acct})

	case "remove":
		if err := d.accounts.Remove(ctx, req.DIDHash); err != nil {
			if errors.Is(err, account.ErrProtectedAccount) {
				return problem.Wrap("e.p.account-remove-protected", req.DIDHash)
			}
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorAccountManagement, msg.ID, accountResponse{OK: true})

	case "list":
		page, err := d.accounts.List(ctx, req.Cursor, req.Limit)
		if err != nil {
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorAccountManagement, msg.ID, accountResponse{OK: true, Hashes: page.Hashes, Cursor: page.Cursor})

	case "change_type":
		actorIsRootAdmin := actor.Type == account.TypeRootAdmin
		if err := d.accounts.ChangeType(ctx, req.DIDHash, account.Type(req.Type), actorIsRootAdmin); err != nil {
			if errors.Is(err, account.ErrLastAdmin) {
				return problem.Wrap("e.p.admin-strip-limit")
			}
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorAccountManagement, msg.ID, accountResponse{OK: true})

	case "change_queue_limits":
		send, recv := account.LimitNoChange, account.LimitNoChange
		if req.SendLimit != nil {
			send = *req.SendLimit
		}
		if req.RecvLimit != nil {
			recv = *req.RecvLimit
		}
		if err := d.accounts.ChangeQueueLimits(ctx, req.DIDHash, send, recv, actor.Type.IsAdminClass()); err != nil {
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorAccountManagement, msg.ID, accountResponse{OK: true})

	default:
		return problem.Wrap("e.p.message-unpack")
	}
}

// aclRequest is the ACL-management tagged-variant body.
type aclRequest struct {
	Action     string `json:"action"`
	DIDHash    string `json:"did_hash"`
	Bit        uint   `json:"bit,omitempty"`
	Value      bool   `json:"value,omitempty"`
	MemberHash string `json:"member_hash,omitempty"`
	Rule       string `json:"rule,omitempty"`
}

type aclResponse struct {
	OK     bool   `json:"ok"`
	MaskHex string `json:"mask,omitempty"`
}

func handleACLManagement(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	actor, err := d.requireAdmin(ctx, sessionDIDHash, msg)
	if err != nil {
		return err
	}
	var req aclRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return problem.Wrap("e.p.message-unpack")
	}

	switch req.Action {
	case "write":
		target, err := d.accounts.Get(ctx, req.DIDHash)
		if err != nil {
			return err
		}
		actorIsSelf := req.DIDHash == sessionDIDHash
		if !acl.CanWrite(actor.Type.IsAdminClass(), actorIsSelf, target.ACL, req.Bit) {
			return problem.Wrap("e.p.access-list-denied")
		}
		newMask := target.ACL.Set(req.Bit, req.Value)
		if err := d.accounts.WriteACL(ctx, req.DIDHash, newMask); err != nil {
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorACLManagementResponse, msg.ID, aclResponse{OK: true, MaskHex: newMask.EncodeHex()})

	case "expand":
		mask, err := acl.ParseRule(req.Rule)
		if err != nil {
			return problem.Wrap("e.p.message-unpack")
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorACLManagementResponse, msg.ID, aclResponse{OK: true, MaskHex: mask.EncodeHex()})

	case "access_list_add":
		if err := d.accounts.AccessListAdd(ctx, req.DIDHash, req.MemberHash); err != nil {
			if errors.Is(err, account.ErrAccessListFull) {
				return problem.Wrap("e.p.admin-add-limit")
			}
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorACLManagementResponse, msg.ID, aclResponse{OK: true})

	case "access_list_remove":
		if err := d.accounts.AccessListRemove(ctx, req.DIDHash, req.MemberHash); err != nil {
			return err
		}
		return d.reply(ctx, sessionDIDHash, TypeMediatorACLManagementResponse, msg.ID, aclResponse{OK: true})

	default:
		return problem.Wrap("e.p.message-unpack")
	}
}

// adminCapabilities is the admin-management protocol's minimal response:
// confirms admin authorization and reports the mediator's own DID hash.
type adminCapabilities struct {
	OK              bool   `json:"ok"`
	MediatorDIDHash string `json:"mediator_did_hash"`
}

func handleAdminManagement(ctx context.Context, d *Dispatcher, sessionDIDHash string, msg Message) error {
	if _, err := d.requireAdmin(ctx, sessionDIDHash, msg); err != nil {
		return err
	}
	return d.reply(ctx, sessionDIDHash, TypeMediatorAdminManagement, msg.ID, adminCapabilities{
		OK:              true,
		MediatorDIDHash: d.cfg.MediatorDIDHash,
	})
}
