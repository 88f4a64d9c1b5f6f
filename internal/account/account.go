// Package account implements the DID-hash-keyed account store: account
// records, admin-set membership, and the queue-limit and change-type
// write rules. It is the only package that owns account state in the
// key-value store; callers never touch Redis keys directly.
package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/affinidi-community/didcomm-mediator/internal/acl"
	"github.com/affinidi-community/didcomm-mediator/internal/kv"
)

// Type is the account's classification. RootAdmin and Mediator accounts
// carry special removal and change-type protections.
type Type string

const (
	TypeStandard  Type = "standard"
	TypeAdmin     Type = "admin"
	TypeRootAdmin Type = "root_admin"
	TypeMediator  Type = "mediator"
	TypeUnknown   Type = "unknown"
)

func (t Type) String() string { return string(t) }

// IsAdminClass reports whether t participates in admin-set membership.
func (t Type) IsAdminClass() bool {
	return t == TypeAdmin || t == TypeRootAdmin
}

// Account is the persistent record keyed by DID hash.
type Account struct {
	DIDHash    string
	Type       Type
	ACL        acl.Mask
	AccessList []string
	SendLimit  int // -1 means unlimited; 0 means "use configured hard default"
	RecvLimit  int
}

var (
	ErrNotFound          = errors.New("account: not found")
	ErrProtectedAccount  = errors.New("account: protected, cannot remove or retype")
	ErrInvalidChangeType = errors.New("account: invalid change-type transition")
	ErrLastAdmin         = errors.New("account: cannot demote the last admin")
	ErrAccessListFull    = errors.New("account: access list at configured maximum")
)

var hexHash = regexp.MustCompile(`^[0-9a-f]{64}$`)

// NormalizeDID accepts either a raw DID string or an already-hashed
// lowercase 64-hex-digit string and returns the canonical hex-SHA-256 DID
// hash.
func NormalizeDID(didOrHash string) string {
	if hexHash.MatchString(didOrHash) {
		return didOrHash
	}
	sum := sha256.Sum256([]byte(didOrHash))
	return hex.EncodeToString(sum[:])
}

// Store is the Redis-backed account store.
type Store struct {
	kv              *kv.Store
	mediatorDIDHash string

	softSend, hardSend int
	softRecv, hardRecv int
	accessListMax      int
}

// New creates an account store. mediatorDIDHash is the mediator's own
// memoized, protected DID hash.
func New(store *kv.Store, mediatorDIDHash string, softSend, hardSend, softRecv, hardRecv, accessListMax int) *Store {
	return &Store{
		kv:              store,
		mediatorDIDHash: mediatorDIDHash,
		softSend:        softSend,
		hardSend:        hardSend,
		softRecv:        softRecv,
		hardRecv:        hardRecv,
		accessListMax:   accessListMax,
	}
}

func accountKey(hash string) string     { return "account:{" + hash + "}" }
func accessListKey(hash string) string  { return "account:{" + hash + "}:accesslist" }
func adminSetKey() string                { return "accounts:admins" }
func allAccountsKey() string             { return "accounts:all" }

// Get loads the account for didOrHash, normalizing it first.
func (s *Store) Get(ctx context.Context, didOrHash string) (*Account, error) {
	hash := NormalizeDID(didOrHash)
	fields, err := s.kv.HGetAll(ctx, accountKey(hash))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	mask, err := acl.DecodeHex(fields["acl"])
	if err != nil {
		return nil, fmt.Errorf("account: corrupt acl for %s: %w", hash, err)
	}
	sendLimit, _ := strconv.Atoi(fields["send_limit"])
	recvLimit, _ := strconv.Atoi(fields["recv_limit"])
	list, err := s.kv.SMembers(ctx, accessListKey(hash))
	if err != nil {
		return nil, err
	}
	return &Account{
		DIDHash:    hash,
		Type:       Type(fields["type"]),
		ACL:        mask,
		AccessList: list,
		SendLimit:  sendLimit,
		RecvLimit:  recvLimit,
	}, nil
}

// Create inserts a new account with the given initial ACL and type. If the
// account already exists, its current record is returned unchanged.
func (s *Store) Create(ctx context.Context, didOrHash string, initial acl.Mask, t Type) (*Account, error) {
	hash := NormalizeDID(didOrHash)
	if existing, err := s.Get(ctx, hash); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := s.kv.HSet(ctx, accountKey(hash), map[string]interface{}{
		"type":       string(t),
		"acl":        initial.EncodeHex(),
		"send_limit": 0,
		"recv_limit": 0,
	}); err != nil {
		return nil, err
	}
	if err := s.kv.SAdd(ctx, allAccountsKey(), hash); err != nil {
		return nil, err
	}
	if t.IsAdminClass() {
		if err := s.kv.SAdd(ctx, adminSetKey(), hash); err != nil {
			return nil, err
		}
	}
	return &Account{DIDHash: hash, Type: t, ACL: initial}, nil
}

// Remove deletes an account. The mediator's own account and RootAdmin
// accounts are protected and cannot be removed.
func (s *Store) Remove(ctx context.Context, didOrHash string) error {
	hash := NormalizeDID(didOrHash)
	if s.isProtected(hash) {
		return ErrProtectedAccount
	}
	existing, err := s.Get(ctx, hash)
	if err != nil {
		return err
	}
	if existing.Type == TypeRootAdmin || existing.Type == TypeMediator {
		return ErrProtectedAccount
	}
	if err := s.kv.Del(ctx, accountKey(hash), accessListKey(hash)); err != nil {
		return err
	}
	if err := s.kv.SRem(ctx, allAccountsKey(), hash); err != nil {
		return err
	}
	return s.kv.SRem(ctx, adminSetKey(), hash)
}

func (s *Store) isProtected(hash string) bool {
	return hash == s.mediatorDIDHash
}

// ListPage is one page of a cursor-paginated account list.
type ListPage struct {
	Hashes []string
	Cursor uint64
}

// List returns up to limit DID hashes starting at cursor
// `list(cursor, limit)` contract. Cursor semantics mirror Redis SSCAN: 0
// both starts and, when returned, ends a full iteration.
func (s *Store) List(ctx context.Context, cursor uint64, limit int64) (ListPage, error) {
	hashes, next, err := s.kv.Raw().SScan(ctx, allAccountsKey(), cursor, "", limit).Result()
	if err != nil {
		return ListPage{}, err
	}
	return ListPage{Hashes: hashes, Cursor: next}, nil
}

// AdminHashes returns every DID hash currently in the admin set, for fast
// iteration without scanning the full account set.
func (s *Store) AdminHashes(ctx context.Context) ([]string, error) {
	return s.kv.SMembers(ctx, adminSetKey())
}

// ChangeType applies the change-type rules: never to/from
// Mediator; RootAdmin can only be stripped by another RootAdmin; demoting
// the last admin-class account is rejected.
func (s *Store) ChangeType(ctx context.Context, didOrHash string, newType Type, actorIsRootAdmin bool) error {
	hash := NormalizeDID(didOrHash)
	acct, err := s.Get(ctx, hash)
	if err != nil {
		return err
	}
	if acct.Type == TypeMediator || newType == TypeMediator {
		return ErrInvalidChangeType
	}
	if acct.Type == TypeRootAdmin && newType != TypeRootAdmin && !actorIsRootAdmin {
		return ErrInvalidChangeType
	}
	if acct.Type.IsAdminClass() && !Type(newType).IsAdminClass() {
		admins, err := s.AdminHashes(ctx)
		if err != nil {
			return err
		}
		if len(admins) <= 1 {
			return ErrLastAdmin
		}
	}

	if err := s.kv.HSet(ctx, accountKey(hash), map[string]interface{}{"type": string(newType)}); err != nil {
		return err
	}
	if newType.IsAdminClass() {
		return s.kv.SAdd(ctx, adminSetKey(), hash)
	}
	return s.kv.SRem(ctx, adminSetKey(), hash)
}

// Queue-limit sentinel values from the write API.
const (
	LimitNoChange = -1 << 31 // sentinel for "null": caller omitted this field
	LimitUnlimited = -1
	LimitResetSoft = -2
)

// ChangeQueueLimits applies the queue-limit write semantics: the
// LimitNoChange sentinel leaves a limit untouched, LimitUnlimited and
// LimitResetSoft are special values, and any other positive value is
// clamped to [soft, hard] unless the caller is an admin.
func (s *Store) ChangeQueueLimits(ctx context.Context, didOrHash string, send, recv int, callerIsAdmin bool) error {
	hash := NormalizeDID(didOrHash)
	updates := map[string]interface{}{}
	if send != LimitNoChange {
		updates["send_limit"] = s.resolveLimit(send, s.softSend, s.hardSend, callerIsAdmin)
	}
	if recv != LimitNoChange {
		updates["recv_limit"] = s.resolveLimit(recv, s.softRecv, s.hardRecv, callerIsAdmin)
	}
	if len(updates) == 0 {
		return nil
	}
	return s.kv.HSet(ctx, accountKey(hash), updates)
}

func (s *Store) resolveLimit(value, soft, hard int, callerIsAdmin bool) int {
	switch value {
	case LimitUnlimited:
		return LimitUnlimited
	case LimitResetSoft:
		return soft
	}
	if value < 0 {
		return soft
	}
	if callerIsAdmin {
		return value
	}
	if value < soft {
		return soft
	}
	if value > hard {
		return hard
	}
	return value
}

// EffectiveSendHardCap resolves the hard cap mailbox.Put should enforce on
// acct's send-queue: LimitUnlimited disables the check, a never-customized
// zero value falls back to the configured hard default, and any other
// value (already clamped by ChangeQueueLimits) is used as-is. A nil acct
// is treated as a never-customized account.
func (s *Store) EffectiveSendHardCap(acct *Account) int64 {
	if acct == nil {
		return effectiveHardCap(0, s.hardSend)
	}
	return effectiveHardCap(acct.SendLimit, s.hardSend)
}

// EffectiveRecvHardCap mirrors EffectiveSendHardCap for the receive-queue.
func (s *Store) EffectiveRecvHardCap(acct *Account) int64 {
	if acct == nil {
		return effectiveHardCap(0, s.hardRecv)
	}
	return effectiveHardCap(acct.RecvLimit, s.hardRecv)
}

func effectiveHardCap(limit, configuredHard int) int64 {
	if limit < 0 {
		return -1
	}
	if limit == 0 {
		return int64(configuredHard)
	}
	return int64(limit)
}

// AccessListAdd appends hash to account's access list, enforcing the
// configured maximum.
func (s *Store) AccessListAdd(ctx context.Context, didOrHash, memberHash string) error {
	hash := NormalizeDID(didOrHash)
	n, err := s.kv.SCard(ctx, accessListKey(hash))
	if err != nil {
		return err
	}
	if int(n) >= s.accessListMax {
		member, err := s.kv.SIsMember(ctx, accessListKey(hash), memberHash)
		if err != nil {
			return err
		}
		if !member {
			return ErrAccessListFull
		}
	}
	return s.kv.SAdd(ctx, accessListKey(hash), memberHash)
}

// AccessListRemove removes memberHash from account's access list.
func (s *Store) AccessListRemove(ctx context.Context, didOrHash, memberHash string) error {
	return s.kv.SRem(ctx, accessListKey(NormalizeDID(didOrHash)), memberHash)
}

// WriteACL persists a new ACL mask for the account, independent of type
// changes. Callers are expected to have already authorized the write via
// acl.CanWrite.
func (s *Store) WriteACL(ctx context.Context, didOrHash string, mask acl.Mask) error {
	hash := NormalizeDID(didOrHash)
	return s.kv.HSet(ctx, accountKey(hash), map[string]interface{}{"acl": mask.EncodeHex()})
}

// MediatorDIDHash returns the memoized, protected mediator DID hash.
func (s *Store) MediatorDIDHash() string { return s.mediatorDIDHash }
