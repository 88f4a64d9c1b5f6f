// Package oob implements out-of-band connection invitations: a hash keyed
// by invitation id, TTL-expired, deletable only by its owner or an admin.
package oob

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/affinidi-community/didcomm-mediator/internal/kv"
)

// Invitation is the persistent record: inviter DID hash, the invitation
// blob (an opaque out-of-band message, JSON per DIDComm convention), and
// expiry.
type Invitation struct {
	ID              string
	InviterDIDHash  string
	Blob            []byte
	ExpiresAt       int64 // millisecond UNIX epoch
}

var ErrNotFound = errors.New("oob: invitation not found")

// Store is the Redis-backed OOB invitation store.
type Store struct {
	kv *kv.Store
}

func New(store *kv.Store) *Store {
	return &Store{kv: store}
}

func invitationKey(id string) string { return "oob:{" + id + "}" }

// Create mints a new invitation for inviterDIDHash, expiring after ttl.
func (s *Store) Create(ctx context.Context, inviterDIDHash string, blob []byte, ttl time.Duration) (*Invitation, error) {
	id := uuid.NewString()
	expiresAt := time.Now().Add(ttl).UnixMilli()
	if err := s.kv.HSet(ctx, invitationKey(id), map[string]interface{}{
		"inviter":    inviterDIDHash,
		"blob":       blob,
		"expires_at": expiresAt,
	}); err != nil {
		return nil, err
	}
	if err := s.kv.Expire(ctx, invitationKey(id), ttl); err != nil {
		return nil, err
	}
	return &Invitation{ID: id, InviterDIDHash: inviterDIDHash, Blob: blob, ExpiresAt: expiresAt}, nil
}

// Get loads an invitation by id. Expired invitations are reported as
// ErrNotFound the same way a Redis-expired key is: the TTL is the sole
// expiry mechanism, there is no separate sweep for OOB records.
func (s *Store) Get(ctx context.Context, id string) (*Invitation, error) {
	fields, err := s.kv.HGetAll(ctx, invitationKey(id))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	return &Invitation{
		ID:             id,
		InviterDIDHash: fields["inviter"],
		Blob:           []byte(fields["blob"]),
		ExpiresAt:      expiresAt,
	}, nil
}

// Delete removes an invitation. Only the owner (inviter) or an admin may
// delete it; callers must check that before calling Delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.kv.Del(ctx, invitationKey(id))
}

// CanDelete reports whether requesterDIDHash may delete an invitation
// under the owner-or-admin deletion rule.
func CanDelete(inv *Invitation, requesterDIDHash string, requesterIsAdmin bool) bool {
	return requesterIsAdmin || requesterDIDHash == inv.InviterDIDHash
}
