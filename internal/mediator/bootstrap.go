package mediator

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/acl"
)

// argon2 parameters for the one-time root-admin bootstrap check. The
// bootstrap secret is operator-supplied, compared once at startup, and
// never stored in plaintext.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

var errBootstrapTokenMismatch = errors.New("mediator: root bootstrap token does not match configured hash")

// hashBootstrapToken derives the "salt:hash" form stored in
// AuthConfig.RootBootstrapTokenHash from a plaintext token and salt, both
// hex-encoded. Exposed for the CLI that generates a deployment's config.
func hashBootstrapToken(token string, salt []byte) string {
	sum := argon2.IDKey([]byte(token), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sum)
}

func verifyBootstrapToken(token, saltHashHex string) error {
	parts := strings.SplitN(saltHashHex, ":", 2)
	if len(parts) != 2 {
		return errBootstrapTokenMismatch
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return errBootstrapTokenMismatch
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return errBootstrapTokenMismatch
	}
	got := argon2.IDKey([]byte(token), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return errBootstrapTokenMismatch
	}
	return nil
}

// bootstrapRootAdmin creates the configured root-admin DID on first
// startup. It is a no-op once RootBootstrapDID is empty or the account
// already exists at TypeRootAdmin, so it is safe to run on every restart.
func (s *Stack) bootstrapRootAdmin(ctx context.Context) error {
	did := s.bootstrapDID
	if did == "" {
		return nil
	}
	hash := account.NormalizeDID(did)
	acct, err := s.Accounts.Get(ctx, hash)
	found := err == nil
	if err != nil && !errors.Is(err, account.ErrNotFound) {
		return err
	}
	if found && acct.Type == account.TypeRootAdmin {
		return nil
	}

	if err := verifyBootstrapToken(s.bootstrapToken, s.bootstrapTokenHash); err != nil {
		return err
	}
	if !found {
		_, err = s.Accounts.Create(ctx, hash, acl.Mask(0), account.TypeRootAdmin)
		return err
	}
	return s.Accounts.ChangeType(ctx, hash, account.TypeRootAdmin, true)
}
