// Package authn implements the mediator's three-round challenge/response
// session protocol: the Challenged -> Authorized -> Expired state
// machine, nonce issuance, and access/refresh token minting. The
// cryptographic verification of the challenge response's signature (JWE/JWS
// integrity, signing-key membership in the DID document) is an external
// collaborator's concern; this package validates the protocol-level facts
// — nonce equality, from-field consistency, freshness — and the caller
// supplies the crypto verdict.
package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/affinidi-community/didcomm-mediator/internal/kv"
)

// State is the session state machine's current position.
type State int

const (
	StateChallenged State = iota
	StateAuthorized
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateChallenged:
		return "CHALLENGED"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Transport is the connection kind a session is bound to.
type Transport string

const (
	TransportREST      Transport = "rest"
	TransportWebSocket Transport = "websocket"
)

// Session is the transient record keyed by session id.
type Session struct {
	ID        string
	DIDHash   string
	State     State
	Nonce     string
	Transport Transport
}

var (
	ErrNotFound            = errors.New("authn: session not found")
	ErrNonceMismatch       = errors.New("authn: nonce mismatch")
	ErrFromMismatch        = errors.New("authn: from-field mismatch between outer envelope, inner plaintext, and claimed DID")
	ErrSigningKeyNotListed = errors.New("authn: signing key not listed in claimed DID document")
	ErrStale               = errors.New("authn: created_time outside freshness window")
	ErrWrongState          = errors.New("authn: session not in the expected state")
	ErrTokenExpired        = errors.New("authn: token expired")
	ErrTokenInvalid        = errors.New("authn: token invalid")
	ErrSessionMismatch     = errors.New("authn: token does not bind the expected session")
)

// Claims is the JWT payload for both access and refresh tokens. Binding
// both to session id and DID hash lets Refresh and BindWebSocket verify a
// token was minted for the session it is presented against.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	DIDHash   string `json:"did_hash"`
}

// Manager issues and validates sessions and tokens against the key-value
// store.
type Manager struct {
	kv     *kv.Store
	secret []byte
}

func New(store *kv.Store, secret string) *Manager {
	return &Manager{kv: store, secret: []byte(secret)}
}

func sessionKey(id string) string { return "session:{" + id + "}" }

func randomNonce() (string, error) {
	b := make([]byte, 16) // 128 bits, round 1
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Challenge implements round 1: generates a nonce, creates a Challenged
// session, and arms its idle TTL.
func (m *Manager) Challenge(ctx context.Context, claimedDIDHash string, transport Transport, idleTTL time.Duration) (*Session, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	sess := &Session{ID: id, DIDHash: claimedDIDHash, State: StateChallenged, Nonce: nonce, Transport: transport}
	if err := m.save(ctx, sess); err != nil {
		return nil, err
	}
	if err := m.kv.Expire(ctx, sessionKey(id), idleTTL); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	return m.kv.HSet(ctx, sessionKey(s.ID), map[string]interface{}{
		"state":     int(s.State),
		"did_hash":  s.DIDHash,
		"nonce":     s.Nonce,
		"transport": string(s.Transport),
	})
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := m.kv.HGetAll(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	var state State
	switch fields["state"] {
	case "1":
		state = StateAuthorized
	case "2":
		state = StateExpired
	default:
		state = StateChallenged
	}
	return &Session{
		ID:        id,
		DIDHash:   fields["did_hash"],
		State:     state,
		Nonce:     fields["nonce"],
		Transport: Transport(fields["transport"]),
	}, nil
}

// Destroy removes a session entirely: every validation failure destroys
// the session rather than leaving it in a half-authenticated state.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.kv.Del(ctx, sessionKey(id))
}

// Expire transitions a session from Authorized to Expired on token TTL
// elapse, without destroying the record (a refresh can still re-arm it).
func (m *Manager) Expire(ctx context.Context, id string) error {
	return m.kv.HSet(ctx, sessionKey(id), map[string]interface{}{"state": int(StateExpired)})
}

// ResponseInput carries round 2's protocol-level facts. The caller is
// responsible for the cryptographic verdict (envelope integrity, signing
// key membership) before calling ValidateResponse.
type ResponseInput struct {
	Nonce            string
	OuterFrom        string
	InnerFrom        string
	ClaimedDID       string
	SigningKeyListed bool
	CreatedTime      time.Time
}

// ValidateResponse implements round 2's validation contract. On any
// failure the session is destroyed, and the specific error is returned so
// the caller can map it to a problem report code.
func (m *Manager) ValidateResponse(ctx context.Context, sessionID string, in ResponseInput, freshnessTTL time.Duration, now time.Time) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State != StateChallenged {
		_ = m.Destroy(ctx, sessionID)
		return ErrWrongState
	}

	fail := func(err error) error {
		_ = m.Destroy(ctx, sessionID)
		return err
	}

	if in.Nonce != sess.Nonce {
		return fail(ErrNonceMismatch)
	}
	if in.OuterFrom != in.InnerFrom || in.InnerFrom != in.ClaimedDID {
		return fail(ErrFromMismatch)
	}
	if !in.SigningKeyListed {
		return fail(ErrSigningKeyNotListed)
	}
	if in.CreatedTime.After(now) || now.Sub(in.CreatedTime) > freshnessTTL {
		return fail(ErrStale)
	}
	return nil
}

// IssueTokens implements round 3: mints access and refresh tokens bound to
// sessionID and didHash, and promotes the session to Authorized.
func (m *Manager) IssueTokens(ctx context.Context, sessionID, didHash string, accessTTL, refreshTTL time.Duration) (accessToken, refreshToken string, err error) {
	now := time.Now()
	accessToken, err = m.sign(sessionID, didHash, now, accessTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = m.sign(sessionID, didHash, now, refreshTTL)
	if err != nil {
		return "", "", err
	}
	if err := m.kv.HSet(ctx, sessionKey(sessionID), map[string]interface{}{
		"state":    int(StateAuthorized),
		"did_hash": didHash,
	}); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (m *Manager) sign(sessionID, didHash string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
		DIDHash:   didHash,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// parse validates signature and expiry but never panics on a
// borderline-expired token.
func (m *Manager) parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateAccessToken parses and validates an access token, returning its
// claims.
func (m *Manager) ValidateAccessToken(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr)
}

// Refresh implements the refresh endpoint: validates the refresh token,
// confirms it binds the session it is presented for, mints a fresh access
// token, and re-arms the session.
func (m *Manager) Refresh(ctx context.Context, refreshToken, expectedSessionID string, accessTTL time.Duration) (string, error) {
	claims, err := m.parse(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.SessionID != expectedSessionID {
		return "", ErrSessionMismatch
	}
	sess, err := m.Get(ctx, claims.SessionID)
	if err != nil {
		return "", err
	}
	if sess.DIDHash != claims.DIDHash {
		return "", ErrSessionMismatch
	}
	access, err := m.sign(sess.ID, sess.DIDHash, time.Now(), accessTTL)
	if err != nil {
		return "", err
	}
	if err := m.kv.HSet(ctx, sessionKey(sess.ID), map[string]interface{}{"state": int(StateAuthorized)}); err != nil {
		return "", err
	}
	return access, nil
}

// BindWebSocket validates accessToken against sessionID at HTTP upgrade
// time and marks the session's transport as WebSocket.
func (m *Manager) BindWebSocket(ctx context.Context, sessionID, accessToken string) (*Session, error) {
	claims, err := m.parse(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.kv.HSet(ctx, sessionKey(sessionID), map[string]interface{}{"transport": string(TransportWebSocket)}); err != nil {
		return nil, err
	}
	sess.Transport = TransportWebSocket
	return sess, nil
}

// CheckAdminFreshness applies the stricter admin-message TTL window: admin
// operations require created_time to fall within a narrower freshness
// window than ordinary messages, default 3s.
func CheckAdminFreshness(createdTime, now time.Time, ttl time.Duration) error {
	if createdTime.After(now) || now.Sub(createdTime) > ttl {
		return ErrStale
	}
	return nil
}
