package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/acl"
	"github.com/affinidi-community/didcomm-mediator/internal/authn"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

// challengeRequest is round 1's body: the client's claimed DID.
type challengeRequest struct {
	ClaimedDID string `json:"claimed_did"`
}

type challengeResponse struct {
	SessionID string `json:"session_id"`
	Nonce     string `json:"nonce"`
}

// responsePlaintext is the inner plaintext body of round 2's signed and
// encrypted envelope.
type responsePlaintext struct {
	Nonce       string `json:"nonce"`
	From        string `json:"from"`
	CreatedTime int64  `json:"created_time"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// handleAuthenticate dispatches round 1 (no session_id query param: issue
// a challenge) or round 2 (session_id present: validate the signed,
// encrypted response and mint tokens).
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		s.handleChallengeResponse(w, r, sessionID)
		return
	}
	s.handleChallengeRequest(w, r)
}

func (s *Server) handleChallengeRequest(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClaimedDID == "" {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "malformed challenge request"))
		return
	}

	claimedHash := account.NormalizeDID(req.ClaimedDID)
	acct, err := s.deps.Accounts.Get(r.Context(), claimedHash)
	if err == nil && acct.ACL.DIDBlocked() {
		s.deps.Collector.AuthAttempt("challenge", false)
		writeProblem(w, problem.Wrap("e.p.authentication-blocked", req.ClaimedDID))
		return
	}

	sess, err := s.deps.Sessions.Challenge(r.Context(), claimedHash, authn.TransportREST, s.deps.Config.Timeouts.SessionIdleTimeout())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	s.deps.Collector.AuthAttempt("challenge", true)
	writeJSON(w, http.StatusOK, challengeResponse{SessionID: sess.ID, Nonce: sess.Nonce})
}

func (s *Server) handleChallengeResponse(w http.ResponseWriter, r *http.Request, sessionID string) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(s.deps.Config.Limits.MaxEnvelopeBytes)))
	if err != nil {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "unable to read request body"))
		return
	}

	outer, err := s.deps.Unpacker.UnpackOuter(r.Context(), raw)
	if err != nil || outer.Anonymous {
		s.deps.Collector.AuthAttempt("response", false)
		writeProblem(w, problem.Wrap("e.p.message-unpack", "challenge response must be signed and encrypted"))
		return
	}

	var plaintext responsePlaintext
	if err := json.Unmarshal(outer.Plaintext, &plaintext); err != nil {
		s.deps.Collector.AuthAttempt("response", false)
		writeProblem(w, problem.Wrap("e.p.message-unpack", "malformed challenge response plaintext"))
		return
	}

	in := authn.ResponseInput{
		Nonce:            plaintext.Nonce,
		OuterFrom:        outer.FromDIDHash,
		InnerFrom:        account.NormalizeDID(plaintext.From),
		SigningKeyListed: true, // UnpackOuter already verified the signing key against the DID document
		CreatedTime:      time.UnixMilli(plaintext.CreatedTime),
	}

	sess, err := s.deps.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeProblem(w, problem.Wrap("e.p.session-invalid", sessionID))
		return
	}
	in.ClaimedDID = sess.DIDHash

	if err := s.deps.Sessions.ValidateResponse(r.Context(), sessionID, in, s.deps.Config.Timeouts.AdminMessagesTimeout(), time.Now()); err != nil {
		s.deps.Collector.AuthAttempt("response", false)
		writeProblem(w, mapAuthnError(err))
		return
	}

	access, refresh, err := s.deps.Sessions.IssueTokens(r.Context(), sessionID, sess.DIDHash,
		s.deps.Config.Auth.AccessTTL(), s.deps.Config.Auth.RefreshTTL())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	defaultMask, err := acl.ParseRule(s.deps.Config.ACL.DefaultMask)
	if err != nil {
		defaultMask = acl.Mask(0)
	}
	if _, err := s.deps.Accounts.Create(r.Context(), sess.DIDHash, defaultMask, account.TypeStandard); err != nil {
		writeInternalError(w, err)
		return
	}
	s.deps.Collector.AuthAttempt("response", true)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

type refreshRequest struct {
	SessionID    string `json:"session_id"`
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh implements the refresh endpoint. Its own signed,
// encrypted-envelope requirement is enforced the same way round 2's is:
// the caller must present a decrypted, verified envelope whose plaintext
// carries the refresh_token and session_id. A request presented on a
// different session than the refresh token was minted for is a protocol
// error, not a silent re-bind.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(s.deps.Config.Limits.MaxEnvelopeBytes)))
	if err != nil {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "unable to read request body"))
		return
	}
	outer, err := s.deps.Unpacker.UnpackOuter(r.Context(), raw)
	if err != nil || outer.Anonymous {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "refresh request must be signed and encrypted"))
		return
	}
	var req refreshRequest
	if err := json.Unmarshal(outer.Plaintext, &req); err != nil {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "malformed refresh request"))
		return
	}

	access, err := s.deps.Sessions.Refresh(r.Context(), req.RefreshToken, req.SessionID, s.deps.Config.Auth.AccessTTL())
	if err != nil {
		writeProblem(w, mapAuthnError(err))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access})
}

func mapAuthnError(err error) *problem.Report {
	switch err {
	case authn.ErrNonceMismatch, authn.ErrFromMismatch, authn.ErrSigningKeyNotListed, authn.ErrStale, authn.ErrWrongState:
		return problem.Wrap("e.p.session-invalid")
	case authn.ErrTokenExpired:
		return problem.Wrap("e.p.access-token-failure")
	case authn.ErrTokenInvalid, authn.ErrSessionMismatch, authn.ErrNotFound:
		return problem.Wrap("e.p.session-mismatch")
	default:
		return problem.New("e.p.session-invalid", err.Error(), false, http.StatusUnauthorized)
	}
}
