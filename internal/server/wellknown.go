package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/affinidi-community/didcomm-mediator/internal/oob"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

// handleWellKnownDID serves the mediator's own DID document, used by
// out-of-band invitees to resolve the mediator's service endpoint without
// a prior connection.
func (s *Server) handleWellKnownDID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.deps.DIDDocument)
}

type oobCreateRequest struct {
	Blob json.RawMessage `json:"blob"`
}

type oobResponse struct {
	ID         string `json:"id"`
	InviterDID string `json:"inviter_did"`
	ExpiresAt  int64  `json:"expires_at"`
}

// handleOOB serves the out-of-band invitation record: GET retrieves an
// invitation by id, POST mints a new one for the authenticated caller,
// gated by the CreateInvites ACL bit.
func (s *Server) handleOOB(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleOOBGet(w, r)
	case http.MethodPost:
		s.handleOOBCreate(w, r)
	case http.MethodDelete:
		s.handleOOBDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOOBGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "missing id query parameter"))
		return
	}
	inv, err := s.deps.OOB.Get(r.Context(), id)
	if err != nil {
		writeProblem(w, problem.New("e.p.session-invalid", "invitation not found or expired", false, http.StatusNotFound))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(inv.Blob)
}

func (s *Server) handleOOBCreate(w http.ResponseWriter, r *http.Request) {
	claims, perr := s.requireSession(r)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	acct, err := s.deps.Accounts.Get(r.Context(), claims.DIDHash)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !acct.ACL.CreateInvites() {
		writeProblem(w, problem.Wrap("e.p.access-list-denied"))
		return
	}

	var req oobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Blob) == 0 {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "malformed invitation request"))
		return
	}

	inv, err := s.deps.OOB.Create(r.Context(), claims.DIDHash, req.Blob, s.deps.Config.OOB.InviteTTLDuration())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, oobResponse{
		ID:         inv.ID,
		InviterDID: inv.InviterDIDHash,
		ExpiresAt:  inv.ExpiresAt,
	})
}

// handleOOBDelete implements the owner-or-admin deletion rule for
// out-of-band invitations.
func (s *Server) handleOOBDelete(w http.ResponseWriter, r *http.Request) {
	claims, perr := s.requireSession(r)
	if perr != nil {
		writeProblem(w, perr)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "missing id query parameter"))
		return
	}

	inv, err := s.deps.OOB.Get(r.Context(), id)
	if errors.Is(err, oob.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeInternalError(w, err)
		return
	}

	acct, err := s.deps.Accounts.Get(r.Context(), claims.DIDHash)
	isAdmin := err == nil && acct.Type.IsAdminClass()
	if !oob.CanDelete(inv, claims.DIDHash, isAdmin) {
		writeProblem(w, problem.Wrap("e.p.access-list-denied"))
		return
	}

	if err := s.deps.OOB.Delete(r.Context(), id); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
