package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

// handleInbound is the REST fallback for submitting a DIDComm wire
// message: the same envelope.Processor pipeline the WebSocket path feeds,
// requiring a valid access token so the processor's ForceSessionDIDMatch
// policy has a session DID to compare against.
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	claims, perr := s.requireSession(r)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(s.deps.Config.Limits.MaxEnvelopeBytes)+1))
	if err != nil {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "unable to read request body"))
		return
	}

	now := time.Now()
	_, err = s.deps.Processor.Process(r.Context(), envelope.Input{
		Raw:             raw,
		SessionDIDHash:  claims.DIDHash,
		ReceivedAtMilli: now.UnixMilli(),
		DefaultTTLMilli: s.deps.Config.Expiry.MessageTTLDuration().Milliseconds(),
	})
	if err != nil {
		writeProblem(w, asProblem(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// outboundAttachment mirrors internal/dispatch's pickup-delivery attachment
// shape so REST and DIDComm pickup clients see the same wire format.
type outboundAttachment struct {
	ID   string `json:"id"`
	Data struct {
		Base64 string `json:"base64"`
	} `json:"data"`
}

type outboundResponse struct {
	MessageCount int64                `json:"message_count"`
	TotalBytes   int64                `json:"total_bytes"`
	Attachments  []outboundAttachment `json:"attachments~attach,omitempty"`
}

// handleOutbound is the REST fallback for message-pickup: returns the
// caller's own pending mailbox as base64 attachments, the same contract
// as the DIDComm pickup-delivery-request.
func (s *Server) handleOutbound(w http.ResponseWriter, r *http.Request) {
	claims, perr := s.requireSession(r)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	limit := int64(0)
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.ParseInt(q, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}

	hardCap := int64(-1)
	if acct, err := s.deps.Accounts.Get(r.Context(), claims.DIDHash); err == nil && acct.RecvLimit >= 0 {
		hardCap = int64(acct.RecvLimit)
	}

	messages, err := s.deps.Mailboxes.List(r.Context(), claims.DIDHash, limit, hardCap)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	count, totalBytes, err := s.deps.Mailboxes.Counts(r.Context(), claims.DIDHash)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	attachments := make([]outboundAttachment, 0, len(messages))
	for _, m := range messages {
		var a outboundAttachment
		a.ID = m.ContentHash
		a.Data.Base64 = base64.StdEncoding.EncodeToString(m.Envelope)
		attachments = append(attachments, a)
	}

	writeJSON(w, http.StatusOK, outboundResponse{
		MessageCount: count,
		TotalBytes:   totalBytes,
		Attachments:  attachments,
	})
}

type deleteRequest struct {
	MessageIDList []string `json:"message_id_list"`
}

// handleDelete is the REST fallback for message-pickup's acknowledged
// delete: removes the listed content-hashes from the caller's receive
// queue.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims, perr := s.requireSession(r)
	if perr != nil {
		writeProblem(w, perr)
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, problem.Wrap("e.p.message-unpack", "malformed delete request"))
		return
	}

	if err := s.deps.Mailboxes.Delete(r.Context(), claims.DIDHash, req.MessageIDList); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// asProblem surfaces a *problem.Report as-is so its HTTP status and code
// reach the client; anything else is wrapped as an internal error.
func asProblem(err error) *problem.Report {
	if r, ok := err.(*problem.Report); ok {
		return r
	}
	return problem.New("e.p.session-invalid", err.Error(), true, http.StatusInternalServerError)
}
