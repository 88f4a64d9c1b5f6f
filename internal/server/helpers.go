package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/affinidi-community/didcomm-mediator/internal/authn"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeProblem renders a DIDComm problem report over REST, mirroring its
// error class in the HTTP status.
func writeProblem(w http.ResponseWriter, r *problem.Report) {
	writeJSON(w, r.HTTPStatus(), r)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeProblem(w, problem.New("e.p.session-invalid", err.Error(), true, http.StatusInternalServerError))
}

// bearerToken extracts the access token from the Authorization header
// ("Bearer <token>").
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// requireSession validates the request's bearer access token and returns
// its claims, or a problem report ready to write to the client.
func (s *Server) requireSession(r *http.Request) (*authn.Claims, *problem.Report) {
	token := bearerToken(r)
	if token == "" {
		return nil, problem.Wrap("e.p.access-token-failure")
	}
	claims, err := s.deps.Sessions.ValidateAccessToken(token)
	if err != nil {
		return nil, problem.Wrap("e.p.access-token-failure")
	}
	return claims, nil
}
