package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/affinidi-community/didcomm-mediator/internal/authn"
	"github.com/affinidi-community/didcomm-mediator/internal/config"
	"github.com/affinidi-community/didcomm-mediator/internal/metrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.PathPrefix = ""
	srv, err := New(Config{
		Deps: Deps{
			Config:    &cfg,
			Collector: &metrics.NoopCollector{},
		},
	})
	require.NoError(t, err)
	return srv
}

func TestBearerTokenExtractsFromAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/outbound", nil)
	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	require.Equal(t, "abc.def.ghi", bearerToken(r))
}

func TestBearerTokenRejectsNonBearerScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/outbound", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Empty(t, bearerToken(r))
}

func TestMapAuthnErrorTranslatesSentinelsToProblemCodes(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{authn.ErrNonceMismatch, "e.p.session-invalid"},
		{authn.ErrStale, "e.p.session-invalid"},
		{authn.ErrTokenExpired, "e.p.access-token-failure"},
		{authn.ErrSessionMismatch, "e.p.session-mismatch"},
	}
	for _, tc := range cases {
		report := mapAuthnError(tc.err)
		require.Equal(t, tc.code, report.Code)
	}
}

func TestRoutesServeWellKnownDIDDocument(t *testing.T) {
	srv := newTestServer(t)
	srv.deps.DIDDocument = []byte(`{"id":"did:web:mediator.example"}`)
	srv.httpServer.Handler = srv.routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/.well-known/did.json", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"did:web:mediator.example"}`, rec.Body.String())
}

func TestInboundRequiresAccessToken(t *testing.T) {
	srv := newTestServer(t)
	srv.httpServer.Handler = srv.routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbound", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOOBGetRequiresIDParameter(t *testing.T) {
	srv := newTestServer(t)
	srv.httpServer.Handler = srv.routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oob", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.NotEqual(t, http.StatusOK, rec.Code)
}
