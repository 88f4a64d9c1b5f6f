// Package server hosts the mediator's HTTP/WebSocket front-end: TLS
// termination, the route table, and session-lifecycle glue between the
// wire and internal/mediator's stack. ConnectionLimiter is adapted from a
// raw-TCP accept-loop connection limiter, generalized from a connection
// count on listener Accept to a count on inbound HTTP requests.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"

	"github.com/affinidi-community/didcomm-mediator/internal/account"
	"github.com/affinidi-community/didcomm-mediator/internal/authn"
	"github.com/affinidi-community/didcomm-mediator/internal/config"
	"github.com/affinidi-community/didcomm-mediator/internal/dispatch"
	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
	"github.com/affinidi-community/didcomm-mediator/internal/logging"
	"github.com/affinidi-community/didcomm-mediator/internal/mailbox"
	"github.com/affinidi-community/didcomm-mediator/internal/metrics"
	"github.com/affinidi-community/didcomm-mediator/internal/oob"
	"github.com/affinidi-community/didcomm-mediator/internal/pubsub"
)

// Deps bundles the mediator components the front-end dispatches into.
// internal/mediator.Stack exposes the stores and processors among these as
// public fields; cmd/mediator takes those from a constructed Stack and
// fills Config, Unpacker and MediatorDIDHash itself.
type Deps struct {
	Config     *config.Config
	Processor  *envelope.Processor
	Dispatcher *dispatch.Dispatcher
	Unpacker   envelope.Unpacker
	Sessions   *authn.Manager
	Accounts   *account.Store
	Mailboxes  *mailbox.Store
	Bus        *pubsub.Bus
	OOB        *oob.Store
	Collector  metrics.Collector

	MediatorDIDHash string
	// DIDDocument is the optional self-hosted DID document served at
	// /.well-known/did.json, nil disables the route.
	DIDDocument []byte
}

// Config holds configuration for creating a new Server.
type Config struct {
	Deps      Deps
	TLSConfig *tls.Config
	Logger    *slog.Logger
}

// Server is the mediator's HTTP/WebSocket listener.
type Server struct {
	deps      Deps
	tlsConfig *tls.Config
	logger    *slog.Logger
	limiter   *ConnectionLimiter
	upgrader  gorillaws.Upgrader

	httpServer *http.Server
}

// New builds the route table and wraps it in an *http.Server bound to
// cfg.Deps.Config.Listen.
func New(sc Config) (*Server, error) {
	if sc.Deps.Config == nil {
		return nil, fmt.Errorf("server: Deps.Config is required")
	}
	logger := sc.Logger
	if logger == nil {
		logger = logging.NewLogger(sc.Deps.Config.LogLevel)
	}
	if sc.Deps.Collector == nil {
		sc.Deps.Collector = &metrics.NoopCollector{}
	}

	s := &Server{
		deps:      sc.Deps,
		tlsConfig: sc.TLSConfig,
		logger:    logger,
		limiter:   NewConnectionLimiter(sc.Deps.Config.Limits.MaxConnections),
		upgrader: gorillaws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.httpServer = &http.Server{
		Addr:      sc.Deps.Config.Listen,
		Handler:   s.routes(),
		TLSConfig: sc.TLSConfig,
	}
	return s, nil
}

// routes builds the endpoint table under the configured path prefix,
// plus the unprefixed .well-known DID document.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.limitMiddleware, s.logMiddleware)

	sub := r.PathPrefix(s.deps.Config.PathPrefix).Subrouter()
	sub.HandleFunc("/authenticate", s.handleAuthenticate).Methods(http.MethodPost)
	sub.HandleFunc("/authentication/refresh", s.handleRefresh).Methods(http.MethodPost)
	sub.HandleFunc("/inbound", s.handleInbound).Methods(http.MethodPost)
	sub.HandleFunc("/outbound", s.handleOutbound).Methods(http.MethodGet)
	sub.HandleFunc("/delete", s.handleDelete).Methods(http.MethodPost)
	sub.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	sub.HandleFunc("/oob", s.handleOOB).Methods(http.MethodGet, http.MethodPost, http.MethodDelete)

	if s.deps.DIDDocument != nil {
		r.HandleFunc("/.well-known/did.json", s.handleWellKnownDID).Methods(http.MethodGet)
	}
	return r
}

// limitMiddleware enforces the outer back-pressure layer: inbound HTTP
// requests bounded by the connection cap, the same slot-acquire/release
// idiom ConnectionLimiter uses for a raw accept loop.
func (s *Server) limitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.TryAcquire() {
			http.Error(w, ErrCapacity.Error(), http.StatusServiceUnavailable)
			return
		}
		defer s.limiter.Release()
		s.deps.Collector.ConnectionOpened()
		defer s.deps.Collector.ConnectionClosed()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithContext(r.Context(), s.logger.With("path", r.URL.Path, "method", r.Method))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Run starts the HTTP(S) listener and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.tlsConfig != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	s.logger.Info("server starting", slog.String("listen", s.deps.Config.Listen), slog.Bool("tls", s.tlsConfig != nil))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Handler exposes the built route table, primarily for tests that drive
// the server with httptest.NewServer without opening a real listener.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }
