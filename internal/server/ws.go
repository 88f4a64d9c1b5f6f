package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/affinidi-community/didcomm-mediator/internal/authn"
	"github.com/affinidi-community/didcomm-mediator/internal/envelope"
	"github.com/affinidi-community/didcomm-mediator/internal/logging"
	"github.com/affinidi-community/didcomm-mediator/internal/problem"
	"github.com/affinidi-community/didcomm-mediator/internal/pubsub"
)

// handleWebSocket validates the access token at the HTTP upgrade, binds
// the socket to the session, then loops reading wire messages into the
// envelope pipeline and writing out anything the pub/sub bus delivers
// live for this DID.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		writeProblem(w, problem.Wrap("e.p.access-token-failure"))
		return
	}

	claims, err := s.deps.Sessions.ValidateAccessToken(token)
	if err != nil {
		writeProblem(w, mapAuthnError(err))
		return
	}
	sess, err := s.deps.Sessions.BindWebSocket(r.Context(), claims.SessionID, token)
	if err != nil {
		writeProblem(w, mapAuthnError(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	s.deps.Collector.WebSocketUpgraded()

	sub := s.deps.Bus.Subscribe(r.Context(), sess.DIDHash)
	defer sub.Close()

	logger := s.logger.With("did_hash", sess.DIDHash, "session_id", sess.ID)
	ctx := logging.WithContext(r.Context(), logger)

	done := make(chan struct{})
	go s.wsReadLoop(ctx, conn, sess, done)
	s.wsWriteLoop(conn, sub, done)
}

// wsReadLoop feeds every inbound wire frame through the envelope pipeline.
// Both text and binary frames are accepted: binary carries raw DIDComm
// envelope bytes, text is the same bytes sent as a UTF-8 frame.
func (s *Server) wsReadLoop(ctx context.Context, conn *gorillaws.Conn, sess *authn.Session, done chan struct{}) {
	defer close(done)
	logger := logging.FromContext(ctx)
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != gorillaws.TextMessage && msgType != gorillaws.BinaryMessage {
			continue
		}

		_, procErr := s.deps.Processor.Process(ctx, envelope.Input{
			Raw:             raw,
			SessionDIDHash:  sess.DIDHash,
			ReceivedAtMilli: time.Now().UnixMilli(),
			DefaultTTLMilli: s.deps.Config.Expiry.MessageTTLDuration().Milliseconds(),
		})
		if procErr != nil {
			logger.Warn("websocket message rejected", slog.String("error", procErr.Error()))
			if writeErr := conn.WriteJSON(asProblem(procErr)); writeErr != nil {
				return
			}
		}
	}
}

// wsWriteLoop forwards every live-delivery publish for this DID out over
// the socket until the read loop exits or the subscription drains.
func (s *Server) wsWriteLoop(conn *gorillaws.Conn, sub *pubsub.Subscription, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := conn.WriteMessage(gorillaws.BinaryMessage, payload); err != nil {
				return
			}
		}
	}
}
