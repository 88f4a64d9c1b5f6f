// Package metrics provides interfaces and implementations for collecting
// mediator metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording mediator metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()
	WebSocketUpgraded()

	// Authentication metrics
	AuthAttempt(stage string, success bool)

	// Protocol dispatch metrics
	MessageTypeProcessed(typeURI string)

	// Mailbox metrics
	MessageStored(direction string)
	MessageDelivered(direction string)
	MessageDeduped()
	MessageExpired()
	QueueRejected(reason string)

	// Forwarding metrics
	ForwardAttempt(result string)
	ForwardQueueDepth(n int)

	// ACL metrics
	ACLDenied(rule string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
