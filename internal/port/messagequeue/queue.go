// Package messagequeue defines the message queue port (interface) used to
// relay change events between replicas.
package messagequeue

import (
	"context"
	"strings"
)

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject pattern.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

const (
	subjectPrefix = "requestline.tenant."
	changesSuffix = ".changes"

	// SubjectAllTenantChanges matches every tenant's change subject.
	SubjectAllTenantChanges = subjectPrefix + "*" + changesSuffix
)

// SubjectTenantChanges returns the per-tenant change subject.
func SubjectTenantChanges(tenantID string) string {
	return subjectPrefix + tenantID + changesSuffix
}

// TenantFromSubject extracts the tenant ID from a change subject.
func TenantFromSubject(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, changesSuffix)
	if !ok || id == "" || strings.ContainsAny(id, ".*>") {
		return "", false
	}
	return id, true
}
