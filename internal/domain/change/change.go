// Package change defines the ephemeral, tenant-scoped notifications pushed to
// subscribers. A change is a hint to refetch, never the source of truth.
package change

import (
	"encoding/json"
	"strings"
	"sync"
)

// Kind identifies the category of state delta. Ordering is only meaningful within one kind.
type Kind string

const (
	KindEventStatus     Kind = "event.status"
	KindEventPages      Kind = "event.pages"
	KindRequestApproved Kind = "request.approved"
	KindRequestPlayed   Kind = "request.played"
	KindPlayback        Kind = "playback"
)

// Event is a single change notification for one tenant.
type Event struct {
	TenantID string          `json:"tenant_id"`
	Kind     Kind            `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Sequence int64           `json:"sequence"`
}

const channelPrefix = "tenant:"

// Channel returns the tenant's channel name. There is no global channel.
func Channel(tenantID string) string {
	return channelPrefix + tenantID
}

// TenantFromChannel extracts the tenant ID from a channel name.
func TenantFromChannel(ch string) (string, bool) {
	id, ok := strings.CutPrefix(ch, channelPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// New builds an Event, marshaling payload to JSON.
func New(tenantID string, kind Kind, seq int64, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = b
	}
	return Event{TenantID: tenantID, Kind: kind, Payload: raw, Sequence: seq}, nil
}

// Latest tracks the highest sequence seen per kind and drops stale updates.
// It is safe for concurrent use.
type Latest struct {
	mu   sync.Mutex
	seen map[Kind]int64
}

// NewLatest returns an empty tracker.
func NewLatest() *Latest {
	return &Latest{seen: make(map[Kind]int64)}
}

// Accept reports whether ev is newer than anything seen for its kind and records it.
func (l *Latest) Accept(ev Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.seen[ev.Kind]; ok && ev.Sequence <= last {
		return false
	}
	l.seen[ev.Kind] = ev.Sequence
	return true
}

// Observe raises the floor for kind to seq without reporting. Used when an
// authoritative snapshot supersedes everything up to seq.
func (l *Latest) Observe(kind Kind, seq int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq > l.seen[kind] {
		l.seen[kind] = seq
	}
}

// Sequence returns the last accepted sequence for kind.
func (l *Latest) Sequence(kind Kind) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[kind]
}
