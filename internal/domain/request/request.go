// Package request defines guest song requests and their approval workflow states.
package request

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/requestline/internal/domain/playback"
)

// Status is the workflow state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusQueued   Status = "queued"
	StatusFailed   Status = "failed"
	StatusPlayed   Status = "played"

	// StatusProcessing is the in-flight claim marker held while side effects run.
	StatusProcessing Status = "processing"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusQueued,
		StatusFailed, StatusPlayed, StatusProcessing:
		return true
	}
	return false
}

// Claim source sets. A claim atomically moves a request from one of these to StatusProcessing.
var (
	// ApproveFrom also covers re-approval of rejected or played requests (re-queue).
	ApproveFrom = []Status{StatusPending, StatusRejected, StatusPlayed}
	RejectFrom  = []Status{StatusPending}
	RetryFrom   = []Status{StatusFailed, StatusApproved}
	PlayedFrom  = []Status{StatusApproved, StatusQueued}
)

// Active lists the non-terminal statuses used by duplicate suppression.
// Processing counts as active so a track cannot be re-requested mid-approval.
var Active = []Status{StatusPending, StatusApproved, StatusQueued, StatusProcessing}

// Upcoming lists statuses the display reconciler matches queue entries against.
var Upcoming = []Status{StatusApproved, StatusQueued}

// In reports whether s is one of set.
func (s Status) In(set []Status) bool {
	return slices.Contains(set, s)
}

// Request is a guest's song submission scoped to one tenant.
type Request struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	Track             playback.Track `json:"track"`
	Fingerprint       string         `json:"-"`
	Nickname          string         `json:"nickname,omitempty"`
	Status            Status         `json:"status"`
	ApprovedBy        string         `json:"approved_by,omitempty"`
	RejectionReason   string         `json:"rejection_reason,omitempty"`
	AddedToQueue      bool           `json:"spotify_added_to_queue"`
	AddedToPlaylist   bool           `json:"spotify_added_to_playlist"`
	LastError         string         `json:"last_error,omitempty"`
	Attempts          int            `json:"attempts"`
	CreatedAt         time.Time      `json:"created_at"`
	ApprovedAt        *time.Time     `json:"approved_at,omitempty"`
	ClaimedAt         *time.Time     `json:"claimed_at,omitempty"`
	PlayedAt          *time.Time     `json:"played_at,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
	RequestedQueue    bool           `json:"requested_queue"`
	RequestedPlaylist bool           `json:"requested_playlist"`
}

// SubmitRequest is the guest-facing body for a new request. Track accepts a
// provider URI, share link, or bare track ID.
type SubmitRequest struct {
	Track    string `json:"track" validate:"required,max=256"`
	Nickname string `json:"nickname" validate:"max=32"`
}

// NewRequest is what the store needs to insert a pending request.
type NewRequest struct {
	TenantID    string
	Track       playback.Track
	Fingerprint string
	Nickname    string
}

// ApproveOptions selects which external side effects an approval performs.
//
// PlayNext queues the track and then skips the current one. The provider has
// no insert-at-front call, so the approved track only plays next when the
// provider queue was otherwise empty; otherwise the skip advances to whatever
// was already at the head of the queue. The skip is not attempted when the
// queue add fails.
type ApproveOptions struct {
	AddToQueue    bool   `json:"add_to_queue"`
	AddToPlaylist bool   `json:"add_to_playlist"`
	PlayNext      bool   `json:"play_next"`
	ApprovedBy    string `json:"-"`
}

// RejectRequest is the host-facing body for a rejection.
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=280"`
}

// SideEffect is the independent result of one external call.
type SideEffect struct {
	Requested bool   `json:"requested"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// Outcome is the recorded result of one approval cycle.
type Outcome struct {
	Status   Status     `json:"status"`
	Queue    SideEffect `json:"queue"`
	Playlist SideEffect `json:"playlist"`
}

// Resolve derives the final status: approved when any requested side effect
// succeeded or none was requested, failed otherwise.
func (o *Outcome) Resolve() Status {
	if !o.Queue.Requested && !o.Playlist.Requested {
		return StatusApproved
	}
	if o.Queue.Succeeded || o.Playlist.Succeeded {
		return StatusApproved
	}
	return StatusFailed
}

// ErrorText joins the side-effect errors for storage.
func (o *Outcome) ErrorText() string {
	var parts []string
	if o.Queue.Error != "" {
		parts = append(parts, "queue: "+o.Queue.Error)
	}
	if o.Playlist.Error != "" {
		parts = append(parts, "playlist: "+o.Playlist.Error)
	}
	return strings.Join(parts, "; ")
}

// Completion is written by the CAS that releases a claim.
type Completion struct {
	Status            Status
	AddedToQueue      bool
	AddedToPlaylist   bool
	RequestedQueue    bool
	RequestedPlaylist bool
	LastError         string
	ApprovedBy        string
	Reason            string
}

// Order selects the sort order of a listing.
type Order int

const (
	// OrderCreated lists oldest submissions first (host inbox).
	OrderCreated Order = iota
	// OrderApproved lists in play order, oldest approval first.
	OrderApproved
	// OrderPlayedDesc lists most recently played first.
	OrderPlayedDesc
)

// ListFilter narrows a tenant's request listing.
type ListFilter struct {
	Statuses []Status
	Order    Order
	Limit    int
}

// Fingerprint hashes the requester's origin parts with secret so raw identity
// is never stored or used as a rate-limit key.
func Fingerprint(secret []byte, parts ...string) string {
	mac := hmac.New(sha256.New, secret)
	for i, p := range parts {
		if i > 0 {
			mac.Write([]byte{0})
		}
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}
