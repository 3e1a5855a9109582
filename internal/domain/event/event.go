// Package event defines the per-tenant party Event and its lifecycle rules.
package event

import (
	"fmt"
	"time"

	"github.com/Strob0t/requestline/internal/domain"
)

// Status is the lifecycle state of a tenant's event.
type Status string

const (
	StatusOffline Status = "offline"
	StatusStandby Status = "standby"
	StatusLive    Status = "live"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOffline, StatusStandby, StatusLive:
		return true
	}
	return false
}

// Page names a guest-facing page that can be toggled.
type Page string

const (
	PageRequests Page = "requests"
	PageDisplay  Page = "display"
)

// Valid reports whether p is a known page.
func (p Page) Valid() bool {
	return p == PageRequests || p == PageDisplay
}

// PagesEnabled holds the per-page enable flags. Both are false while offline.
type PagesEnabled struct {
	Requests bool `json:"requests"`
	Display  bool `json:"display"`
}

// With returns a copy with page set to enabled.
func (p PagesEnabled) With(page Page, enabled bool) PagesEnabled {
	switch page {
	case PageRequests:
		p.Requests = enabled
	case PageDisplay:
		p.Display = enabled
	}
	return p
}

// Enabled reports the flag for page.
func (p PagesEnabled) Enabled(page Page) bool {
	switch page {
	case PageRequests:
		return p.Requests
	case PageDisplay:
		return p.Display
	}
	return false
}

// Event is the lifecycle and visibility record for one tenant's party.
// Pin and BypassToken are guest access codes and are never serialized.
type Event struct {
	TenantID    string       `json:"tenant_id"`
	Status      Status       `json:"status"`
	Pages       PagesEnabled `json:"pages_enabled"`
	Pin         string       `json:"-"`
	BypassToken string       `json:"-"`
	Sequence    int64        `json:"sequence"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Usable reports whether guests can reach the event at all.
func (e *Event) Usable() bool {
	return e.Status != StatusOffline
}

// AcceptingRequests reports whether guest submissions are open.
func (e *Event) AcceptingRequests() bool {
	return e.Status == StatusLive && e.Pages.Requests
}

// transitions lists every allowed lifecycle edge. offline<->live always hops through standby.
var transitions = map[Status]map[Status]bool{
	StatusOffline: {StatusStandby: true},
	StatusStandby: {StatusLive: true, StatusOffline: true},
	StatusLive:    {StatusStandby: true},
}

// CanTransition reports whether moving from current to target is allowed.
func CanTransition(current, target Status) bool {
	return transitions[current][target]
}

// CheckTransition returns ErrInvalidTransition for an illegal move.
func CheckTransition(current, target Status) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, target)
	}
	if !CanTransition(current, target) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, target)
	}
	return nil
}

// StatusRequest is the host-facing body for a lifecycle change.
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=offline standby live"`
}

// PageRequest is the host-facing body for a page toggle.
type PageRequest struct {
	Enabled bool `json:"enabled"`
}

// AccessCodes is returned to the host after rotation.
type AccessCodes struct {
	Pin         string `json:"pin"`
	BypassToken string `json:"bypass_token"`
}
