// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist for the calling tenant.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed input. Wrap it with the field-level reason.
var ErrValidation = errors.New("validation failed")

// ErrUnauthorized indicates missing or invalid host/guest credentials.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidTransition is returned for a lifecycle move outside the transition table.
var ErrInvalidTransition = errors.New("invalid event transition")

// ErrEventOffline is returned when a page toggle is attempted while the event is offline.
var ErrEventOffline = errors.New("event is offline")

// ErrRequestsClosed is returned when guests submit while the requests page is not live.
var ErrRequestsClosed = errors.New("requests are closed")

// ErrTrackNotFound is returned when the playback provider cannot resolve a track reference.
var ErrTrackNotFound = errors.New("track not found")

// ErrDuplicateRequest is returned when the same track is already requested within the lookback window.
var ErrDuplicateRequest = errors.New("track was already requested recently")

// ErrRateLimited is returned when a requester exceeds the submission limits.
var ErrRateLimited = errors.New("too many requests")

// ErrAlreadyProcessed is returned when a request is not in a state the operation can claim.
var ErrAlreadyProcessed = errors.New("request already processed")

// ErrAdapter wraps every failure reported by the external playback provider.
var ErrAdapter = errors.New("playback provider error")

// ErrQueueFailed marks a failed add-to-queue side effect. It always wraps ErrAdapter.
var ErrQueueFailed = fmt.Errorf("%w: add to queue failed", ErrAdapter)

// ErrPlaylistFailed marks a failed add-to-playlist side effect. It always wraps ErrAdapter.
var ErrPlaylistFailed = fmt.Errorf("%w: add to playlist failed", ErrAdapter)
