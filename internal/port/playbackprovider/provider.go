// Package playbackprovider defines the external music-playback provider port.
// Every call is scoped to one tenant; the adapter resolves that tenant's
// credential and device.
package playbackprovider

import (
	"context"

	"github.com/Strob0t/requestline/internal/domain/playback"
)

// Provider is the port interface for the external playback service.
type Provider interface {
	// Name returns the provider identifier (e.g. "spotify").
	Name() string

	// Search returns up to limit tracks matching query.
	Search(ctx context.Context, tenantID, query string, limit int) ([]playback.Track, error)

	// GetTrack resolves a URI, share link, or ID. Fails with ErrTrackNotFound.
	GetTrack(ctx context.Context, tenantID, ref string) (*playback.Track, error)

	// AddToQueue appends trackURI to the device queue. An empty deviceID targets the active device.
	AddToQueue(ctx context.Context, tenantID, trackURI, deviceID string) error

	AddToPlaylist(ctx context.Context, tenantID, playlistID, trackURI string) error

	// GetCurrentPlayback returns nil, nil when nothing is playing.
	GetCurrentPlayback(ctx context.Context, tenantID string) (*playback.Snapshot, error)

	GetQueue(ctx context.Context, tenantID string) ([]playback.Track, error)

	Pause(ctx context.Context, tenantID, deviceID string) error
	Resume(ctx context.Context, tenantID, deviceID string) error
	Skip(ctx context.Context, tenantID, deviceID string) error
}
