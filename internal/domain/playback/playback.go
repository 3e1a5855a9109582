// Package playback defines the provider-side view of a tenant's playback and
// the rules for reconciling it with approved requests.
package playback

// Track is a resolved provider track.
type Track struct {
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album,omitempty"`
	DurationMS int      `json:"duration_ms"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// Device is the provider device that playback targets.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	IsActive bool   `json:"is_active"`
}

// Snapshot is the raw playback state fetched from the provider for one tenant.
type Snapshot struct {
	IsPlaying  bool    `json:"is_playing"`
	Current    *Track  `json:"current_track,omitempty"`
	ProgressMS int     `json:"progress_ms"`
	Queue      []Track `json:"queue"`
	Device     *Device `json:"device,omitempty"`
}

// Entry is one display row: a track optionally annotated with its request.
type Entry struct {
	Track     Track  `json:"track"`
	RequestID string `json:"request_id,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Requested bool   `json:"requested"`
}

// Display is the reconciled, display-only view served to screens and guests.
// It carries no progress counter so repeated reads without a mutation are identical.
type Display struct {
	IsPlaying bool    `json:"is_playing"`
	Current   *Entry  `json:"current_track,omitempty"`
	Queue     []Entry `json:"queue"`
	Recent    []Entry `json:"recently_played"`
	Device    *Device `json:"device,omitempty"`
}

// SearchRequest is the guest-facing search query.
type SearchRequest struct {
	Query string `json:"q" validate:"required,max=200"`
	Limit int    `json:"limit"`
}

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 20
)

// ClampLimit bounds a search limit to 1..MaxSearchLimit, defaulting when unset.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultSearchLimit
	case n > MaxSearchLimit:
		return MaxSearchLimit
	}
	return n
}
