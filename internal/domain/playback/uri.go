package playback

import (
	"net/url"
	"regexp"
	"strings"
)

const trackURIPrefix = "spotify:track:"

var trackIDRegex = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)

// TrackID extracts the provider track ID from a URI, share link, or bare ID.
func TrackID(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if id, ok := strings.CutPrefix(ref, trackURIPrefix); ok {
		if !trackIDRegex.MatchString(id) {
			return "", false
		}
		return id, true
	}
	if trackIDRegex.MatchString(ref) {
		return ref, true
	}

	raw := ref
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Host, "open.spotify.com") {
		return "", false
	}
	// Paths look like /track/{id} or /intl-xx/track/{id}.
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "track" && trackIDRegex.MatchString(parts[i+1]) {
			return parts[i+1], true
		}
	}
	return "", false
}

// CanonicalURI returns spotify:track:{id} for any recognized reference, or the
// trimmed input when the format is unknown.
func CanonicalURI(ref string) string {
	if id, ok := TrackID(ref); ok {
		return trackURIPrefix + id
	}
	return strings.TrimSpace(ref)
}
