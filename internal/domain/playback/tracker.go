package playback

import "slices"

type seenTrack struct {
	requestID string
	uri       string
	key       string
}

// Tracker detects finished request tracks for one tenant across poll cycles.
// A request whose track was current and is then absent from both current and
// queue becomes pending; it is reported as played only if it is still absent
// on the following cycle. Reappearing cancels the pending entry.
// A Tracker is owned by a single poller and is not safe for concurrent use.
type Tracker struct {
	last    *seenTrack
	pending map[string]seenTrack
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]seenTrack)}
}

// Observe feeds one poll cycle and returns request IDs confirmed as played,
// sorted for stable processing. upcoming are the tenant's approved requests.
func (t *Tracker) Observe(snap *Snapshot, upcoming []Candidate) []string {
	uris := make(map[string]bool)
	keys := make(map[string]bool)
	if snap != nil {
		if snap.Current != nil {
			uris[CanonicalURI(snap.Current.URI)] = true
			keys[Key(*snap.Current)] = true
		}
		for _, q := range snap.Queue {
			uris[CanonicalURI(q.URI)] = true
			keys[Key(q)] = true
		}
	}
	present := func(s seenTrack) bool { return uris[s.uri] || keys[s.key] }

	var due []string
	for id, s := range t.pending {
		if !present(s) {
			due = append(due, id)
		}
		delete(t.pending, id)
	}

	if t.last != nil && !present(*t.last) && !slices.Contains(due, t.last.requestID) {
		t.pending[t.last.requestID] = *t.last
	}

	t.last = nil
	if snap != nil && snap.Current != nil {
		if c, ok := NewMatcher(upcoming).Match(*snap.Current); ok {
			t.last = &seenTrack{
				requestID: c.RequestID,
				uri:       CanonicalURI(snap.Current.URI),
				key:       Key(*snap.Current),
			}
		}
	}

	slices.Sort(due)
	return due
}

// Pending reports how many requests await confirmation.
func (t *Tracker) Pending() int {
	return len(t.pending)
}
