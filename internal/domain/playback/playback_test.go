package playback

import (
	"reflect"
	"testing"
)

const (
	idA = "4uLU6hMCjMI75M1A2tKUQC"
	idB = "7GhIk7Il098yCjg4BQjzvb"
	idC = "0VjIjW4GlUZAMYd2vXMi3b"
)

func TestTrackID(t *testing.T) {
	tests := []struct {
		ref    string
		wantID string
		ok     bool
	}{
		{"spotify:track:" + idA, idA, true},
		{"https://open.spotify.com/track/" + idA + "?si=abc", idA, true},
		{"open.spotify.com/intl-de/track/" + idA, idA, true},
		{idA, idA, true},
		{"  " + idA + "  ", idA, true},
		{"https://example.com/track/" + idA, "", false},
		{"spotify:track:short", "", false},
		{"bohemian rhapsody", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			id, ok := TrackID(tt.ref)
			if ok != tt.ok || id != tt.wantID {
				t.Errorf("TrackID(%q) = %q, %v; want %q, %v", tt.ref, id, ok, tt.wantID, tt.ok)
			}
		})
	}
}

func TestCanonicalURI(t *testing.T) {
	if got := CanonicalURI("https://open.spotify.com/track/" + idA); got != "spotify:track:"+idA {
		t.Errorf("CanonicalURI(link) = %q", got)
	}
	if got := CanonicalURI(" local:file "); got != "local:file" {
		t.Errorf("CanonicalURI(unknown) = %q", got)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Bohemian Rhapsody - Remastered 2011", "bohemian rhapsody"},
		{"Bohemian Rhapsody (Remastered 2011)", "bohemian rhapsody"},
		{"Don't Stop Me Now", "don t stop me now"},
		{"Levitating (feat. DaBaby)", "levitating"},
		{"Levitating feat. DaBaby", "levitating"},
		{"Rock & Roll", "rock and roll"},
		{"  Spaced   Out  ", "spaced out"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeTitle(tt.in); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeArtists(t *testing.T) {
	got := NormalizeArtists([]string{"Queen", "David Bowie", "queen", ""})
	want := []string{"david bowie", "queen"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeArtists = %v, want %v", got, want)
	}
}

func TestMatcher_URIThenKey(t *testing.T) {
	cands := []Candidate{
		{RequestID: "r1", Nickname: "ana", Track: Track{URI: "https://open.spotify.com/track/" + idA, Name: "One", Artists: []string{"X"}}},
		{RequestID: "r2", Nickname: "ben", Track: Track{URI: "spotify:track:" + idB, Name: "Under Pressure - Remastered", Artists: []string{"Queen", "David Bowie"}}},
	}
	m := NewMatcher(cands)

	c, ok := m.Match(Track{URI: "spotify:track:" + idA, Name: "Different Title"})
	if !ok || c.RequestID != "r1" {
		t.Fatalf("URI match failed: %+v %v", c, ok)
	}
	// Relinked track: different ID, same normalized title and artists.
	c, ok = m.Match(Track{URI: "spotify:track:" + idC, Name: "Under Pressure", Artists: []string{"David Bowie", "Queen"}})
	if !ok || c.RequestID != "r2" {
		t.Fatalf("key match failed: %+v %v", c, ok)
	}
	if _, ok := m.Match(Track{URI: "spotify:track:" + idA}); ok {
		t.Fatal("candidate must be matched at most once")
	}
}

func TestAnnotate(t *testing.T) {
	snap := &Snapshot{
		IsPlaying:  true,
		ProgressMS: 12345,
		Current:    &Track{URI: "spotify:track:" + idA, Name: "One"},
		Queue: []Track{
			{URI: "spotify:track:" + idB, Name: "Two"},
			{URI: "spotify:track:" + idC, Name: "Three"},
		},
		Device: &Device{ID: "dev1", Name: "Club PA"},
	}
	upcoming := []Candidate{{RequestID: "r2", Nickname: "ben", Track: Track{URI: "spotify:track:" + idB}}}
	recent := []Candidate{{RequestID: "r0", Nickname: "zoe", Track: Track{URI: "spotify:track:x", Name: "Zero"}}}

	d := Annotate(snap, upcoming, recent)
	if !d.IsPlaying || d.Device == nil || d.Device.ID != "dev1" {
		t.Fatalf("unexpected header: %+v", d)
	}
	if d.Current == nil || d.Current.Requested {
		t.Fatalf("current should be unrequested: %+v", d.Current)
	}
	if len(d.Queue) != 2 || d.Queue[0].Nickname != "ben" || d.Queue[1].Requested {
		t.Fatalf("unexpected queue: %+v", d.Queue)
	}
	if len(d.Recent) != 1 || d.Recent[0].RequestID != "r0" {
		t.Fatalf("unexpected recent: %+v", d.Recent)
	}

	empty := Annotate(nil, upcoming, nil)
	if empty.IsPlaying || empty.Current != nil || empty.Queue == nil || len(empty.Queue) != 0 {
		t.Fatalf("nil snapshot should yield empty view: %+v", empty)
	}
}

func TestTracker_TwoCycleConfirmation(t *testing.T) {
	req := Track{URI: "spotify:track:" + idA, Name: "One", Artists: []string{"X"}}
	other := Track{URI: "spotify:track:" + idB, Name: "Two"}
	upcoming := []Candidate{{RequestID: "r1", Track: req}}

	tr := NewTracker()
	if due := tr.Observe(&Snapshot{Current: &req}, upcoming); len(due) != 0 {
		t.Fatalf("cycle 1: unexpected due %v", due)
	}
	// Track gone: pending, not yet committed.
	if due := tr.Observe(&Snapshot{Current: &other}, upcoming); len(due) != 0 {
		t.Fatalf("cycle 2: unexpected due %v", due)
	}
	if tr.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", tr.Pending())
	}
	// Still absent a full cycle later: committed.
	due := tr.Observe(&Snapshot{Current: &other}, upcoming)
	if !reflect.DeepEqual(due, []string{"r1"}) {
		t.Fatalf("cycle 3: due = %v, want [r1]", due)
	}
	if tr.Pending() != 0 {
		t.Fatalf("pending after commit = %d", tr.Pending())
	}
}

func TestTracker_TransientHiccupCancels(t *testing.T) {
	req := Track{URI: "spotify:track:" + idA, Name: "One"}
	upcoming := []Candidate{{RequestID: "r1", Track: req}}

	tr := NewTracker()
	tr.Observe(&Snapshot{Current: &req}, upcoming)
	// Provider hiccup: empty snapshot.
	if due := tr.Observe(nil, upcoming); len(due) != 0 {
		t.Fatalf("hiccup: unexpected due %v", due)
	}
	// Track is back in the queue: pending entry is cancelled.
	if due := tr.Observe(&Snapshot{Queue: []Track{req}}, upcoming); len(due) != 0 {
		t.Fatalf("recovery: unexpected due %v", due)
	}
	if due := tr.Observe(&Snapshot{Queue: []Track{req}}, upcoming); len(due) != 0 {
		t.Fatalf("steady: unexpected due %v", due)
	}
	if tr.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", tr.Pending())
	}
}

func TestTracker_UnrequestedCurrentIgnored(t *testing.T) {
	tr := NewTracker()
	a := Track{URI: "spotify:track:" + idA}
	b := Track{URI: "spotify:track:" + idB}
	tr.Observe(&Snapshot{Current: &a}, nil)
	tr.Observe(&Snapshot{Current: &b}, nil)
	if due := tr.Observe(&Snapshot{Current: &b}, nil); len(due) != 0 || tr.Pending() != 0 {
		t.Fatalf("unrequested tracks must not be tracked: due=%v pending=%d", due, tr.Pending())
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultSearchLimit, -3: DefaultSearchLimit, 5: 5, 50: MaxSearchLimit} {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
