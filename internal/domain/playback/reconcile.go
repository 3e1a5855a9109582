package playback

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

var (
	bracketed    = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	versionTrail = regexp.MustCompile(`\s+-\s+.*\b(remaster(ed)?|version|edit|mix|live|mono|stereo)\b.*$`)
	featTrail    = regexp.MustCompile(`\s+(feat\.?|ft\.?|featuring)\s+.*$`)
)

// NormalizeTitle folds a track title for fuzzy equality: lower case, no
// bracketed qualifiers or version suffixes, no punctuation.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = bracketed.ReplaceAllString(s, "")
	s = versionTrail.ReplaceAllString(s, "")
	s = featTrail.ReplaceAllString(s, "")
	return foldPunct(s)
}

// NormalizeArtists folds and sorts an artist list.
func NormalizeArtists(artists []string) []string {
	out := make([]string, 0, len(artists))
	for _, a := range artists {
		if n := foldPunct(strings.ToLower(a)); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func foldPunct(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '&':
			if b.Len() > 0 {
				b.WriteString(" and")
			}
			space = true
		default:
			space = true
		}
	}
	return b.String()
}

// Key is the normalized (title, artists) identity used when URIs differ.
func Key(t Track) string {
	return NormalizeTitle(t.Name) + "\x00" + strings.Join(NormalizeArtists(t.Artists), "|")
}

// Candidate is an approved request the matcher can attach to a queue entry.
type Candidate struct {
	RequestID string
	Nickname  string
	Track     Track
}

// Matcher pairs provider tracks with requests, URI first, then normalized key.
// Each candidate is matched at most once per Matcher.
type Matcher struct {
	byURI map[string][]int
	byKey map[string][]int
	cands []Candidate
	used  []bool
}

// NewMatcher indexes candidates. Earlier candidates win ties.
func NewMatcher(cands []Candidate) *Matcher {
	m := &Matcher{
		byURI: make(map[string][]int, len(cands)),
		byKey: make(map[string][]int, len(cands)),
		cands: cands,
		used:  make([]bool, len(cands)),
	}
	for i, c := range cands {
		uri := CanonicalURI(c.Track.URI)
		m.byURI[uri] = append(m.byURI[uri], i)
		k := Key(c.Track)
		m.byKey[k] = append(m.byKey[k], i)
	}
	return m
}

// Match returns the first unused candidate for t and marks it used.
func (m *Matcher) Match(t Track) (Candidate, bool) {
	if i, ok := m.take(m.byURI[CanonicalURI(t.URI)]); ok {
		return m.cands[i], true
	}
	if i, ok := m.take(m.byKey[Key(t)]); ok {
		return m.cands[i], true
	}
	return Candidate{}, false
}

func (m *Matcher) take(idx []int) (int, bool) {
	for _, i := range idx {
		if !m.used[i] {
			m.used[i] = true
			return i, true
		}
	}
	return 0, false
}

func (m *Matcher) entry(t Track) Entry {
	e := Entry{Track: t}
	if c, ok := m.Match(t); ok {
		e.RequestID = c.RequestID
		e.Nickname = c.Nickname
		e.Requested = true
	}
	return e
}

// Annotate builds the display view of snap. upcoming are the tenant's approved
// requests in play order; recent are already-played requests, newest first.
// A nil snap yields an empty, not-playing view.
func Annotate(snap *Snapshot, upcoming, recent []Candidate) Display {
	d := Display{Queue: []Entry{}, Recent: make([]Entry, 0, len(recent))}
	for _, c := range recent {
		d.Recent = append(d.Recent, Entry{Track: c.Track, RequestID: c.RequestID, Nickname: c.Nickname, Requested: true})
	}
	if snap == nil {
		return d
	}
	m := NewMatcher(upcoming)
	d.IsPlaying = snap.IsPlaying
	d.Device = snap.Device
	if snap.Current != nil {
		e := m.entry(*snap.Current)
		d.Current = &e
	}
	for _, t := range snap.Queue {
		d.Queue = append(d.Queue, m.entry(t))
	}
	return d
}
