package spotify

import "github.com/Strob0t/requestline/internal/domain/playback"

type apiArtist struct {
	Name string `json:"name"`
}

type apiImage struct {
	URL string `json:"url"`
}

type apiAlbum struct {
	Name   string     `json:"name"`
	Images []apiImage `json:"images"`
}

type apiTrack struct {
	URI        string      `json:"uri"`
	Name       string      `json:"name"`
	Artists    []apiArtist `json:"artists"`
	Album      apiAlbum    `json:"album"`
	DurationMS int         `json:"duration_ms"`
}

type apiDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

func (t apiTrack) domain() playback.Track {
	out := playback.Track{
		URI:        t.URI,
		Name:       t.Name,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		Artists:    make([]string, 0, len(t.Artists)),
	}
	for _, a := range t.Artists {
		out.Artists = append(out.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		out.ImageURL = t.Album.Images[0].URL
	}
	return out
}
