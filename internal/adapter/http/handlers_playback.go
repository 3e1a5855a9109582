package http

import (
	"net/http"
	"strconv"

	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/service"
)

// Search handles GET /api/v1/parties/{handle}/search?q=...&limit=10
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	tracks, err := h.Playback.Search(r.Context(), tid, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeDomainError(w, err, "party not found")
		return
	}
	if tracks == nil {
		tracks = []playback.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// PlaybackControl handles POST /api/v1/playback/{control}
func (h *Handlers) PlaybackControl(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	c := service.Control(urlParam(r, "control"))
	if err := h.Playback.Control(r.Context(), tid, c); err != nil {
		writeDomainError(w, err, "device not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
