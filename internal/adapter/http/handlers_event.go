package http

import (
	"net/http"

	"github.com/Strob0t/requestline/internal/domain/event"
)

// GetEvent handles GET /api/v1/event
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	ev, err := h.Events.Get(r.Context(), tid)
	if err != nil {
		writeDomainError(w, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// SetEventStatus handles PUT /api/v1/event/status
func (h *Handlers) SetEventStatus(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[event.StatusRequest](w, r)
	if !ok {
		return
	}
	ev, err := h.Events.SetStatus(r.Context(), tid, req.Status)
	if err != nil {
		writeDomainError(w, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// SetPageEnabled handles PUT /api/v1/event/pages/{page}
func (h *Handlers) SetPageEnabled(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	page := event.Page(urlParam(r, "page"))
	if !page.Valid() {
		writeError(w, http.StatusNotFound, "unknown page")
		return
	}
	req, ok := readJSON[event.PageRequest](w, r)
	if !ok {
		return
	}
	ev, err := h.Events.SetPageEnabled(r.Context(), tid, page, req.Enabled)
	if err != nil {
		writeDomainError(w, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// RotateAccessCodes handles POST /api/v1/event/access-codes
func (h *Handlers) RotateAccessCodes(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	codes, err := h.Events.RotateAccessCodes(r.Context(), tid)
	if err != nil {
		writeDomainError(w, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

// GetSnapshot handles GET /api/v1/snapshot and GET /api/v1/parties/{handle}/snapshot.
// Both return the same bytes for the same tenant.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	raw, err := h.Snapshots.Get(r.Context(), tid)
	if err != nil {
		writeDomainError(w, err, "event not found")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeRawJSON(w, http.StatusOK, raw)
}

// Subscribe handles GET /ws and GET /ws/parties/{handle}.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	h.Hub.Serve(w, r, tid)
}
