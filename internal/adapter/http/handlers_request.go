package http

import (
	"net/http"
	"strconv"

	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/middleware"
)

const maxListLimit = 500

// SubmitRequest handles POST /api/v1/parties/{handle}/requests
func (h *Handlers) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[request.SubmitRequest](w, r)
	if !ok {
		return
	}
	created, err := h.Submissions.Submit(r.Context(), tid, req, origin(r)...)
	if err != nil {
		writeDomainError(w, err, "party not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListRequests handles GET /api/v1/requests?status=pending&limit=50
func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	var f request.ListFilter
	for _, raw := range r.URL.Query()["status"] {
		st := request.Status(raw)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		f.Statuses = append(f.Statuses, st)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		f.Limit = n
	}
	reqs, err := h.Requests.List(r.Context(), tid, f)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if reqs == nil {
		reqs = []request.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

type approveBody struct {
	AddToQueue    *bool `json:"add_to_queue"`
	AddToPlaylist bool  `json:"add_to_playlist"`
	PlayNext      bool  `json:"play_next"`
}

// ApproveRequest handles POST /api/v1/requests/{id}/approve. An empty body
// adds the track to the queue only.
func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	var body approveBody
	if r.ContentLength != 0 {
		if body, ok = readJSON[approveBody](w, r); !ok {
			return
		}
	}
	opts := request.ApproveOptions{
		AddToQueue:    body.AddToQueue == nil || *body.AddToQueue,
		AddToPlaylist: body.AddToPlaylist,
		PlayNext:      body.PlayNext,
		ApprovedBy:    actor(r),
	}
	res, err := h.Requests.Approve(r.Context(), tid, urlParam(r, "id"), opts)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RejectRequest handles POST /api/v1/requests/{id}/reject
func (h *Handlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	var body request.RejectRequest
	if r.ContentLength != 0 {
		if body, ok = readJSON[request.RejectRequest](w, r); !ok {
			return
		}
	}
	rej, err := h.Requests.Reject(r.Context(), tid, urlParam(r, "id"), body.Reason, actor(r))
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, rej)
}

// RetryRequest handles POST /api/v1/requests/{id}/retry. When a job queue is
// configured the retry runs in the background and 202 is returned.
func (h *Handlers) RetryRequest(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	res, deferred, err := h.Requests.RequestRetry(r.Context(), tid, id)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	if deferred {
		writeJSON(w, http.StatusAccepted, map[string]string{"request_id": id, "status": "enqueued"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MarkPlayed handles POST /api/v1/requests/{id}/played
func (h *Handlers) MarkPlayed(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	played, err := h.Requests.MarkPlayed(r.Context(), tid, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, played)
}

// actor names the host performing a decision.
func actor(r *http.Request) string {
	if s := middleware.SessionFromContext(r.Context()); s != nil {
		return s.Handle
	}
	return "host"
}

