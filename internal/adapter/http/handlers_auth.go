package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/requestline/internal/domain/tenant"
	"github.com/Strob0t/requestline/internal/middleware"
)

// Signup handles POST /api/v1/auth/signup
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.SignupRequest](w, r)
	if !ok {
		return
	}
	resp, err := h.Auth.Signup(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "signup failed")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.LoginRequest](w, r)
	if !ok {
		return
	}
	resp, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		slog.Debug("login failed", "handle", req.Handle, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout. The event is taken offline and
// the presented token is revoked.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	var jti string
	var exp time.Time
	if sess := middleware.SessionFromContext(r.Context()); sess != nil {
		jti, exp = sess.TokenID, sess.ExpiresAt
	}
	if err := h.Auth.Logout(r.Context(), tid, jti, exp); err != nil {
		writeDomainError(w, err, "event not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConnectProvider handles PUT /api/v1/provider
func (h *Handlers) ConnectProvider(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[tenant.CredentialRequest](w, r)
	if !ok {
		return
	}
	c, err := h.Credentials.Connect(r.Context(), tid, req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":   true,
		"expires_at":  c.ExpiresAt,
		"device_id":   c.DeviceID,
		"playlist_id": c.PlaylistID,
	})
}
