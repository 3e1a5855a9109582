package http

import (
	"bufio"
	"bytes"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

// The websocket endpoints upgrade through Logger, so the wrapper must pass
// Hijack and Flush down.
func TestResponseWriterDelegates(t *testing.T) {
	inner := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}
	if _, _, err := rw.Hijack(); err != nil || !inner.hijacked {
		t.Fatalf("Hijack: err=%v hijacked=%v", err, inner.hijacked)
	}

	plain := httptest.NewRecorder()
	rw = &responseWriter{ResponseWriter: plain, status: http.StatusOK}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected error when upstream does not implement Hijacker")
	}
	rw.Flush()
	if !plain.Flushed {
		t.Error("Flush was not delegated")
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("https://party.example")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/requests", http.NoBody))

	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("preflight: code=%d reached handler=%v", rec.Code, called)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://party.example" {
		t.Errorf("allow-origin = %q", got)
	}
	allowed := rec.Header().Get("Access-Control-Allow-Headers")
	for _, hdr := range []string{"Authorization", "X-Party-Pin", "Idempotency-Key"} {
		if !strings.Contains(allowed, hdr) {
			t.Errorf("allow-headers %q missing %s", allowed, hdr)
		}
	}
}

func TestSecurityHeadersAllowCoverArt(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "https://i.scdn.co") || !strings.Contains(csp, "wss:") {
		t.Errorf("csp = %q", csp)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
}

func TestLoggerLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusConflict, "INFO"},
		{http.StatusBadGateway, "WARN"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
			defer slog.SetDefault(prev)

			h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(tt.status) }))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/requests/x/approve", http.NoBody))

			out := buf.String()
			if !strings.Contains(out, "level="+tt.level) || !strings.Contains(out, "path=/api/v1/requests/x/approve") {
				t.Errorf("log line = %q", out)
			}
		})
	}
}
