package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/requestline/internal/middleware"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func countingHandler(counter *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

func send(h http.Handler, method, tenantID, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/requests/r1/approve", http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if tenantID != "" {
		req = req.WithContext(middleware.WithTenantID(req.Context(), tenantID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_Replays(t *testing.T) {
	var calls int
	h := middleware.Idempotency(newMemCache(), time.Minute)(countingHandler(&calls, http.StatusOK))

	first := send(h, http.MethodPost, "t1", "k1")
	second := send(h, http.MethodPost, "t1", "k1")

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("replayed body %q != %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Error("expected replay marker header")
	}
}

func TestIdempotency_PassThrough(t *testing.T) {
	tests := []struct {
		name   string
		method string
		tenant string
		key    string
	}{
		{"no key", http.MethodPost, "t1", ""},
		{"get ignored", http.MethodGet, "t1", "k1"},
		{"no tenant", http.MethodPost, "", "k1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			h := middleware.Idempotency(newMemCache(), time.Minute)(countingHandler(&calls, http.StatusOK))
			send(h, tt.method, tt.tenant, tt.key)
			send(h, tt.method, tt.tenant, tt.key)
			if calls != 2 {
				t.Errorf("handler calls = %d, want 2", calls)
			}
		})
	}
}

func TestIdempotency_ScopedPerTenant(t *testing.T) {
	var calls int
	h := middleware.Idempotency(newMemCache(), time.Minute)(countingHandler(&calls, http.StatusOK))

	send(h, http.MethodPost, "t1", "same")
	send(h, http.MethodPost, "t2", "same")
	if calls != 2 {
		t.Fatalf("same key under two tenants must both execute, calls = %d", calls)
	}
}

func TestIdempotency_ServerErrorNotStored(t *testing.T) {
	var calls int
	h := middleware.Idempotency(newMemCache(), time.Minute)(countingHandler(&calls, http.StatusBadGateway))

	send(h, http.MethodPost, "t1", "k1")
	send(h, http.MethodPost, "t1", "k1")
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
