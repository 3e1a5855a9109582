package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/requestline/internal/adapter/ws"
	"github.com/Strob0t/requestline/internal/domain/change"
)

const (
	tenantID = "tenant-1"
	pin      = "123456"
)

type party struct {
	hub      *ws.Hub
	srv      *httptest.Server
	seq      atomic.Int64
	dials    atomic.Int64
	pushDown atomic.Bool
}

func newParty(t *testing.T) *party {
	t.Helper()
	p := &party{hub: ws.NewHub(nil, nil)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/parties/party/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Party-Pin") != pin {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"event":{"tenant_id":%q,"status":"live","sequence":%d},"playback":null}`, tenantID, p.seq.Load())
	})
	mux.HandleFunc("/ws/parties/party", func(w http.ResponseWriter, r *http.Request) {
		if p.pushDown.Load() {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("X-Party-Pin") != pin {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		p.dials.Add(1)
		p.hub.Serve(w, r, tenantID)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		p.hub.Close()
		p.srv.Close()
	})
	return p
}

type recorder struct {
	mu      sync.Mutex
	snaps   []json.RawMessage
	changes []int64
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnSnapshot: func(raw json.RawMessage) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.snaps = append(r.snaps, raw)
		},
		OnChange: func(ev change.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.changes = append(r.changes, ev.Sequence)
		},
	}
}

func (r *recorder) snapCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) seqs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.changes)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func start(t *testing.T, p *party, rec *recorder, poll time.Duration) *Watcher {
	t.Helper()
	w, err := New(Config{
		BaseURL:      p.srv.URL,
		Handle:       "party",
		Pin:          pin,
		PollInterval: poll,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	}, rec.handlers())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return w
}

func deliver(p *party, seq int64) {
	p.hub.Deliver(change.Event{TenantID: tenantID, Kind: change.KindPlayback, Sequence: seq})
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no url", Config{Handle: "party"}},
		{"relative url", Config{BaseURL: "/api", Handle: "party"}},
		{"no credentials", Config{BaseURL: "http://localhost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, Handlers{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWatcher_PollsWhenPushUnavailable(t *testing.T) {
	p := newParty(t)
	p.pushDown.Store(true)
	rec := &recorder{}
	start(t, p, rec, 20*time.Millisecond)

	waitFor(t, func() bool { return rec.snapCount() >= 1 })
	p.seq.Store(4)
	waitFor(t, func() bool { return rec.snapCount() >= 2 })

	if len(rec.seqs()) != 0 {
		t.Errorf("changes = %v, want none", rec.seqs())
	}
}

func TestWatcher_UnchangedSnapshotNotRepeated(t *testing.T) {
	p := newParty(t)
	p.pushDown.Store(true)
	rec := &recorder{}
	start(t, p, rec, 10*time.Millisecond)

	waitFor(t, func() bool { return rec.snapCount() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if n := rec.snapCount(); n != 1 {
		t.Errorf("snapshots = %d, want 1 for identical bytes", n)
	}
}

func TestWatcher_PushDropsStale(t *testing.T) {
	p := newParty(t)
	rec := &recorder{}
	start(t, p, rec, time.Hour)
	waitFor(t, func() bool { return p.hub.TenantConnections(tenantID) == 1 })

	deliver(p, 5)
	deliver(p, 3)
	deliver(p, 6)

	waitFor(t, func() bool { return len(rec.seqs()) >= 2 })
	if got := rec.seqs(); !slices.Equal(got, []int64{5, 6}) {
		t.Errorf("changes = %v, want [5 6]", got)
	}
}

func TestWatcher_SnapshotSupersedesOlderHints(t *testing.T) {
	p := newParty(t)
	p.seq.Store(10)
	rec := &recorder{}
	w := start(t, p, rec, time.Hour)
	waitFor(t, func() bool { return p.hub.TenantConnections(tenantID) == 1 && rec.snapCount() >= 1 })
	waitFor(t, func() bool { return w.Latest(change.KindPlayback) == 10 })

	deliver(p, 8)
	deliver(p, 11)

	waitFor(t, func() bool { return len(rec.seqs()) >= 1 })
	if got := rec.seqs(); !slices.Equal(got, []int64{11}) {
		t.Errorf("changes = %v, want [11]", got)
	}
}

func TestWatcher_Reconnects(t *testing.T) {
	p := newParty(t)
	rec := &recorder{}
	start(t, p, rec, time.Hour)
	waitFor(t, func() bool { return p.hub.TenantConnections(tenantID) == 1 })

	p.hub.Close()
	waitFor(t, func() bool { return p.dials.Load() >= 2 && p.hub.TenantConnections(tenantID) == 1 })

	deliver(p, 1)
	waitFor(t, func() bool { return len(rec.seqs()) == 1 })
}
