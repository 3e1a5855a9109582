package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/requestline/internal/domain/change"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, *atomic.Int64) {
	t.Helper()
	var live atomic.Int64
	hub := NewHub(nil, func(d int) { live.Add(int64(d)) })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("tenant"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv, &live
}

func dial(t *testing.T, srv *httptest.Server, tenantID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tenant=" + tenantID
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
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

func TestHubRejectsMissingTenant(t *testing.T) {
	_, srv, _ := startHub(t)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHubDeliverNoConnections(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Deliver(change.Event{TenantID: "t1", Kind: change.KindPlayback})
	hub.Deliver(change.Event{Kind: change.KindPlayback})
	if err := hub.Publish(context.Background(), change.Event{TenantID: "t1", Kind: change.KindEventStatus}); err != nil {
		t.Fatal(err)
	}
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub(nil, nil)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, tenantID: "t1"})
	if hub.ConnectionCount() != 0 {
		t.Fatal("expected no connections")
	}
}

// Concurrent publishes for two tenants must never cross channels.
func TestHubTenantIsolation(t *testing.T) {
	hub, srv, live := startHub(t)
	ca := dial(t, srv, "tenant-a")
	cb := dial(t, srv, "tenant-b")
	waitFor(t, func() bool { return hub.TenantConnections("tenant-a") == 1 && hub.TenantConnections("tenant-b") == 1 })
	if live.Load() != 2 {
		t.Fatalf("observed connections = %d", live.Load())
	}

	const perTenant = 10
	var wg sync.WaitGroup
	for i := range perTenant {
		for _, tid := range []string{"tenant-a", "tenant-b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ev, _ := change.New(tid, change.KindPlayback, int64(i+1), map[string]string{"owner": tid})
				hub.Deliver(ev)
			}()
		}
	}
	wg.Wait()

	check := func(c *websocket.Conn, want string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for range perTenant {
			_, data, err := c.Read(ctx)
			if err != nil {
				t.Fatalf("%s read: %v", want, err)
			}
			var ev change.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.TenantID != want || !strings.Contains(string(ev.Payload), want) {
				t.Fatalf("subscriber of %s received %s", want, data)
			}
		}
	}
	check(ca, "tenant-a")
	check(cb, "tenant-b")
}

func TestHubDisconnectRemoves(t *testing.T) {
	hub, srv, live := startHub(t)
	c := dial(t, srv, "tenant-a")
	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })

	_ = c.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, func() bool { return hub.ConnectionCount() == 0 })
	waitFor(t, func() bool { return live.Load() == 0 })
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil, nil)
	c := &conn{tenantID: "t1", send: make(chan []byte, 1), cancel: func() {}}
	hub.add(c)

	for i := range 3 {
		hub.Deliver(change.Event{TenantID: "t1", Kind: change.KindPlayback, Sequence: int64(i)})
	}
	if got := hub.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
	if len(c.send) != 1 {
		t.Fatalf("buffered = %d", len(c.send))
	}
}
