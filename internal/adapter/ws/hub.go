// Package ws implements the tenant-scoped websocket push channel.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/requestline/internal/domain/change"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// conn wraps a single websocket subscriber of one tenant channel.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	tenantID string
	send     chan []byte
}

// Hub keeps one connection set per tenant channel. A change is only ever
// written to the set under change.Channel(ev.TenantID); there is no
// process-wide broadcast.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*conn]struct{}
	origins  []string
	observe  func(delta int)
	dropped  atomic.Int64
}

// NewHub creates a hub. origins restricts browser Origin headers (empty
// allows same-host only). observe, if set, is called with +1/-1 as
// connections come and go.
func NewHub(origins []string, observe func(delta int)) *Hub {
	return &Hub{
		channels: make(map[string]map[*conn]struct{}),
		origins:  origins,
		observe:  observe,
	}
}

// Serve upgrades the request and subscribes it to tenantID's channel until
// the client goes away. The caller must have authorized the tenant.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tenantID string) {
	if tenantID == "" {
		http.Error(w, `{"error":"tenant required"}`, http.StatusUnauthorized)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "tenant_id", tenantID, "error", err)
		return
	}

	// r.Context() ends once the handler returns, so the connection gets its own.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel, tenantID: tenantID, send: make(chan []byte, sendBuffer)}
	h.add(c)

	go h.writeLoop(ctx, c)
	go func() {
		defer h.remove(c)
		// Reads only detect disconnects; clients have nothing to say.
		ctx := ws.CloseRead(ctx)
		<-ctx.Done()
	}()
}

func (h *Hub) writeLoop(ctx context.Context, c *conn) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer func() { _ = c.ws.Close(websocket.StatusNormalClosure, "") }()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "tenant_id", c.tenantID, "error", err)
				h.remove(c)
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// Deliver queues ev for every local subscriber of ev.TenantID. A subscriber
// whose buffer is full misses the change and catches up on its next poll.
func (h *Hub) Deliver(ev change.Event) {
	if ev.TenantID == "" {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("websocket marshal failed", "kind", ev.Kind, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[change.Channel(ev.TenantID)] {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Publish delivers locally. It lets the hub stand in as the publisher when
// no cross-replica relay is configured.
func (h *Hub) Publish(_ context.Context, ev change.Event) error {
	h.Deliver(ev)
	return nil
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.channels {
		n += len(set)
	}
	return n
}

// TenantConnections returns the number of subscribers of one tenant.
func (h *Hub) TenantConnections(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[change.Channel(tenantID)])
}

// Dropped returns how many deliveries were skipped for full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*conn, 0)
	for _, set := range h.channels {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.remove(c)
	}
}

func (h *Hub) add(c *conn) {
	ch := change.Channel(c.tenantID)
	h.mu.Lock()
	set, ok := h.channels[ch]
	if !ok {
		set = make(map[*conn]struct{})
		h.channels[ch] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	if h.observe != nil {
		h.observe(1)
	}
	slog.Debug("websocket connected", "tenant_id", c.tenantID)
}

func (h *Hub) remove(c *conn) {
	ch := change.Channel(c.tenantID)
	h.mu.Lock()
	set := h.channels[ch]
	_, ok := set[c]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, ch)
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	c.cancel()
	if h.observe != nil {
		h.observe(-1)
	}
	slog.Debug("websocket disconnected", "tenant_id", c.tenantID)
}
