// Package watch is a subscriber client for a party's change stream. It keeps
// a websocket open for low-latency hints and polls the snapshot on a fixed
// interval regardless, so a dead or flapping push channel only costs latency.
package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/Strob0t/requestline/internal/domain/change"
)

const (
	defaultPollInterval = 5 * time.Second
	maxSnapshotBytes    = 1 << 20
	fetchTimeout        = 10 * time.Second
)

var allKinds = []change.Kind{
	change.KindEventStatus,
	change.KindEventPages,
	change.KindRequestApproved,
	change.KindRequestPlayed,
	change.KindPlayback,
}

// Config selects the party and credentials. Set Token for a host session,
// or Handle plus Pin (or Bypass) for guest access.
type Config struct {
	BaseURL string
	Token   string
	Handle  string
	Pin     string
	Bypass  string

	PollInterval time.Duration
	// ReconnectMin and ReconnectMax bound the websocket reconnect backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// HTTPClient is used for snapshot polls. It should not set Timeout;
	// each poll is bounded by its own deadline.
	HTTPClient *http.Client
}

// Handlers receive updates. Either may be nil. They are called from the
// watcher's goroutines and must not block for long.
type Handlers struct {
	// OnSnapshot gets each snapshot whose bytes differ from the previous one.
	OnSnapshot func(raw json.RawMessage)
	// OnChange gets pushed changes newer than anything seen for their kind.
	OnChange func(ev change.Event)
}

// Watcher follows one party.
type Watcher struct {
	cfg      Config
	base     *url.URL
	client   *http.Client
	handlers Handlers
	latest   *change.Latest
	kick     chan struct{}

	mu       sync.Mutex
	lastSnap []byte
}

// New validates cfg and returns a Watcher.
func New(cfg Config, h Handlers) (*Watcher, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("watch: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Token == "" && cfg.Handle == "" {
		return nil, errors.New("watch: token or handle required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Watcher{
		cfg:      cfg,
		base:     base,
		client:   client,
		handlers: h,
		latest:   change.NewLatest(),
		kick:     make(chan struct{}, 1),
	}, nil
}

// Run follows the party until ctx is done. Transport failures are logged and
// retried, never returned.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w.pollLoop(ctx) }()
	go func() { defer wg.Done(); w.streamLoop(ctx) }()
	wg.Wait()
	return nil
}

// Latest returns the last sequence accepted for kind, from either path.
func (w *Watcher) Latest(kind change.Kind) int64 {
	return w.latest.Sequence(kind)
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		w.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.kick:
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	raw, err := w.fetchSnapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("snapshot poll failed", "error", err)
		}
		return
	}

	var head struct {
		Event struct {
			Sequence int64 `json:"sequence"`
		} `json:"event"`
	}
	if err := json.Unmarshal(raw, &head); err == nil {
		// The snapshot supersedes every hint up to its sequence.
		for _, k := range allKinds {
			w.latest.Observe(k, head.Event.Sequence)
		}
	}

	w.mu.Lock()
	changed := !bytes.Equal(raw, w.lastSnap)
	w.lastSnap = raw
	w.mu.Unlock()
	if changed && w.handlers.OnSnapshot != nil {
		w.handlers.OnSnapshot(raw)
	}
}

func (w *Watcher) fetchSnapshot(ctx context.Context) ([]byte, error) {
	path := "/api/v1/snapshot"
	if w.cfg.Token == "" {
		path = "/api/v1/parties/" + url.PathEscape(w.cfg.Handle) + "/snapshot"
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint("http", path), nil)
	if err != nil {
		return nil, err
	}
	w.authorize(req.Header)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
}

func (w *Watcher) streamLoop(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.ReconnectMin
	b.MaxInterval = w.cfg.ReconnectMax

	for ctx.Err() == nil {
		received, err := w.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if received {
			b.Reset()
		}
		delay := b.NextBackOff()
		slog.Debug("change stream disconnected", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// stream reads one websocket session. received reports whether any message
// arrived, which resets the reconnect backoff.
func (w *Watcher) stream(ctx context.Context) (received bool, err error) {
	path := "/ws"
	if w.cfg.Token == "" {
		path = "/ws/parties/" + url.PathEscape(w.cfg.Handle)
	}
	header := http.Header{}
	w.authorize(header)
	conn, resp, err := websocket.Dial(ctx, w.endpoint("ws", path), &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.CloseNow() }()

	// Anything missed while disconnected is picked up by a fresh snapshot.
	w.refetch()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return received, err
		}
		received = true
		var ev change.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("ignoring malformed change", "error", err)
			continue
		}
		if !w.latest.Accept(ev) {
			continue
		}
		if w.handlers.OnChange != nil {
			w.handlers.OnChange(ev)
		}
		w.refetch()
	}
}

func (w *Watcher) refetch() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) authorize(h http.Header) {
	if w.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+w.cfg.Token)
		return
	}
	if w.cfg.Pin != "" {
		h.Set("X-Party-Pin", w.cfg.Pin)
	}
}

func (w *Watcher) endpoint(scheme, path string) string {
	u := *w.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if scheme == "ws" {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
	}
	if w.cfg.Token == "" && w.cfg.Bypass != "" {
		q := u.Query()
		q.Set("bypass", w.cfg.Bypass)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
