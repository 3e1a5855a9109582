// Package spotify implements the playback provider port against the Spotify Web API.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/requestline/internal/adapter/otel"
	"github.com/Strob0t/requestline/internal/domain"
	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/port/playbackprovider"
	"github.com/Strob0t/requestline/internal/resilience"
)

// ProviderName is the registry name of this adapter.
const ProviderName = "spotify"

const (
	defaultAPIBase      = "https://api.spotify.com/v1"
	defaultAccountsBase = "https://accounts.spotify.com"
	refreshSkew         = time.Minute
	maxErrorBody        = 512
)

func init() {
	playbackprovider.Register(ProviderName, func(deps playbackprovider.Deps) (playbackprovider.Provider, error) {
		return New(deps)
	})
}

// Client talks to the Spotify Web API on behalf of many tenants, each with
// its own credential and circuit breaker.
type Client struct {
	apiBase      string
	accountsBase string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	creds        playbackprovider.CredentialSource
	breakers     *resilience.Registry
	observer     playbackprovider.CallObserver
	refreshes    singleflight.Group
	now          func() time.Time
}

var _ playbackprovider.Provider = (*Client)(nil)

// New builds a client from registry deps. Recognized config keys:
// api_base, accounts_base, client_id, client_secret, timeout.
func New(deps playbackprovider.Deps) (*Client, error) {
	if deps.Credentials == nil {
		return nil, errors.New("spotify: credential source is required")
	}
	c := &Client{
		apiBase:      strings.TrimSuffix(orDefault(deps.Config["api_base"], defaultAPIBase), "/"),
		accountsBase: strings.TrimSuffix(orDefault(deps.Config["accounts_base"], defaultAccountsBase), "/"),
		clientID:     deps.Config["client_id"],
		clientSecret: deps.Config["client_secret"],
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		creds:        deps.Credentials,
		breakers:     deps.Breakers,
		observer:     deps.Observer,
		now:          time.Now,
	}
	if raw := deps.Config["timeout"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("spotify: timeout: %w", err)
		}
		c.httpClient.Timeout = d
	}
	return c, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return ProviderName }

// Search returns up to limit tracks matching query.
func (c *Client) Search(ctx context.Context, tenantID, query string, limit int) ([]playback.Track, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", strconv.Itoa(playback.ClampLimit(limit)))

	var out struct {
		Tracks struct {
			Items []apiTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := c.do(ctx, tenantID, "search", http.MethodGet, "/search", q, nil, &out); err != nil {
		return nil, err
	}
	tracks := make([]playback.Track, 0, len(out.Tracks.Items))
	for _, t := range out.Tracks.Items {
		tracks = append(tracks, t.domain())
	}
	return tracks, nil
}

// GetTrack resolves a URI, share link, or bare ID.
func (c *Client) GetTrack(ctx context.Context, tenantID, ref string) (*playback.Track, error) {
	id, ok := playback.TrackID(ref)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized reference %q", domain.ErrTrackNotFound, ref)
	}
	var t apiTrack
	err := c.do(ctx, tenantID, "get_track", http.MethodGet, "/tracks/"+id, nil, nil, &t)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTrackNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	track := t.domain()
	return &track, nil
}

// AddToQueue appends trackURI to the device queue.
func (c *Client) AddToQueue(ctx context.Context, tenantID, trackURI, deviceID string) error {
	q := url.Values{}
	q.Set("uri", trackURI)
	setDevice(q, deviceID)
	return c.do(ctx, tenantID, "add_to_queue", http.MethodPost, "/me/player/queue", q, nil, nil)
}

// AddToPlaylist appends trackURI to playlistID.
func (c *Client) AddToPlaylist(ctx context.Context, tenantID, playlistID, trackURI string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: no playlist configured", domain.ErrAdapter)
	}
	body := map[string][]string{"uris": {trackURI}}
	return c.do(ctx, tenantID, "add_to_playlist", http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/tracks", nil, body, nil)
}

// GetCurrentPlayback returns nil, nil when no device is active.
func (c *Client) GetCurrentPlayback(ctx context.Context, tenantID string) (*playback.Snapshot, error) {
	var out struct {
		IsPlaying  bool       `json:"is_playing"`
		ProgressMS int        `json:"progress_ms"`
		Item       *apiTrack  `json:"item"`
		Device     *apiDevice `json:"device"`
	}
	// 204 No Content leaves out untouched: no active device.
	out.ProgressMS = -1
	if err := c.do(ctx, tenantID, "get_playback", http.MethodGet, "/me/player", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ProgressMS < 0 && out.Item == nil && out.Device == nil {
		return nil, nil
	}
	snap := &playback.Snapshot{IsPlaying: out.IsPlaying, ProgressMS: max(out.ProgressMS, 0), Queue: []playback.Track{}}
	if out.Item != nil {
		t := out.Item.domain()
		snap.Current = &t
	}
	if out.Device != nil {
		snap.Device = &playback.Device{ID: out.Device.ID, Name: out.Device.Name, Type: out.Device.Type, IsActive: out.Device.IsActive}
	}
	return snap, nil
}

// GetQueue returns the upcoming tracks, excluding the current one.
func (c *Client) GetQueue(ctx context.Context, tenantID string) ([]playback.Track, error) {
	var out struct {
		Queue []apiTrack `json:"queue"`
	}
	if err := c.do(ctx, tenantID, "get_queue", http.MethodGet, "/me/player/queue", nil, nil, &out); err != nil {
		return nil, err
	}
	tracks := make([]playback.Track, 0, len(out.Queue))
	for _, t := range out.Queue {
		tracks = append(tracks, t.domain())
	}
	return tracks, nil
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context, tenantID, deviceID string) error {
	return c.control(ctx, tenantID, "pause", http.MethodPut, "/me/player/pause", deviceID)
}

// Resume resumes playback.
func (c *Client) Resume(ctx context.Context, tenantID, deviceID string) error {
	return c.control(ctx, tenantID, "resume", http.MethodPut, "/me/player/play", deviceID)
}

// Skip skips to the next track.
func (c *Client) Skip(ctx context.Context, tenantID, deviceID string) error {
	return c.control(ctx, tenantID, "skip", http.MethodPost, "/me/player/next", deviceID)
}

func (c *Client) control(ctx context.Context, tenantID, op, method, path, deviceID string) error {
	q := url.Values{}
	setDevice(q, deviceID)
	return c.do(ctx, tenantID, op, method, path, q, nil, nil)
}

// do runs one API call for tenantID through that tenant's breaker. A 401 forces
// a token refresh and a single retry.
func (c *Client) do(ctx context.Context, tenantID, op, method, path string, query url.Values, body, out any) (err error) {
	if tenantID == "" {
		return fmt.Errorf("%w: missing tenant", domain.ErrAdapter)
	}
	start := c.now()
	ctx, span := otel.StartProviderSpan(ctx, ProviderName, op, tenantID)
	defer func() {
		otel.EndSpan(span, err)
		if c.observer != nil {
			c.observer.AdapterCall(ctx, op, start, err)
		}
	}()

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", op, err)
		}
	}

	call := func() error {
		token, err := c.accessToken(ctx, tenantID, false)
		if err != nil {
			return err
		}
		data, err := c.send(ctx, token, method, path, query, payload)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			if token, err = c.accessToken(ctx, tenantID, true); err != nil {
				return err
			}
			data, err = c.send(ctx, token, method, path, query, payload)
		}
		if err != nil {
			return err
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("%w: decode %s: %w", domain.ErrAdapter, op, err)
			}
		}
		return nil
	}

	if c.breakers == nil {
		return call()
	}
	err = c.breakers.For(tenantID).Execute(call)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", domain.ErrAdapter, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, token, method, path string, query url.Values, payload []byte) ([]byte, error) {
	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrAdapter, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrAdapter, err)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp, data)
	}
	return data, nil
}

func setDevice(q url.Values, deviceID string) {
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
