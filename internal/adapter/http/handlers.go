package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/domain/playback"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/domain/tenant"
	"github.com/Strob0t/requestline/internal/service"
)

// Authenticator runs the host session lifecycle.
type Authenticator interface {
	Signup(ctx context.Context, req tenant.SignupRequest) (*tenant.LoginResponse, error)
	Login(ctx context.Context, req tenant.LoginRequest) (*tenant.LoginResponse, error)
	Logout(ctx context.Context, tenantID, tokenID string, tokenExpiry time.Time) error
}

// EventManager runs the event lifecycle.
type EventManager interface {
	Get(ctx context.Context, tenantID string) (*event.Event, error)
	SetStatus(ctx context.Context, tenantID string, target event.Status) (*event.Event, error)
	SetPageEnabled(ctx context.Context, tenantID string, page event.Page, enabled bool) (*event.Event, error)
	RotateAccessCodes(ctx context.Context, tenantID string) (event.AccessCodes, error)
}

// Submitter accepts guest requests.
type Submitter interface {
	Submit(ctx context.Context, tenantID string, req request.SubmitRequest, origin ...string) (*request.Request, error)
}

// Moderator runs host decisions on requests.
type Moderator interface {
	List(ctx context.Context, tenantID string, f request.ListFilter) ([]request.Request, error)
	Approve(ctx context.Context, tenantID, id string, opts request.ApproveOptions) (*service.Result, error)
	RequestRetry(ctx context.Context, tenantID, id string) (*service.Result, bool, error)
	Reject(ctx context.Context, tenantID, id, reason, by string) (*request.Request, error)
	MarkPlayed(ctx context.Context, tenantID, id string) (*request.Request, error)
}

// SnapshotReader returns the serialized public snapshot.
type SnapshotReader interface {
	Get(ctx context.Context, tenantID string) (json.RawMessage, error)
}

// PlaybackController serves search and device controls.
type PlaybackController interface {
	Search(ctx context.Context, tenantID, query string, limit int) ([]playback.Track, error)
	Control(ctx context.Context, tenantID string, c service.Control) error
}

// CredentialConnector stores a tenant's provider account.
type CredentialConnector interface {
	Connect(ctx context.Context, tenantID string, req tenant.CredentialRequest) (*tenant.ProviderCredential, error)
}

// Subscriber attaches a websocket client to a tenant's change channel.
type Subscriber interface {
	Serve(w http.ResponseWriter, r *http.Request, tenantID string)
}

// Handlers holds the HTTP handlers for the party API.
type Handlers struct {
	Auth        Authenticator
	Events      EventManager
	Submissions Submitter
	Requests    Moderator
	Snapshots   SnapshotReader
	Playback    PlaybackController
	Credentials CredentialConnector
	Hub         Subscriber
}
