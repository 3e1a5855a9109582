// Package mcp exposes host tools over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/middleware"
	"github.com/Strob0t/requestline/internal/service"
)

// RequestManager lists and moderates a tenant's requests.
type RequestManager interface {
	List(ctx context.Context, tenantID string, f request.ListFilter) ([]request.Request, error)
	Approve(ctx context.Context, tenantID, id string, opts request.ApproveOptions) (*service.Result, error)
	Reject(ctx context.Context, tenantID, id, reason, by string) (*request.Request, error)
}

// EventController changes the event lifecycle.
type EventController interface {
	SetStatus(ctx context.Context, tenantID string, target event.Status) (*event.Event, error)
}

// SnapshotReader returns the serialized public snapshot.
type SnapshotReader interface {
	Get(ctx context.Context, tenantID string) (json.RawMessage, error)
}

// ServerConfig holds server identity.
type ServerConfig struct {
	Name    string
	Version string
}

// ServerDeps holds the services tools call into. Nil deps make their tools
// return an error result.
type ServerDeps struct {
	Requests  RequestManager
	Events    EventController
	Snapshots SnapshotReader
}

// Server wraps an MCP server with the host tool set. Every tool acts on the
// tenant carried by the request context, so the HTTP handler must sit behind
// host authentication.
type Server struct {
	mcpServer *mcpserver.MCPServer
	deps      ServerDeps
}

// NewServer creates a server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
		deps: deps,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server for tests and transports.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler serves the streamable HTTP transport, stateless per request.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if tid, ok := middleware.TenantIDFromContext(r.Context()); ok {
				return middleware.WithTenantID(ctx, tid)
			}
			return ctx
		}),
	)
}

func toolResultJSON(v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err)
	}
	return mcplib.NewToolResultText(string(data))
}
