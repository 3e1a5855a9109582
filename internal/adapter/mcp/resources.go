package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/middleware"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"requestline://requests/pending",
			"Pending Requests",
			mcplib.WithResourceDescription("Song requests awaiting a host decision, oldest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePendingResource,
	)
}

func (s *Server) handlePendingResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Requests == nil {
		return textResource(req.Params.URI, `{"error":"request manager not configured"}`), nil
	}
	tid, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		return nil, errNoTenant
	}
	reqs, err := s.deps.Requests.List(ctx, tid, request.ListFilter{
		Statuses: []request.Status{request.StatusPending},
		Order:    request.OrderCreated,
	})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, string(data)), nil
}

func textResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: text},
	}
}
