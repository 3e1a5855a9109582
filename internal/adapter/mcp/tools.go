package mcp

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/requestline/internal/domain/event"
	"github.com/Strob0t/requestline/internal/domain/request"
	"github.com/Strob0t/requestline/internal/middleware"
)

var errNoTenant = errors.New("no tenant in context")

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listRequestsTool(),
		s.approveRequestTool(),
		s.rejectRequestTool(),
		s.setEventStatusTool(),
		s.getSnapshotTool(),
	)
}

func (s *Server) listRequestsTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("list_requests",
			mcplib.WithDescription("List song requests, optionally filtered by status"),
			mcplib.WithString("status",
				mcplib.Description("Only return requests in this status"),
				mcplib.Enum("pending", "approved", "rejected", "queued", "failed", "played"),
			),
		),
		Handler: s.handleListRequests,
	}
}

func (s *Server) approveRequestTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("approve_request",
			mcplib.WithDescription("Approve a request and add it to the playback queue and/or playlist"),
			mcplib.WithString("request_id", mcplib.Required(), mcplib.Description("The request ID")),
			mcplib.WithBoolean("add_to_queue", mcplib.Description("Add to the playback queue (default true)")),
			mcplib.WithBoolean("add_to_playlist", mcplib.Description("Add to the event playlist")),
			mcplib.WithBoolean("play_next", mcplib.Description("Skip to the track immediately")),
		),
		Handler: s.handleApproveRequest,
	}
}

func (s *Server) rejectRequestTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("reject_request",
			mcplib.WithDescription("Reject a pending request"),
			mcplib.WithString("request_id", mcplib.Required(), mcplib.Description("The request ID")),
			mcplib.WithString("reason", mcplib.Description("Optional reason shown to the host")),
		),
		Handler: s.handleRejectRequest,
	}
}

func (s *Server) setEventStatusTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("set_event_status",
			mcplib.WithDescription("Move the event between offline, standby and live"),
			mcplib.WithString("status", mcplib.Required(), mcplib.Enum("offline", "standby", "live")),
		),
		Handler: s.handleSetEventStatus,
	}
}

func (s *Server) getSnapshotTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("get_snapshot",
			mcplib.WithDescription("Get the public event snapshot with the annotated playback display"),
		),
		Handler: s.handleGetSnapshot,
	}
}

func tenantFrom(ctx context.Context) (string, *mcplib.CallToolResult) {
	tid, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		return "", mcplib.NewToolResultErrorFromErr("unauthorized", errNoTenant)
	}
	return tid, nil
}

func (s *Server) handleListRequests(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Requests == nil {
		return mcplib.NewToolResultError("request manager not configured"), nil
	}
	tid, denied := tenantFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	var f request.ListFilter
	if st := req.GetString("status", ""); st != "" {
		status := request.Status(st)
		if !status.Valid() {
			return mcplib.NewToolResultError(fmt.Sprintf("unknown status %q", st)), nil
		}
		f.Statuses = []request.Status{status}
	}
	reqs, err := s.deps.Requests.List(ctx, tid, f)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list requests", err), nil
	}
	return toolResultJSON(reqs), nil
}

func (s *Server) handleApproveRequest(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Requests == nil {
		return mcplib.NewToolResultError("request manager not configured"), nil
	}
	tid, denied := tenantFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	id, err := req.RequireString("request_id")
	if err != nil || id == "" {
		return mcplib.NewToolResultError("request_id is required"), nil
	}
	opts := request.ApproveOptions{
		AddToQueue:    req.GetBool("add_to_queue", true),
		AddToPlaylist: req.GetBool("add_to_playlist", false),
		PlayNext:      req.GetBool("play_next", false),
		ApprovedBy:    "assistant",
	}
	res, err := s.deps.Requests.Approve(ctx, tid, id, opts)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to approve request %s", id), err), nil
	}
	return toolResultJSON(res), nil
}

func (s *Server) handleRejectRequest(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Requests == nil {
		return mcplib.NewToolResultError("request manager not configured"), nil
	}
	tid, denied := tenantFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	id, err := req.RequireString("request_id")
	if err != nil || id == "" {
		return mcplib.NewToolResultError("request_id is required"), nil
	}
	r, err := s.deps.Requests.Reject(ctx, tid, id, req.GetString("reason", ""), "assistant")
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to reject request %s", id), err), nil
	}
	return toolResultJSON(r), nil
}

func (s *Server) handleSetEventStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Events == nil {
		return mcplib.NewToolResultError("event controller not configured"), nil
	}
	tid, denied := tenantFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	st, err := req.RequireString("status")
	if err != nil {
		return mcplib.NewToolResultError("status is required"), nil
	}
	target := event.Status(st)
	if !target.Valid() {
		return mcplib.NewToolResultError(fmt.Sprintf("unknown status %q", st)), nil
	}
	ev, err := s.deps.Events.SetStatus(ctx, tid, target)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to change event status", err), nil
	}
	return toolResultJSON(ev), nil
}

func (s *Server) handleGetSnapshot(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Snapshots == nil {
		return mcplib.NewToolResultError("snapshot reader not configured"), nil
	}
	tid, denied := tenantFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	raw, err := s.deps.Snapshots.Get(ctx, tid)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to load snapshot", err), nil
	}
	return mcplib.NewToolResultText(string(raw)), nil
}
