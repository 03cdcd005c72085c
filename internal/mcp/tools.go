package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/session"
)

func (s *Server) registerTools() {
	// clipper_create_session — allocate a session and its workspace.
	s.mcpServer.AddTool(
		mcplib.NewTool("clipper_create_session",
			mcplib.WithDescription(`Create a new clip production session.

A session owns a durable workspace directory where every produced clip lands.
Call this FIRST, then pass the returned session_id to clipper_start_processing.
Sessions persist across restarts and are purged automatically after the
retention window, or explicitly via clipper_cleanup.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleCreateSession,
	)

	// clipper_start_processing — kick off a background clip job.
	s.mcpServer.AddTool(
		mcplib.NewTool("clipper_start_processing",
			mcplib.WithDescription(`Start producing clips for a session in the background.

Returns immediately; poll clipper_get_status for progress. Re-running on a
finished session starts a fresh run and clears the previous results. A session
that is already processing refuses a second job.`),
			mcplib.WithString("session_id",
				mcplib.Description("Session to process, from clipper_create_session"),
				mcplib.Required(),
			),
			mcplib.WithString("source",
				mcplib.Description("Source channel or VOD URL to pull clips from"),
				mcplib.Required(),
			),
			mcplib.WithNumber("clip_count",
				mcplib.Description("How many clips to produce"),
				mcplib.Min(1),
				mcplib.Max(model.MaxClipCount),
				mcplib.DefaultNumber(model.DefaultClipCount),
			),
			mcplib.WithBoolean("vertical",
				mcplib.Description("Render clips in vertical (9:16) format"),
			),
			mcplib.WithBoolean("subtitles",
				mcplib.Description("Burn subtitles into the clips"),
			),
		),
		s.handleStartProcessing,
	)

	// clipper_get_status — the status surface clients poll during a run.
	s.mcpServer.AddTool(
		mcplib.NewTool("clipper_get_status",
			mcplib.WithDescription(`Get the current status of a session.

Returns status (active, processing, completed, error, cancelled), the current
step, progress percentage, and partial results. Completed sessions include
outputs; errored sessions include the failure message.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("session_id",
				mcplib.Description("Session to inspect"),
				mcplib.Required(),
			),
		),
		s.handleGetStatus,
	)

	// clipper_list_sessions — listing surface, newest first.
	s.mcpServer.AddTool(
		mcplib.NewTool("clipper_list_sessions",
			mcplib.WithDescription("List sessions, newest first, with status and result counts."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum sessions to return, 0 means all"),
				mcplib.Min(0),
			),
		),
		s.handleListSessions,
	)

	// clipper_cancel — cooperative cancel of a running job.
	s.mcpServer.AddTool(
		mcplib.NewTool("clipper_cancel",
			mcplib.WithDescription(`Cancel a session's running job.

Cancellation is cooperative: the job observes it at its next step. Reports
whether a job was actually cancelled; cancelling a session with no running
job is not an error.`),
			mcplib.WithString("session_id",
				mcplib.Description("Session whose job to cancel"),
				mcplib.Required(),
			),
		),
		s.handleCancel,
	)

	// clipper_cleanup — tear down one session completely.
	s.mcpServer.AddTool(
		mcplib.NewTool("clipper_cleanup",
			mcplib.WithDescription(`Delete a session: cancel any running job, remove its workspace directory and every file in it, and delete the persisted record. Irreversible.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithString("session_id",
				mcplib.Description("Session to delete"),
				mcplib.Required(),
			),
		),
		s.handleCleanup,
	)
}

func (s *Server) handleCreateSession(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	rec, err := s.manager.CreateSession(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to create session: %v", err)), nil
	}

	resultData, _ := json.Marshal(map[string]any{
		"session_id": rec.SessionID,
		"status":     rec.Status,
		"created_at": rec.CreatedAt,
	})
	return toolResult(string(resultData)), nil
}

func (s *Server) handleStartProcessing(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}

	req := model.ProcessRequest{
		Source:    request.GetString("source", ""),
		ClipCount: request.GetInt("clip_count", 0),
		Vertical:  request.GetBool("vertical", false),
		Subtitles: request.GetBool("subtitles", false),
	}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	if err := s.manager.StartProcessing(ctx, sessionID, req); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return errorResult("session not found: " + sessionID), nil
		case errors.Is(err, session.ErrProcessing):
			return errorResult("session is already processing: " + sessionID), nil
		default:
			return errorResult(fmt.Sprintf("failed to start processing: %v", err)), nil
		}
	}

	resultData, _ := json.Marshal(map[string]any{
		"session_id": sessionID,
		"status":     model.StatusProcessing,
		"message":    "processing started, poll clipper_get_status for progress",
	})
	return toolResult(string(resultData)), nil
}

func (s *Server) handleGetStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}

	st, err := s.manager.Status(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return errorResult("session not found: " + sessionID), nil
		}
		return errorResult(fmt.Sprintf("failed to read status: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(st, "", "  ")
	return toolResult(string(resultData)), nil
}

func (s *Server) handleListSessions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return errorResult("limit must be non-negative"), nil
	}

	sessions := s.manager.ListSessions(ctx, limit)
	resultData, _ := json.MarshalIndent(map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	}, "", "  ")
	return toolResult(string(resultData)), nil
}

func (s *Server) handleCancel(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}

	cancelled, err := s.manager.CancelProcessing(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return errorResult("session not found: " + sessionID), nil
		}
		return errorResult(fmt.Sprintf("failed to cancel: %v", err)), nil
	}

	resultData, _ := json.Marshal(map[string]any{
		"session_id": sessionID,
		"cancelled":  cancelled,
	})
	return toolResult(string(resultData)), nil
}

func (s *Server) handleCleanup(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return errorResult("session_id is required"), nil
	}

	if !s.manager.CleanupSession(ctx, sessionID) {
		return errorResult("session not found: " + sessionID), nil
	}

	resultData, _ := json.Marshal(map[string]any{
		"session_id": sessionID,
		"deleted":    true,
	})
	return toolResult(string(resultData)), nil
}

func toolResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}
