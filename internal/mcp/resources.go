package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/vodworks/clipper/internal/session"
)

func (s *Server) registerResources() {
	// clipper://sessions/recent — the most recent sessions with status.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"clipper://sessions/recent",
			"Recent Sessions",
			mcplib.WithResourceDescription("The most recent sessions with status and result counts"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentSessions,
	)

	// clipper://sessions/{id} — full status surface for one session.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"clipper://sessions/{id}",
			"Session Status",
			mcplib.WithTemplateDescription("Full status for a specific session"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleSessionStatus,
	)
}

func (s *Server) handleRecentSessions(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	sessions := s.manager.ListSessions(ctx, 20)

	data, err := json.MarshalIndent(map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal sessions: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "clipper://sessions/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id, ok := strings.CutPrefix(uri, "clipper://sessions/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("mcp: invalid session URI: %s", uri)
	}

	st, err := s.manager.Status(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("mcp: session not found: %s", id)
		}
		return nil, fmt.Errorf("mcp: session status: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal status: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
