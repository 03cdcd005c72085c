// Package mcp implements the Model Context Protocol server for Clipper.
//
// The MCP server exposes the same session lifecycle as the HTTP API through
// MCP tools, resources, and prompts, allowing MCP-compatible AI agents to
// drive clip production directly.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/vodworks/clipper/internal/session"
)

// Server wraps the MCP server with Clipper's session façade.
type Server struct {
	mcpServer *mcpserver.MCPServer
	manager   *session.Manager
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools, resources,
// and prompts registered.
func New(manager *session.Manager, logger *slog.Logger, version string) *Server {
	s := &Server{
		manager: manager,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"clipper",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
