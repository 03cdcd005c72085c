package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// produce-clips — walks the agent through the full session workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("produce-clips",
			mcplib.WithPromptDescription("Produce clips from a source through the full session workflow"),
			mcplib.WithArgument("source",
				mcplib.ArgumentDescription("Source channel or VOD URL to pull clips from"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("clip_count",
				mcplib.ArgumentDescription("How many clips to produce (default 5)"),
			),
		),
		s.handleProduceClipsPrompt,
	)
}

func (s *Server) handleProduceClipsPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	source := request.Params.Arguments["source"]
	if source == "" {
		return nil, fmt.Errorf("source argument is required")
	}
	clipCount := request.Params.Arguments["clip_count"]
	if clipCount == "" {
		clipCount = "5"
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Produce %s clips from %s", clipCount, source),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Produce %s clips from %s by following these steps:

1. CALL clipper_create_session to allocate a session and note the session_id.

2. CALL clipper_start_processing with:
   - session_id: the id from step 1
   - source: "%s"
   - clip_count: %s

3. POLL clipper_get_status with the session_id until status is a terminal
   one (completed, error, or cancelled). While processing, current_step and
   progress show where the run is; partial_results lists clips finished so far.

4. ON completion, report the outputs to the user. On error, report the
   failure message. If the user changes their mind mid-run, CALL
   clipper_cancel with the session_id.

5. WHEN the user is done with the clips, CALL clipper_cleanup with the
   session_id to reclaim the workspace.`, clipCount, source, source, clipCount),
				},
			},
		},
	}, nil
}
