package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/pipeline"
	"github.com/vodworks/clipper/internal/session"
	"github.com/vodworks/clipper/internal/storage"
	"github.com/vodworks/clipper/internal/task"
	"github.com/vodworks/clipper/internal/testutil"
	"github.com/vodworks/clipper/internal/workspace"
	"github.com/vodworks/clipper/migrations"
)

var (
	testMgr    *session.Manager
	testServer *Server
)

func TestMain(m *testing.M) {
	code := setupAndRun(m)
	os.Exit(code)
}

func setupAndRun(m *testing.M) int {
	ctx := context.Background()
	logger := testutil.TestLogger()

	tmp, err := os.MkdirTemp("", "clipper-mcp-test-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: temp dir: %v\n", err)
		return 1
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	store, err := storage.Open(ctx, filepath.Join(tmp, "clipper.db"), storage.Options{}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: open store: %v\n", err)
		return 1
	}
	if err := store.RunMigrations(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: migrations: %v\n", err)
		return 1
	}

	testMgr = session.NewManager(store, workspace.NewCache(), task.NewRegistry(),
		&pipeline.NoopRunner{}, logger, session.Options{
			WorkspaceRoot: filepath.Join(tmp, "output"),
		})
	testMgr.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		testMgr.Shutdown(shutdownCtx)
	}()

	testServer = New(testMgr, logger, "test")
	return m.Run()
}

// callRequest builds a CallToolRequest with the given arguments.
func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

// mustCreateSession creates a session through the tool handler.
func mustCreateSession(t *testing.T) string {
	t.Helper()
	result, err := testServer.handleCreateSession(context.Background(),
		callRequest("clipper_create_session", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func waitForStatus(t *testing.T, id string, want model.Status) model.SessionStatus {
	t.Helper()
	var st model.SessionStatus
	require.Eventually(t, func() bool {
		got, err := testMgr.Status(context.Background(), id)
		if err != nil {
			return false
		}
		st = got
		return st.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return st
}

func TestRegisterTools(t *testing.T) {
	assert.NotNil(t, testServer.mcpServer, "MCPServer should be initialized")
	assert.NotNil(t, testServer.MCPServer(), "MCPServer() accessor should work")
}

func TestHandleCreateSession(t *testing.T) {
	result, err := testServer.handleCreateSession(context.Background(),
		callRequest("clipper_create_session", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		SessionID string       `json:"session_id"`
		Status    model.Status `json:"status"`
		CreatedAt float64      `json:"created_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, model.StatusActive, resp.Status)
	assert.Greater(t, resp.CreatedAt, float64(0))
}

func TestHandleStartProcessing(t *testing.T) {
	id := mustCreateSession(t)

	result, err := testServer.handleStartProcessing(context.Background(),
		callRequest("clipper_start_processing", map[string]any{
			"session_id": id,
			"source":     "https://example.com/vod/42",
			"clip_count": 2,
		}))
	require.NoError(t, err)
	require.False(t, result.IsError, "body: %s", parseToolText(t, result))
	assert.Contains(t, parseToolText(t, result), "processing started")

	st := waitForStatus(t, id, model.StatusCompleted)
	assert.Len(t, st.Outputs, 2)
}

func TestHandleStartProcessing_MissingFields(t *testing.T) {
	id := mustCreateSession(t)

	tests := []struct {
		name    string
		args    map[string]any
		errText string
	}{
		{
			name:    "missing session_id",
			args:    map[string]any{"source": "https://example.com/vod/1"},
			errText: "session_id is required",
		},
		{
			name:    "missing source",
			args:    map[string]any{"session_id": id},
			errText: "source is required",
		},
		{
			name:    "clip_count over limit",
			args:    map[string]any{"session_id": id, "source": "https://example.com/vod/1", "clip_count": 99},
			errText: "clip_count must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := testServer.handleStartProcessing(context.Background(),
				callRequest("clipper_start_processing", tt.args))
			require.NoError(t, err, "handler should not return go error, only tool error")
			require.True(t, result.IsError, "expected tool error for %s", tt.name)
			assert.Contains(t, parseToolText(t, result), tt.errText)
		})
	}
}

func TestHandleStartProcessing_UnknownSession(t *testing.T) {
	result, err := testServer.handleStartProcessing(context.Background(),
		callRequest("clipper_start_processing", map[string]any{
			"session_id": "no-such-session",
			"source":     "https://example.com/vod/1",
		}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "session not found")
}

func TestHandleGetStatus(t *testing.T) {
	id := mustCreateSession(t)

	result, err := testServer.handleGetStatus(context.Background(),
		callRequest("clipper_get_status", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var st model.SessionStatus
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &st))
	assert.Equal(t, id, st.SessionID)
	assert.Equal(t, model.StatusActive, st.Status)
	assert.NotNil(t, st.PartialResults)
}

func TestHandleGetStatus_UnknownSession(t *testing.T) {
	result, err := testServer.handleGetStatus(context.Background(),
		callRequest("clipper_get_status", map[string]any{"session_id": "no-such-session"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "session not found")
}

func TestHandleGetStatus_MissingSessionID(t *testing.T) {
	result, err := testServer.handleGetStatus(context.Background(),
		callRequest("clipper_get_status", nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "session_id is required")
}

func TestHandleListSessions(t *testing.T) {
	mustCreateSession(t)
	mustCreateSession(t)

	result, err := testServer.handleListSessions(context.Background(),
		callRequest("clipper_list_sessions", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Sessions []model.SessionSummary `json:"sessions"`
		Count    int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.GreaterOrEqual(t, resp.Count, 2)
	assert.Len(t, resp.Sessions, resp.Count)
}

func TestHandleListSessions_WithLimit(t *testing.T) {
	mustCreateSession(t)
	mustCreateSession(t)

	result, err := testServer.handleListSessions(context.Background(),
		callRequest("clipper_list_sessions", map[string]any{"limit": 1}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Sessions []model.SessionSummary `json:"sessions"`
		Count    int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestHandleCancel_NoActiveJob(t *testing.T) {
	id := mustCreateSession(t)

	result, err := testServer.handleCancel(context.Background(),
		callRequest("clipper_cancel", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		SessionID string `json:"session_id"`
		Cancelled bool   `json:"cancelled"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, id, resp.SessionID)
	assert.False(t, resp.Cancelled)
}

func TestHandleCancel_UnknownSession(t *testing.T) {
	result, err := testServer.handleCancel(context.Background(),
		callRequest("clipper_cancel", map[string]any{"session_id": "no-such-session"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "session not found")
}

func TestHandleCleanup(t *testing.T) {
	id := mustCreateSession(t)

	result, err := testServer.handleCleanup(context.Background(),
		callRequest("clipper_cleanup", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		SessionID string `json:"session_id"`
		Deleted   bool   `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.True(t, resp.Deleted)

	// Second cleanup finds nothing.
	result, err = testServer.handleCleanup(context.Background(),
		callRequest("clipper_cleanup", map[string]any{"session_id": id}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "session not found")
}

func TestErrorResult(t *testing.T) {
	result := errorResult("test error message")
	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	tc, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "content should be TextContent")
	assert.Equal(t, "test error message", tc.Text)
	assert.Equal(t, "text", tc.Type)
}
