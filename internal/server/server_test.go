package server_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vodworks/clipper/internal/mcp"
	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/pipeline"
	"github.com/vodworks/clipper/internal/server"
	"github.com/vodworks/clipper/internal/session"
	"github.com/vodworks/clipper/internal/storage"
	"github.com/vodworks/clipper/internal/task"
	"github.com/vodworks/clipper/internal/testutil"
	"github.com/vodworks/clipper/internal/workspace"
	"github.com/vodworks/clipper/migrations"
)

var (
	testSrv *httptest.Server
	testMgr *session.Manager
)

func TestMain(m *testing.M) {
	code := setupAndRun(m)
	os.Exit(code)
}

func setupAndRun(m *testing.M) int {
	ctx := context.Background()
	logger := testutil.TestLogger()

	tmp, err := os.MkdirTemp("", "clipper-server-test-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "server test: temp dir: %v\n", err)
		return 1
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	store, err := storage.Open(ctx, filepath.Join(tmp, "clipper.db"), storage.Options{}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server test: open store: %v\n", err)
		return 1
	}
	if err := store.RunMigrations(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "server test: migrations: %v\n", err)
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

	mcpSrv := mcp.New(testMgr, logger, "test")

	srv := server.New(server.ServerConfig{
		Manager:             testMgr,
		Logger:              logger,
		MCPServer:           mcpSrv.MCPServer(),
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
		CORSAllowedOrigins:  []string{"*"},
		OpenAPISpec:         []byte("openapi: 3.0.3\ninfo:\n  title: Clipper API\n"),
	})
	testSrv = httptest.NewServer(srv.Handler())
	defer testSrv.Close()

	return m.Run()
}

// jsonRequest issues a request with an optional JSON body.
func jsonRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// decodeData unmarshals the data field of the response envelope.
func decodeData(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope), "body: %s", string(data))
	require.NoError(t, json.Unmarshal(envelope.Data, target), "data: %s", string(envelope.Data))
}

// decodeError unmarshals the error field of the response envelope.
func decodeError(t *testing.T, resp *http.Response) model.ErrorDetail {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope struct {
		Error model.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope), "body: %s", string(data))
	return envelope.Error
}

// createSession creates a session over HTTP and returns its id.
func createSession(t *testing.T, baseURL string) string {
	t.Helper()
	resp, err := http.Post(baseURL+"/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.CreateSessionResponse
	decodeData(t, resp, &created)
	require.NotEmpty(t, created.SessionID)
	return created.SessionID
}

// getStatus fetches the status surface for one session.
func getStatus(t *testing.T, baseURL, id string) (model.SessionStatus, int) {
	t.Helper()
	resp, err := http.Get(baseURL + "/v1/sessions/" + id)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return model.SessionStatus{}, resp.StatusCode
	}
	var st model.SessionStatus
	decodeData(t, resp, &st)
	return st, resp.StatusCode
}

// waitForStatus polls the status endpoint until the session reaches want.
func waitForStatus(t *testing.T, baseURL, id string, want model.Status) model.SessionStatus {
	t.Helper()
	var st model.SessionStatus
	require.Eventually(t, func() bool {
		got, code := getStatus(t, baseURL, id)
		if code != http.StatusOK {
			return false
		}
		st = got
		return st.Status == want
	}, 5*time.Second, 20*time.Millisecond, "session %s never reached %s", id, want)
	return st
}

func TestHealthEndpoint(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health model.HealthResponse
	decodeData(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Database)
	assert.Equal(t, "test", health.Version)
}

func TestCreateAndGetSession(t *testing.T) {
	id := createSession(t, testSrv.URL)

	st, code := getStatus(t, testSrv.URL, id)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, st.SessionID)
	assert.Equal(t, model.StatusActive, st.Status)
	assert.Equal(t, 0, st.Progress)
	assert.NotNil(t, st.PartialResults)
	assert.Empty(t, st.Outputs)
	assert.Empty(t, st.Error)
}

func TestGetSessionNotFound(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/v1/sessions/no-such-session")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	errDetail := decodeError(t, resp)
	assert.Equal(t, model.ErrCodeNotFound, errDetail.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	req, err := http.NewRequest("GET", testSrv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "test-req-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "test-req-42", resp.Header.Get("X-Request-ID"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var envelope struct {
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "test-req-42", envelope.Meta.RequestID)
}

func TestProcessingFlow(t *testing.T) {
	id := createSession(t, testSrv.URL)

	// Start a job.
	resp := jsonRequest(t, "POST", testSrv.URL+"/v1/sessions/"+id+"/process",
		model.ProcessRequest{Source: "https://example.com/vod/42", ClipCount: 2})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted model.ProcessResponse
	decodeData(t, resp, &accepted)
	assert.Equal(t, model.StatusProcessing, accepted.Status)

	// Job finishes and exposes outputs.
	st := waitForStatus(t, testSrv.URL, id, model.StatusCompleted)
	assert.Equal(t, 100, st.Progress)
	assert.Len(t, st.Outputs, 2)
	assert.Len(t, st.PartialResults, 2)

	// Files landed in the workspace.
	filesResp, err := http.Get(testSrv.URL + "/v1/sessions/" + id + "/files")
	require.NoError(t, err)
	defer func() { _ = filesResp.Body.Close() }()
	require.Equal(t, http.StatusOK, filesResp.StatusCode)

	var info workspace.Info
	decodeData(t, filesResp, &info)
	assert.Equal(t, id, info.SessionID)
	assert.ElementsMatch(t, []string{"clip_01.mp4", "clip_02.mp4"}, info.Files)
	assert.Greater(t, info.TotalSizeBytes, int64(0))
}

func TestServeFile(t *testing.T) {
	id := createSession(t, testSrv.URL)
	resp := jsonRequest(t, "POST", testSrv.URL+"/v1/sessions/"+id+"/process",
		model.ProcessRequest{Source: "https://example.com/vod/7", ClipCount: 1})
	_ = resp.Body.Close()
	waitForStatus(t, testSrv.URL, id, model.StatusCompleted)

	// Inline by default.
	fileResp, err := http.Get(testSrv.URL + "/v1/sessions/" + id + "/files/clip_01.mp4")
	require.NoError(t, err)
	defer func() { _ = fileResp.Body.Close() }()
	require.Equal(t, http.StatusOK, fileResp.StatusCode)
	assert.Equal(t, "video/mp4", fileResp.Header.Get("Content-Type"))
	assert.Contains(t, fileResp.Header.Get("Content-Disposition"), "inline")
	assert.Equal(t, "bytes", fileResp.Header.Get("Accept-Ranges"))

	body, err := io.ReadAll(fileResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "placeholder clip\n", string(body))

	// Attachment on request.
	dlResp, err := http.Get(testSrv.URL + "/v1/sessions/" + id + "/files/clip_01.mp4?download=1")
	require.NoError(t, err)
	defer func() { _ = dlResp.Body.Close() }()
	assert.Contains(t, dlResp.Header.Get("Content-Disposition"), "attachment")

	// Unknown file.
	missingResp, err := http.Get(testSrv.URL + "/v1/sessions/" + id + "/files/clip_99.mp4")
	require.NoError(t, err)
	defer func() { _ = missingResp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, missingResp.StatusCode)
}

func TestServeFileRejectsTraversal(t *testing.T) {
	id := createSession(t, testSrv.URL)

	// Encoded dot segments survive URL cleaning and reach the handler.
	resp, err := http.Get(testSrv.URL + "/v1/sessions/" + id + "/files/%2e%2e/secret.txt")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errDetail := decodeError(t, resp)
	assert.Equal(t, model.ErrCodeInvalidInput, errDetail.Code)
}

func TestArchive(t *testing.T) {
	id := createSession(t, testSrv.URL)
	resp := jsonRequest(t, "POST", testSrv.URL+"/v1/sessions/"+id+"/process",
		model.ProcessRequest{Source: "https://example.com/vod/9", ClipCount: 2})
	_ = resp.Body.Close()
	waitForStatus(t, testSrv.URL, id, model.StatusCompleted)

	archResp, err := http.Get(testSrv.URL + "/v1/sessions/" + id + "/archive")
	require.NoError(t, err)
	defer func() { _ = archResp.Body.Close() }()
	require.Equal(t, http.StatusOK, archResp.StatusCode)
	assert.Equal(t, "application/zip", archResp.Header.Get("Content-Type"))
	assert.Contains(t, archResp.Header.Get("Content-Disposition"), "clips_"+id+".zip")

	data, err := io.ReadAll(archResp.Body)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"clip_01.mp4", "clip_02.mp4"}, names)
}

func TestArchiveEmptyWorkspace(t *testing.T) {
	id := createSession(t, testSrv.URL)

	resp, err := http.Get(testSrv.URL + "/v1/sessions/" + id + "/archive")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProcessValidation(t *testing.T) {
	id := createSession(t, testSrv.URL)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing source", `{}`},
		{"blank source", `{"source": "  "}`},
		{"clip_count too large", `{"source": "https://example.com/vod/1", "clip_count": 99}`},
		{"unknown field", `{"source": "https://example.com/vod/1", "bogus": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("POST", testSrv.URL+"/v1/sessions/"+id+"/process",
				bytes.NewReader([]byte(tt.body)))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			errDetail := decodeError(t, resp)
			assert.Equal(t, model.ErrCodeInvalidInput, errDetail.Code)
		})
	}
}

func TestProcessUnknownSession(t *testing.T) {
	resp := jsonRequest(t, "POST", testSrv.URL+"/v1/sessions/no-such-session/process",
		model.ProcessRequest{Source: "https://example.com/vod/1"})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelWithoutJob(t *testing.T) {
	id := createSession(t, testSrv.URL)

	resp := jsonRequest(t, "POST", testSrv.URL+"/v1/sessions/"+id+"/cancel", nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cancel model.CancelResponse
	decodeData(t, resp, &cancel)
	assert.False(t, cancel.Cancelled)

	st, _ := getStatus(t, testSrv.URL, id)
	assert.Equal(t, model.StatusActive, st.Status)
}

func TestCancelUnknownSession(t *testing.T) {
	resp := jsonRequest(t, "POST", testSrv.URL+"/v1/sessions/no-such-session/cancel", nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	id := createSession(t, testSrv.URL)

	resp := jsonRequest(t, "DELETE", testSrv.URL+"/v1/sessions/"+id, nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var deleted model.CleanupResponse
	decodeData(t, resp, &deleted)
	assert.True(t, deleted.Deleted)

	_, code := getStatus(t, testSrv.URL, id)
	assert.Equal(t, http.StatusNotFound, code)

	// A second delete finds nothing.
	again := jsonRequest(t, "DELETE", testSrv.URL+"/v1/sessions/"+id, nil)
	defer func() { _ = again.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestListSessions(t *testing.T) {
	createSession(t, testSrv.URL)
	createSession(t, testSrv.URL)

	resp, err := http.Get(testSrv.URL + "/v1/sessions")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing model.SessionListResponse
	decodeData(t, resp, &listing)
	assert.GreaterOrEqual(t, listing.Count, 2)
	assert.Len(t, listing.Sessions, listing.Count)

	// Limit caps the result.
	limited, err := http.Get(testSrv.URL + "/v1/sessions?limit=1")
	require.NoError(t, err)
	defer func() { _ = limited.Body.Close() }()
	var one model.SessionListResponse
	decodeData(t, limited, &one)
	assert.Equal(t, 1, one.Count)

	// Bad limit is rejected.
	bad, err := http.Get(testSrv.URL + "/v1/sessions?limit=nope")
	require.NoError(t, err)
	defer func() { _ = bad.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestCounts(t *testing.T) {
	createSession(t, testSrv.URL)

	resp, err := http.Get(testSrv.URL + "/v1/counts")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var counts model.CountsResponse
	decodeData(t, resp, &counts)
	assert.Equal(t, "alive", counts.Status)
	assert.Greater(t, counts.Timestamp, float64(0))
	assert.GreaterOrEqual(t, counts.ActiveSessions, 1)
}

func TestOpenAPISpec(t *testing.T) {
	resp, err := http.Get(testSrv.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "openapi:")
}

func TestCORSPreflight(t *testing.T) {
	req, err := http.NewRequest("OPTIONS", testSrv.URL+"/v1/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://studio.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

// blockingRunner parks until release is closed so tests can observe the
// processing window.
type blockingRunner struct {
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, req model.ProcessRequest, ws *workspace.Workspace, rep pipeline.Reporter) ([]model.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return []model.Result{{"filename": "clip_01.mp4"}}, nil
	}
}

// newIsolatedServer builds a server with its own manager so tests can
// control the runner and body limit without touching shared state.
func newIsolatedServer(t *testing.T, runner pipeline.Runner, maxBody int64) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := testutil.TestLogger()

	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "clipper.db"), storage.Options{}, logger)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(ctx, migrations.FS))

	mgr := session.NewManager(store, workspace.NewCache(), task.NewRegistry(), runner, logger,
		session.Options{WorkspaceRoot: t.TempDir()})
	mgr.Start(ctx)

	srv := httptest.NewServer(server.New(server.ServerConfig{
		Manager:             mgr,
		Logger:              logger,
		Version:             "test",
		MaxRequestBodyBytes: maxBody,
	}).Handler())

	t.Cleanup(func() {
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.Shutdown(shutdownCtx)
	})
	return srv
}

func TestProcessConflict(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	srv := newIsolatedServer(t, runner, 1<<20)

	id := createSession(t, srv.URL)

	first := jsonRequest(t, "POST", srv.URL+"/v1/sessions/"+id+"/process",
		model.ProcessRequest{Source: "https://example.com/vod/1"})
	_ = first.Body.Close()
	require.Equal(t, http.StatusAccepted, first.StatusCode)

	// Second job while the first is registered.
	second := jsonRequest(t, "POST", srv.URL+"/v1/sessions/"+id+"/process",
		model.ProcessRequest{Source: "https://example.com/vod/1"})
	defer func() { _ = second.Body.Close() }()
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	errDetail := decodeError(t, second)
	assert.Equal(t, model.ErrCodeConflict, errDetail.Code)

	close(runner.release)
	waitForStatus(t, srv.URL, id, model.StatusCompleted)
}

func TestCancelRunningJob(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	srv := newIsolatedServer(t, runner, 1<<20)

	id := createSession(t, srv.URL)
	resp := jsonRequest(t, "POST", srv.URL+"/v1/sessions/"+id+"/process",
		model.ProcessRequest{Source: "https://example.com/vod/1"})
	_ = resp.Body.Close()
	waitForStatus(t, srv.URL, id, model.StatusProcessing)

	cancelResp := jsonRequest(t, "POST", srv.URL+"/v1/sessions/"+id+"/cancel", nil)
	defer func() { _ = cancelResp.Body.Close() }()
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)

	var cancel model.CancelResponse
	decodeData(t, cancelResp, &cancel)
	assert.True(t, cancel.Cancelled)

	waitForStatus(t, srv.URL, id, model.StatusCancelled)
}

func TestRequestBodyTooLarge(t *testing.T) {
	srv := newIsolatedServer(t, &pipeline.NoopRunner{}, 16)

	id := createSession(t, srv.URL)

	resp := jsonRequest(t, "POST", srv.URL+"/v1/sessions/"+id+"/process",
		model.ProcessRequest{Source: "https://example.com/a-very-long-vod-url/42"})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

// ---------- MCP over StreamableHTTP ----------

func newMCPClient(t *testing.T) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(testSrv.URL + "/mcp")
	require.NoError(t, err)
	return c
}

func initMCP(t *testing.T, c *mcpclient.Client) {
	t.Helper()
	_, err := c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
}

func TestMCPInitialize(t *testing.T) {
	c := newMCPClient(t)
	defer func() { _ = c.Close() }()

	initResult, err := c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "clipper", initResult.ServerInfo.Name)
	assert.Equal(t, "test", initResult.ServerInfo.Version)
}

func TestMCPListTools(t *testing.T) {
	c := newMCPClient(t)
	defer func() { _ = c.Close() }()
	initMCP(t, c)

	toolsResult, err := c.ListTools(context.Background(), mcplib.ListToolsRequest{})
	require.NoError(t, err)
	assert.Len(t, toolsResult.Tools, 6)

	toolNames := make(map[string]bool)
	for _, tool := range toolsResult.Tools {
		toolNames[tool.Name] = true
	}
	assert.True(t, toolNames["clipper_create_session"], "expected clipper_create_session tool")
	assert.True(t, toolNames["clipper_start_processing"], "expected clipper_start_processing tool")
	assert.True(t, toolNames["clipper_get_status"], "expected clipper_get_status tool")
	assert.True(t, toolNames["clipper_list_sessions"], "expected clipper_list_sessions tool")
	assert.True(t, toolNames["clipper_cancel"], "expected clipper_cancel tool")
	assert.True(t, toolNames["clipper_cleanup"], "expected clipper_cleanup tool")
}

func TestMCPListResources(t *testing.T) {
	c := newMCPClient(t)
	defer func() { _ = c.Close() }()
	initMCP(t, c)

	resourcesResult, err := c.ListResources(context.Background(), mcplib.ListResourcesRequest{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(resourcesResult.Resources), 1, "expected at least sessions/recent")
}

func TestMCPProduceFlow(t *testing.T) {
	c := newMCPClient(t)
	defer func() { _ = c.Close() }()
	initMCP(t, c)
	ctx := context.Background()

	// Create a session via the MCP tool.
	createResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "clipper_create_session"},
	})
	require.NoError(t, err)
	require.False(t, createResult.IsError, "create tool returned error: %v", createResult.Content)

	var created struct {
		SessionID string `json:"session_id"`
	}
	for _, content := range createResult.Content {
		if tc, ok := content.(mcplib.TextContent); ok {
			require.NoError(t, json.Unmarshal([]byte(tc.Text), &created))
			break
		}
	}
	require.NotEmpty(t, created.SessionID)

	// Start processing.
	processResult, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name: "clipper_start_processing",
			Arguments: map[string]any{
				"session_id": created.SessionID,
				"source":     "https://example.com/vod/42",
				"clip_count": 2,
			},
		},
	})
	require.NoError(t, err)
	require.False(t, processResult.IsError, "process tool returned error: %v", processResult.Content)

	// Poll status until completed.
	waitForStatus(t, testSrv.URL, created.SessionID, model.StatusCompleted)

	// Read the per-session resource.
	readResult, err := c.ReadResource(ctx, mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "clipper://sessions/" + created.SessionID},
	})
	require.NoError(t, err)
	require.NotEmpty(t, readResult.Contents)

	tc, ok := readResult.Contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)

	var st model.SessionStatus
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &st))
	assert.Equal(t, model.StatusCompleted, st.Status)
	assert.Len(t, st.Outputs, 2)
}

func TestMCPPrompts(t *testing.T) {
	c := newMCPClient(t)
	defer func() { _ = c.Close() }()
	initMCP(t, c)
	ctx := context.Background()

	promptsResult, err := c.ListPrompts(ctx, mcplib.ListPromptsRequest{})
	require.NoError(t, err)
	require.Len(t, promptsResult.Prompts, 1)
	assert.Equal(t, "produce-clips", promptsResult.Prompts[0].Name)

	promptResult, err := c.GetPrompt(ctx, mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "produce-clips",
			Arguments: map[string]string{"source": "https://example.com/vod/42"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, promptResult.Messages)

	if tc, ok := promptResult.Messages[0].Content.(mcplib.TextContent); ok {
		assert.Contains(t, tc.Text, "clipper_create_session")
	}
}
