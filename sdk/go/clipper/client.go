package clipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Clipper server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Clipper session API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("clipper: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// CreateSession allocates a new session and returns its id and creation
// metadata.
func (c *Client) CreateSession(ctx context.Context) (*CreateSessionResponse, error) {
	var resp CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession returns the session's current status, progress, and results.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var resp Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions returns session summaries, newest first. limit <= 0 returns
// all sessions.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	path := "/v1/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp listPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// StartProcessing launches the background clip job for a session. The
// server returns Conflict (IsConflict) while a previous job is running.
func (c *Client) StartProcessing(ctx context.Context, id string, req ProcessRequest) (*ProcessResponse, error) {
	var resp ProcessResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/process", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel requests cooperative cancellation of the session's job. Cancelled
// is false in the response when no job was running; that is not an error.
func (c *Client) Cancel(ctx context.Context, id string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete tears the session down: cancels any job, removes the workspace
// and every produced file, and deletes the record.
func (c *Client) Delete(ctx context.Context, id string) (*CleanupResponse, error) {
	var resp CleanupResponse
	if err := c.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Files lists the session workspace's files and total size.
func (c *Client) Files(ctx context.Context, id string) (*WorkspaceInfo, error) {
	var resp WorkspaceInfo
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id)+"/files", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Counts returns the active/processing/cached session counts.
func (c *Client) Counts(ctx context.Context) (*Counts, error) {
	var resp Counts
	if err := c.do(ctx, http.MethodGet, "/v1/counts", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns the server health surface. Unlike the other methods a 503
// still decodes the body, so callers see the degraded detail.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	body, status, err := c.roundTrip(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return nil, apiError(status, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("clipper: decode response: %w", err)
	}
	var resp Health
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		return nil, fmt.Errorf("clipper: decode response: %w", err)
	}
	return &resp, nil
}

// WaitForCompletion polls the session until it reaches a terminal status
// or ctx expires. pollInterval <= 0 uses a 2-second default. The returned
// session carries the terminal state, including error detail for failed
// runs — reaching "error" or "cancelled" is not itself an error here.
func (c *Client) WaitForCompletion(ctx context.Context, id string, pollInterval time.Duration) (*Session, error) {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s, err := c.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.Terminal() {
			return s, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// do performs one API round trip and decodes the envelope's data payload
// into out.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	body, status, err := c.roundTrip(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return apiError(status, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("clipper: decode response: %w", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("clipper: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, reqBody any) ([]byte, int, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("clipper: encode request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("clipper: build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("clipper: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("clipper: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// apiError builds an *Error from a non-2xx response, falling back to the
// raw body when the envelope doesn't parse.
func apiError(status int, body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return &Error{StatusCode: status, Code: env.Error.Code, Message: env.Error.Message}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &Error{StatusCode: status, Code: "UNKNOWN", Message: msg}
}
