package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// CreateSessionResponse is the POST /v1/sessions payload.
type CreateSessionResponse struct {
	SessionID string  `json:"session_id"`
	Status    Status  `json:"status"`
	CreatedAt float64 `json:"created_at"`
}

// SessionListResponse is the GET /v1/sessions payload.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Count    int              `json:"count"`
}

// ProcessResponse acknowledges that a processing job was accepted.
type ProcessResponse struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Message   string `json:"message"`
}

// CancelResponse reports the outcome of a cancel request. Cancelled is false
// when the session existed but had no registered job.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// CleanupResponse reports the outcome of an explicit session cleanup.
type CleanupResponse struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

// CountsResponse is the GET /v1/counts payload, the liveness surface clients
// poll to keep the service warm.
type CountsResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
	SessionCounts
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Database       string `json:"database"`
	CachedSessions int    `json:"cached_sessions"`
	RegisteredJobs int    `json:"registered_jobs"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}
