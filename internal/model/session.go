// Package model defines the core domain types for Clipper.
//
// SessionRecord mirrors the sessions table column for column. Timestamps are
// raw epoch seconds (REAL columns) rather than time.Time so persisted values
// round-trip without conversion loss and match what the HTTP API has always
// returned.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a session.
//
// Transitions: active → processing → {completed, error, cancelled}.
// A processing session moves to cancelled on an explicit cancel request.
// Terminal statuses accept no further transition except deletion.
type Status string

const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether sessions in this status accept no further
// status transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// ProgressError is the progress sentinel a job reports when it failed
// partway rather than at a known percentage.
const ProgressError = -1

// Result is one opaque record appended by a job. The store round-trips the
// results column as a JSON array and never inspects individual fields.
type Result map[string]any

// SessionRecord is the authoritative persisted state of one session.
// session_id and created_at are immutable after insert; everything else is
// mutated by jobs, heartbeats, and status updates.
type SessionRecord struct {
	SessionID    string   `json:"session_id"`
	CreatedAt    float64  `json:"created_at"`
	Status       Status   `json:"status"`
	Results      []Result `json:"results"`
	CurrentStep  string   `json:"current_step"`
	Progress     int      `json:"progress"`
	LastActivity float64  `json:"last_activity"`
	Error        *string  `json:"error,omitempty"`
	UpdatedAt    float64  `json:"updated_at"`
}

// NewSessionRecord returns the initial record for a fresh session:
// status active, zero progress, empty (non-nil) results.
func NewSessionRecord(id string, now float64) SessionRecord {
	return SessionRecord{
		SessionID:    id,
		CreatedAt:    now,
		Status:       StatusActive,
		Results:      []Result{},
		LastActivity: now,
	}
}

// Epoch converts t to the epoch-seconds representation used by the
// sessions table REAL columns.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// SessionSummary is the listing projection, ordered by recency.
type SessionSummary struct {
	SessionID    string  `json:"session_id"`
	Status       Status  `json:"status"`
	CreatedAt    float64 `json:"created_at"`
	ResultsCount int     `json:"results_count"`
}

// SessionStatus is the status-surface projection for one session.
// Outputs carries the final results only once the session completed, Error
// only when it errored.
type SessionStatus struct {
	SessionID      string   `json:"session_id"`
	Status         Status   `json:"status"`
	CreatedAt      float64  `json:"created_at"`
	LastActivity   float64  `json:"last_activity"`
	PartialResults []Result `json:"partial_results"`
	CurrentStep    string   `json:"current_step"`
	Progress       int      `json:"progress"`
	Outputs        []Result `json:"outputs,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// SessionCounts is the counts surface: persisted active/processing totals
// plus the size of the in-memory workspace cache.
type SessionCounts struct {
	ActiveSessions     int `json:"active_sessions"`
	ProcessingSessions int `json:"processing_sessions"`
	CachedSessions     int `json:"cached_sessions"`
}

// Clip-count bounds for a processing request.
const (
	DefaultClipCount = 5
	MaxClipCount     = 20
)

// ProcessRequest describes one processing job: where to pull clips from and
// how to render them. The pipeline treats it as opaque mode flags.
type ProcessRequest struct {
	Source    string `json:"source"`
	ClipCount int    `json:"clip_count"`
	Vertical  bool   `json:"vertical"`
	Subtitles bool   `json:"subtitles"`
}

// Validate checks required fields and applies the default clip count when
// the caller omitted one.
func (r *ProcessRequest) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("source is required")
	}
	if r.ClipCount == 0 {
		r.ClipCount = DefaultClipCount
	}
	if r.ClipCount < 1 || r.ClipCount > MaxClipCount {
		return fmt.Errorf("clip_count must be between 1 and %d", MaxClipCount)
	}
	return nil
}
