package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vodworks/clipper/internal/model"
)

const sessionColumns = `session_id, created_at, status, results, current_step, progress, last_activity, error, updated_at`

// CreateSession inserts a fresh record. Returns false when the id already
// exists or the insert failed; both are logged, conflicts at Warn.
func (s *Store) CreateSession(ctx context.Context, rec model.SessionRecord) bool {
	results, err := encodeResults(rec.Results)
	if err != nil {
		s.logger.Error("storage: create session: encode results", "session_id", rec.SessionID, "error", err)
		return false
	}

	err = s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (session_id, created_at, status, results, current_step, progress, last_activity, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.CreatedAt, string(rec.Status), results,
			rec.CurrentStep, rec.Progress, rec.LastActivity, rec.Error,
		)
		return err
	})
	if err != nil {
		if isConstraint(err) {
			s.logger.Warn("storage: create session: id already exists", "session_id", rec.SessionID)
		} else {
			s.logger.Error("storage: create session", "session_id", rec.SessionID, "error", err)
		}
		return false
	}
	return true
}

// GetSession returns the record, or ok=false when the id is unknown or the
// lookup failed.
func (s *Store) GetSession(ctx context.Context, id string) (model.SessionRecord, bool) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)

	rec, err := scanSession(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("storage: get session", "session_id", id, "error", err)
		}
		return model.SessionRecord{}, false
	}
	return rec, true
}

// Exists reports whether a record for id is persisted. Cheaper than
// GetSession: no column decoding.
func (s *Store) Exists(ctx context.Context, id string) bool {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE session_id = ?`, id).Scan(&one)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("storage: session exists", "session_id", id, "error", err)
		}
		return false
	}
	return true
}

// UpdateSession replaces every mutable column of an existing record
// (status, results, current_step, progress, last_activity, error).
// Returns whether a row was affected.
func (s *Store) UpdateSession(ctx context.Context, rec model.SessionRecord) bool {
	results, err := encodeResults(rec.Results)
	if err != nil {
		s.logger.Error("storage: update session: encode results", "session_id", rec.SessionID, "error", err)
		return false
	}

	var affected int64
	err = s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE sessions
			 SET status = ?, results = ?, current_step = ?, progress = ?, last_activity = ?, error = ?,
			     updated_at = strftime('%s','now')
			 WHERE session_id = ?`,
			string(rec.Status), results, rec.CurrentStep, rec.Progress,
			rec.LastActivity, rec.Error, rec.SessionID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		s.logger.Error("storage: update session", "session_id", rec.SessionID, "error", err)
		return false
	}
	return affected > 0
}

// TouchLastActivity refreshes only last_activity — the cheap liveness write
// used on cache hits and heartbeats.
func (s *Store) TouchLastActivity(ctx context.Context, id string) bool {
	var affected int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET last_activity = ?, updated_at = strftime('%s','now') WHERE session_id = ?`,
			model.Epoch(s.now()), id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		s.logger.Error("storage: touch last activity", "session_id", id, "error", err)
		return false
	}
	return affected > 0
}

// AppendResult appends one result to the session's results array inside a
// transaction, so concurrent appends cannot drop records. Returns whether
// the session existed.
func (s *Store) AppendResult(ctx context.Context, id string, result model.Result) bool {
	var existed bool
	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var raw string
		err = tx.QueryRowContext(ctx,
			`SELECT results FROM sessions WHERE session_id = ?`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			existed = false
			return nil
		}
		if err != nil {
			return err
		}

		var results []model.Result
		if err := json.Unmarshal([]byte(raw), &results); err != nil {
			return fmt.Errorf("decode results: %w", err)
		}
		results = append(results, result)

		encoded, err := json.Marshal(results)
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET results = ?, last_activity = ?, updated_at = strftime('%s','now') WHERE session_id = ?`,
			string(encoded), model.Epoch(s.now()), id,
		); err != nil {
			return err
		}

		existed = true
		return tx.Commit()
	})
	if err != nil {
		s.logger.Error("storage: append result", "session_id", id, "error", err)
		return false
	}
	return existed
}

// DeleteSession removes one record. Returns whether a row was deleted.
func (s *Store) DeleteSession(ctx context.Context, id string) bool {
	var affected int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM sessions WHERE session_id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		s.logger.Error("storage: delete session", "session_id", id, "error", err)
		return false
	}
	return affected > 0
}

// ListSessions returns records ordered by last_activity descending.
// limit <= 0 means no limit. Failures are logged and yield an empty slice.
func (s *Store) ListSessions(ctx context.Context, limit int) []model.SessionRecord {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY last_activity DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("storage: list sessions", "error", err)
		return nil
	}
	defer rows.Close()

	var records []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			s.logger.Error("storage: list sessions: scan", "error", err)
			return nil
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("storage: list sessions", "error", err)
		return nil
	}
	return records
}

// CleanupOlderThan deletes all records created strictly before now-maxAge
// and returns the count deleted. A record created at exactly the cutoff is
// retained.
func (s *Store) CleanupOlderThan(ctx context.Context, maxAge time.Duration) int {
	cutoff := model.Epoch(s.now()) - maxAge.Seconds()

	var affected int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM sessions WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		s.logger.Error("storage: cleanup old sessions", "error", err)
		return 0
	}
	if affected > 0 {
		s.logger.Info("storage: cleaned up old sessions", "count", affected)
	}
	return int(affected)
}

// CountByStatus returns the number of sessions currently in the given
// status; 0 on failure.
func (s *Store) CountByStatus(ctx context.Context, status model.Status) int {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE status = ?`, string(status)).Scan(&count)
	if err != nil {
		s.logger.Error("storage: count by status", "status", status, "error", err)
		return 0
	}
	return count
}

// CountAll returns the total number of persisted sessions; 0 on failure.
func (s *Store) CountAll(ctx context.Context) int {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	if err != nil {
		s.logger.Error("storage: count all", "error", err)
		return 0
	}
	return count
}

// rowScanner lets scanSession work over both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.SessionRecord, error) {
	var (
		rec     model.SessionRecord
		status  string
		results string
		step    sql.NullString
		errMsg  sql.NullString
	)
	if err := row.Scan(
		&rec.SessionID, &rec.CreatedAt, &status, &results,
		&step, &rec.Progress, &rec.LastActivity, &errMsg, &rec.UpdatedAt,
	); err != nil {
		return model.SessionRecord{}, err
	}

	rec.Status = model.Status(status)
	rec.CurrentStep = step.String
	if errMsg.Valid {
		rec.Error = &errMsg.String
	}
	if err := json.Unmarshal([]byte(results), &rec.Results); err != nil {
		return model.SessionRecord{}, fmt.Errorf("decode results: %w", err)
	}
	if rec.Results == nil {
		rec.Results = []model.Result{}
	}
	return rec, nil
}

// encodeResults marshals results for the JSON-array column. nil encodes as
// the empty array, never null.
func encodeResults(results []model.Result) (string, error) {
	if results == nil {
		results = []model.Result{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
