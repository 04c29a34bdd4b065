package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// SessionStatus is the stored lifecycle status of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
	// SessionInterrupted marks a session that was still active when the
	// process died.
	SessionInterrupted SessionStatus = "interrupted"
)

// StatusOf maps a finished result to its stored status.
func StatusOf(r *models.SessionResult) SessionStatus {
	switch {
	case r.Cancelled:
		return SessionCancelled
	case r.Error != "":
		return SessionFailed
	default:
		return SessionCompleted
	}
}

// Session is one stored session row.
type Session struct {
	ID           string        `json:"id"`
	Task         string        `json:"task"`
	Status       SessionStatus `json:"status"`
	Success      bool          `json:"success"`
	Total        int           `json:"total"`
	Successful   int           `json:"successful"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Corrected    int           `json:"corrected"`
	AverageScore int           `json:"average_score"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Plan         *models.Plan  `json:"plan,omitempty"`
	// Outcomes is only filled by GetSession.
	Outcomes []models.SubtaskOutcome `json:"outcomes,omitempty"`
}

// SavePlan records a new active session with its plan. Saving again for the
// same id replaces the plan.
func (db *DB) SavePlan(ctx context.Context, sessionID string, plan *models.Plan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	started := plan.CreatedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err = db.exec(ctx, `
		INSERT INTO sessions (id, task, status, total, plan, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET task = excluded.task, total = excluded.total, plan = excluded.plan
	`, sessionID, plan.TaskDescription, string(SessionActive), len(plan.Subtasks), string(raw), formatTime(started))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// SaveSession stores a finished session and replaces its outcomes.
func (db *DB) SaveSession(ctx context.Context, r *models.SessionResult) error {
	var plan sql.NullString
	if r.Plan != nil {
		raw, err := json.Marshal(r.Plan)
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		plan = sql.NullString{String: string(raw), Valid: true}
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, task, status, success, total, successful, failed, skipped,
				corrected, average_score, error, plan, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				task = excluded.task, status = excluded.status, success = excluded.success,
				total = excluded.total, successful = excluded.successful, failed = excluded.failed,
				skipped = excluded.skipped, corrected = excluded.corrected,
				average_score = excluded.average_score, error = excluded.error,
				plan = COALESCE(excluded.plan, sessions.plan), ended_at = excluded.ended_at
		`, r.SessionID, r.TaskDescription, string(StatusOf(r)), boolInt(r.Success), r.Total,
			r.Successful, r.Failed, r.Skipped, r.Corrected, r.AverageScore, nullString(r.Error),
			plan, formatTime(started), formatTime(r.EndedAt))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE session_id = ?`, r.SessionID); err != nil {
			return err
		}
		for i, o := range r.Outcomes {
			var score sql.NullInt64
			if o.Score != nil {
				score = sql.NullInt64{Int64: int64(*o.Score), Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO outcomes (session_id, position, subtask_id, success, skipped, corrected,
					correction_attempted, correction_attempts, score, error, reason, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, r.SessionID, i, o.SubtaskID, boolInt(o.Success), boolInt(o.Skipped), boolInt(o.Corrected),
				boolInt(o.CorrectionAttempted), o.CorrectionAttempts, score, nullString(o.Error),
				nullString(o.Reason), o.Duration.Milliseconds())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", r.SessionID, err)
	}
	return nil
}

const sessionColumns = `id, task, status, success, total, successful, failed, skipped,
	corrected, average_score, error, plan, started_at, ended_at`

// GetSession returns a session with its plan and outcomes, or nil if it
// does not exist.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	row := db.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.Outcomes, err = db.Outcomes(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns sessions newest first. A nil status lists all; a
// limit <= 0 means no limit.
func (db *DB) ListSessions(ctx context.Context, status *SessionStatus, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Outcomes returns the stored outcomes of a session in execution order.
func (db *DB) Outcomes(ctx context.Context, sessionID string) ([]models.SubtaskOutcome, error) {
	rows, err := db.query(ctx, `
		SELECT subtask_id, success, skipped, corrected, correction_attempted, correction_attempts,
			score, error, reason, duration_ms
		FROM outcomes WHERE session_id = ? ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.SubtaskOutcome
	for rows.Next() {
		var (
			o                                      models.SubtaskOutcome
			success, skipped, corrected, attempted int
			score                                  sql.NullInt64
			errMsg, reason                         sql.NullString
			durationMS                             int64
		)
		if err := rows.Scan(&o.SubtaskID, &success, &skipped, &corrected, &attempted,
			&o.CorrectionAttempts, &score, &errMsg, &reason, &durationMS); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Success = success != 0
		o.Skipped = skipped != 0
		o.Corrected = corrected != 0
		o.CorrectionAttempted = attempted != 0
		if score.Valid {
			o.Score = models.IntPtr(int(score.Int64))
		}
		o.Error = errMsg.String
		o.Reason = reason.String
		o.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s         Session
		success   int
		errMsg    sql.NullString
		plan      sql.NullString
		startedAt string
		endedAt   sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Task, &s.Status, &success, &s.Total, &s.Successful, &s.Failed,
		&s.Skipped, &s.Corrected, &s.AverageScore, &errMsg, &plan, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	s.Success = success != 0
	s.Error = errMsg.String
	s.StartedAt, _ = parseTime(startedAt)
	s.EndedAt = parseNullableTime(endedAt)
	if plan.Valid && plan.String != "" {
		var p models.Plan
		if err := json.Unmarshal([]byte(plan.String), &p); err != nil {
			return nil, fmt.Errorf("decode plan of %s: %w", s.ID, err)
		}
		s.Plan = &p
	}
	return &s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
