package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS feedback_decisions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      TEXT NOT NULL,
	event_id     TEXT,
	kind         TEXT NOT NULL,
	target_field TEXT,
	direction    REAL NOT NULL,
	confidence   REAL NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT,
	version      INTEGER NOT NULL,
	record_id    TEXT,
	event_json   TEXT,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_decisions_user ON feedback_decisions(user_id, id);
`

// #endregion schema

// #region decision-log
// DecisionLog writes and reads feedback decisions in SQLite.
type DecisionLog struct {
	db *sql.DB
}

// NewDecisionLog creates the feedback_decisions table if needed.
func NewDecisionLog(db *sql.DB) (*DecisionLog, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create feedback_decisions table: %w", err)
	}
	return &DecisionLog{db: db}, nil
}

// LogDecision writes one entry.
func (l *DecisionLog) LogDecision(ctx context.Context, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO feedback_decisions (user_id, event_id, kind, target_field, direction, confidence, decision, reason, version, record_id, event_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID,
		nullIfEmpty(entry.EventID),
		entry.Kind,
		nullIfEmpty(entry.TargetField),
		entry.Direction,
		entry.Confidence,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.Version,
		nullIfEmpty(entry.RecordID),
		nullIfEmpty(entry.EventJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// ListDecisions returns matching entries in insertion order. With a limit, the
// most recent entries are returned.
func (l *DecisionLog) ListDecisions(ctx context.Context, f Filter) ([]DecisionEntry, error) {
	query := `SELECT id, user_id, COALESCE(event_id, ''), kind, COALESCE(target_field, ''), direction, confidence,
		decision, COALESCE(reason, ''), version, COALESCE(record_id, ''), COALESCE(event_json, ''), created_at
		FROM feedback_decisions WHERE user_id = ?`
	args := []any{f.UserID}
	if f.Decision != "" {
		query += " AND decision = ?"
		args = append(args, f.Decision)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query = "SELECT * FROM (" + query + " ORDER BY id DESC LIMIT ?) ORDER BY id"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventID, &e.Kind, &e.TargetField, &e.Direction, &e.Confidence,
			&e.Decision, &e.Reason, &e.Version, &e.RecordID, &e.EventJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion decision-log

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
