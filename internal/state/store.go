package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS persona_states (
	user_id      TEXT PRIMARY KEY,
	version      INTEGER NOT NULL,
	state_json   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS update_records (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	version      INTEGER NOT NULL,
	field_path   TEXT NOT NULL,
	old_value    TEXT NOT NULL,
	new_value    TEXT NOT NULL,
	delta        REAL NOT NULL DEFAULT 0,
	kind         TEXT NOT NULL,
	event_id     TEXT,
	rationale    TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES persona_states(user_id)
);

CREATE INDEX IF NOT EXISTS idx_update_records_user_version ON update_records(user_id, version);
`

// #endregion schema

// #region store-struct
// Store persists persona snapshots and their update records in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region load
// Load reads the committed snapshot for userID with its full history.
// A user with no row yields a NOT_FOUND error.
func (s *Store) Load(ctx context.Context, userID string) (PersonaState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM persona_states WHERE user_id = ?`, userID,
	).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return PersonaState{}, apperrors.NotFound("persona " + userID)
	}
	if err != nil {
		return PersonaState{}, fmt.Errorf("load state %s: %w", userID, err)
	}

	var st PersonaState
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return PersonaState{}, fmt.Errorf("unmarshal state %s: %w", userID, err)
	}
	if st.TopicAffinity == nil {
		st.TopicAffinity = map[string]float64{}
	}

	hist, err := s.History(ctx, userID, 0)
	if err != nil {
		return PersonaState{}, err
	}
	st.History = hist
	return st, nil
}

// #endregion load

// #region create
// Create inserts the initial snapshot for a user. It fails if the user exists.
func (s *Store) Create(ctx context.Context, st PersonaState) error {
	stateJSON, err := marshalSnapshot(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO persona_states (user_id, version, state_json, updated_at) VALUES (?, ?, ?, ?)`,
		st.UserID, st.Version, stateJSON, st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert state %s: %w", st.UserID, err)
	}
	return nil
}

// #endregion create

// #region commit
// Commit writes next and its records in one transaction. The stored version must
// equal next.Version - len(records); a user with no row is inserted when that
// expected version is 0.
func (s *Store) Commit(ctx context.Context, next PersonaState, records []UpdateRecord) error {
	stateJSON, err := marshalSnapshot(next)
	if err != nil {
		return err
	}
	prev := next.Version - int64(len(records))
	updated := next.UpdatedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE persona_states SET version = ?, state_json = ?, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		next.Version, stateJSON, updated, next.UserID, prev,
	)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if prev != 0 {
			return fmt.Errorf("version conflict for %s: expected stored version %d", next.UserID, prev)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO persona_states (user_id, version, state_json, updated_at) VALUES (?, ?, ?, ?)`,
			next.UserID, next.Version, stateJSON, updated,
		)
		if err != nil {
			return fmt.Errorf("insert state: %w", err)
		}
	}

	for _, r := range records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO update_records (id, user_id, version, field_path, old_value, new_value, delta, kind, event_id, rationale, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, next.UserID, r.Version, r.FieldPath, r.OldValue, r.NewValue, r.Delta,
			string(r.Kind), nullIfEmpty(r.EventID), r.Rationale, r.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert record v%d: %w", r.Version, err)
		}
	}

	return tx.Commit()
}

// #endregion commit

// #region history
// History returns the most recent limit records in version order. limit <= 0 returns all.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]UpdateRecord, error) {
	q := `SELECT id, version, field_path, old_value, new_value, delta, kind, event_id, rationale, created_at
		 FROM (SELECT * FROM update_records WHERE user_id = ? ORDER BY version DESC LIMIT ?)
		 ORDER BY version ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []UpdateRecord
	for rows.Next() {
		var r UpdateRecord
		var kind, created string
		var eventID sql.NullString
		if err := rows.Scan(&r.ID, &r.Version, &r.FieldPath, &r.OldValue, &r.NewValue, &r.Delta,
			&kind, &eventID, &r.Rationale, &created); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Kind = FeedbackKind(kind)
		if eventID.Valid {
			r.EventID = eventID.String
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion history

// #region prune
// PruneHistory deletes records outside the keepRecent most recent ones. With
// keepOutcome set, outcome-derived records are kept regardless of age.
// The snapshot is untouched: current state never depends on history.
func (s *Store) PruneHistory(ctx context.Context, userID string, keepRecent int, keepOutcome bool) (int64, error) {
	if keepRecent < 0 {
		keepRecent = 0
	}
	q := `DELETE FROM update_records
		 WHERE user_id = ?
		   AND id NOT IN (SELECT id FROM update_records WHERE user_id = ? ORDER BY version DESC LIMIT ?)`
	args := []any{userID, userID, keepRecent}
	if keepOutcome {
		q += ` AND kind != ?`
		args = append(args, string(KindOutcome))
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// #endregion prune

// #region list-users
// ListUsers returns every user with a stored snapshot.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM persona_states ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion list-users

// #region helpers
// marshalSnapshot encodes st without its history, which lives in update_records.
func marshalSnapshot(st PersonaState) (string, error) {
	st.History = nil
	b, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(b), nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
