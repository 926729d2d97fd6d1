package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region types

// Kind is a completed action class counted against daily targets.
type Kind string

const (
	KindPost   Kind = "post"
	KindReply  Kind = "reply"
	KindLike   Kind = "like"
	KindFollow Kind = "follow"
)

// Valid reports whether k is a tracked action.
func (k Kind) Valid() bool {
	switch k {
	case KindPost, KindReply, KindLike, KindFollow:
		return true
	}
	return false
}

// Record is one completed action.
type Record struct {
	ID        int64
	UserID    string
	Kind      Kind
	Ref       string // post or account the action touched
	Timestamp time.Time
}

// Counts tallies records per kind.
type Counts map[Kind]int

// Total sums every kind.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// #endregion types

// #region store

// timeLayout sorts lexically, so range queries can compare strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store manages the activity log in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the activity_log table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		ref TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_user_time ON activity_log(user_id, created_at);`)
	if err != nil {
		return nil, fmt.Errorf("create activity_log table: %w", err)
	}
	return &Store{db: db}, nil
}

// Add records a completed action. A zero timestamp means now.
func (s *Store) Add(ctx context.Context, r Record) (Record, error) {
	if !r.Kind.Valid() {
		return Record{}, fmt.Errorf("unknown activity kind %q", r.Kind)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO activity_log (user_id, kind, ref, created_at) VALUES (?, ?, ?, ?)",
		r.UserID, string(r.Kind), r.Ref, r.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert activity: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("activity id: %w", err)
	}
	return r, nil
}

// Since returns the user's records at or after t, oldest first.
func (s *Store) Since(ctx context.Context, userID string, t time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, kind, COALESCE(ref, ''), created_at FROM activity_log WHERE user_id = ? AND created_at >= ? ORDER BY created_at, id",
		userID, t.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var kind, ts string
		if err := rows.Scan(&r.ID, &r.UserID, &kind, &r.Ref, &ts); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		r.Kind = Kind(kind)
		r.Timestamp, _ = time.Parse(timeLayout, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion store

// #region count

// CountOn tallies records falling on the same UTC calendar day as day.
func CountOn(records []Record, day time.Time) Counts {
	y, m, d := day.UTC().Date()
	c := Counts{}
	for _, r := range records {
		ry, rm, rd := r.Timestamp.UTC().Date()
		if ry == y && rm == m && rd == d {
			c[r.Kind]++
		}
	}
	return c
}

// CountBetween tallies records in [from, to).
func CountBetween(records []Record, from, to time.Time) Counts {
	c := Counts{}
	for _, r := range records {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			c[r.Kind]++
		}
	}
	return c
}

// #endregion count
