package outcome

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// #endregion imports

// #region store

// SQLiteLedger persists outcome samples in the outcome_samples table.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates the outcome_samples table if needed and returns a ledger.
func NewSQLiteLedger(db *sql.DB) (*SQLiteLedger, error) {
	s := &SQLiteLedger{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteLedger) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS outcome_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		topics TEXT NOT NULL DEFAULT '[]',
		likes INTEGER NOT NULL,
		replies INTEGER NOT NULL,
		retweets INTEGER NOT NULL,
		score REAL NOT NULL,
		evaluated INTEGER NOT NULL DEFAULT 0,
		observed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outcome_samples_user ON outcome_samples(user_id, id);`)
	if err != nil {
		return fmt.Errorf("create outcome_samples table: %w", err)
	}
	return nil
}

// Add stores a sample and returns it with its assigned ID.
func (s *SQLiteLedger) Add(ctx context.Context, sample Sample) (Sample, error) {
	topics, err := json.Marshal(sample.Topics)
	if err != nil {
		return Sample{}, fmt.Errorf("marshal topics: %w", err)
	}
	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = time.Now().UTC()
	}
	if sample.PostID != "" {
		var id int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM outcome_samples WHERE user_id = ? AND post_id = ? AND evaluated = 0 ORDER BY id LIMIT 1`,
			sample.UserID, sample.PostID).Scan(&id)
		switch {
		case err == nil:
			_, err = s.db.ExecContext(ctx,
				`UPDATE outcome_samples SET topics = ?, likes = ?, replies = ?, retweets = ?, score = ?, observed_at = ? WHERE id = ?`,
				string(topics), sample.Likes, sample.Replies, sample.Retweets, sample.Score,
				sample.ObservedAt.UTC().Format(time.RFC3339Nano), id)
			if err != nil {
				return Sample{}, fmt.Errorf("refresh outcome sample: %w", err)
			}
			sample.ID = id
			return sample, nil
		case !errors.Is(err, sql.ErrNoRows):
			return Sample{}, fmt.Errorf("find pending outcome sample: %w", err)
		}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outcome_samples (user_id, post_id, topics, likes, replies, retweets, score, evaluated, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.UserID, sample.PostID, string(topics), sample.Likes, sample.Replies, sample.Retweets,
		sample.Score, sample.Evaluated, sample.ObservedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Sample{}, fmt.Errorf("insert outcome sample: %w", err)
	}
	sample.ID, err = res.LastInsertId()
	if err != nil {
		return Sample{}, fmt.Errorf("outcome sample id: %w", err)
	}
	return sample, nil
}

// Samples returns the user's samples, oldest first.
func (s *SQLiteLedger) Samples(ctx context.Context, userID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, post_id, topics, likes, replies, retweets, score, evaluated, observed_at
		 FROM outcome_samples WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query outcome samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var smp Sample
		var topics, observedAt string
		if err := rows.Scan(&smp.ID, &smp.UserID, &smp.PostID, &topics, &smp.Likes, &smp.Replies,
			&smp.Retweets, &smp.Score, &smp.Evaluated, &observedAt); err != nil {
			return nil, fmt.Errorf("scan outcome sample: %w", err)
		}
		if err := json.Unmarshal([]byte(topics), &smp.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
		smp.ObservedAt, _ = time.Parse(time.RFC3339Nano, observedAt)
		out = append(out, smp)
	}
	return out, rows.Err()
}

// MarkEvaluated flags samples as consumed.
func (s *SQLiteLedger) MarkEvaluated(ctx context.Context, userID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := s.db.ExecContext(ctx,
		`UPDATE outcome_samples SET evaluated = 1 WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("mark outcome samples: %w", err)
	}
	return nil
}

// #endregion store
