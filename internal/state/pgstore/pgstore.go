// Package pgstore keeps persona snapshots and update records in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type personaStateModel struct {
	UserID    string `gorm:"primaryKey"`
	Version   int64  `gorm:"not null"`
	StateJSON string `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (personaStateModel) TableName() string {
	return "persona_states"
}

type updateRecordModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index:idx_update_records_user_version,priority:1;not null"`
	Version   int64  `gorm:"index:idx_update_records_user_version,priority:2;not null"`
	FieldPath string `gorm:"not null"`
	OldValue  string `gorm:"not null"`
	NewValue  string `gorm:"not null"`
	Delta     float64
	Kind      string `gorm:"not null"`
	EventID   string
	Rationale string `gorm:"not null"`
	CreatedAt time.Time
}

func (updateRecordModel) TableName() string {
	return "update_records"
}

// Store is a Postgres-backed persona repository.
type Store struct {
	db *gorm.DB
}

// Open connects to databaseURL, pings it and migrates the tables.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&personaStateModel{}, &updateRecordModel{}); err != nil {
		return fmt.Errorf("failed to migrate persona tables: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}

// Load returns the snapshot with its full history.
func (s *Store) Load(ctx context.Context, userID string) (state.PersonaState, error) {
	var m personaStateModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return state.PersonaState{}, apperrors.NotFound("persona state for " + userID)
	}
	if err != nil {
		return state.PersonaState{}, fmt.Errorf("failed to load state %s: %w", userID, err)
	}
	st, err := stateFromModel(m)
	if err != nil {
		return state.PersonaState{}, err
	}
	st.History, err = s.History(ctx, userID, 0)
	if err != nil {
		return state.PersonaState{}, err
	}
	return st, nil
}

// Create inserts the initial snapshot.
func (s *Store) Create(ctx context.Context, st state.PersonaState) error {
	m, err := modelFromState(st)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to insert state %s: %w", st.UserID, err)
	}
	return nil
}

// Commit writes next and its records in one transaction, guarded by the
// previous version.
func (s *Store) Commit(ctx context.Context, next state.PersonaState, records []state.UpdateRecord) error {
	m, err := modelFromState(next)
	if err != nil {
		return err
	}
	prev := next.Version - int64(len(records))

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&personaStateModel{}).
			Where("user_id = ? AND version = ?", next.UserID, prev).
			Updates(map[string]any{"version": m.Version, "state_json": m.StateJSON, "updated_at": m.UpdatedAt})
		if res.Error != nil {
			return fmt.Errorf("failed to update state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			if prev != 0 {
				return fmt.Errorf("version conflict for %s: expected stored version %d", next.UserID, prev)
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("failed to insert state: %w", err)
			}
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]updateRecordModel, 0, len(records))
		for _, r := range records {
			rows = append(rows, recordModel(next.UserID, r))
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert records: %w", err)
		}
		return nil
	})
}

// History returns the most recent limit records in version order. limit <= 0 returns all.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]state.UpdateRecord, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []updateRecordModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	out := make([]state.UpdateRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, recordFromModel(rows[i]))
	}
	return out, nil
}

// PruneHistory deletes records outside the keepRecent most recent ones, keeping
// outcome-derived records when keepOutcome is set.
func (s *Store) PruneHistory(ctx context.Context, userID string, keepRecent int, keepOutcome bool) (int64, error) {
	if keepRecent < 0 {
		keepRecent = 0
	}
	recent := s.db.Model(&updateRecordModel{}).Select("id").
		Where("user_id = ?", userID).Order("version DESC").Limit(keepRecent)
	q := s.db.WithContext(ctx).Where("user_id = ? AND id NOT IN (?)", userID, recent)
	if keepRecent == 0 {
		q = s.db.WithContext(ctx).Where("user_id = ?", userID)
	}
	if keepOutcome {
		q = q.Where("kind <> ?", string(state.KindOutcome))
	}
	res := q.Delete(&updateRecordModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// #region mapping
func modelFromState(st state.PersonaState) (personaStateModel, error) {
	st.History = nil
	b, err := json.Marshal(st)
	if err != nil {
		return personaStateModel{}, fmt.Errorf("failed to marshal state: %w", err)
	}
	return personaStateModel{
		UserID:    st.UserID,
		Version:   st.Version,
		StateJSON: string(b),
		UpdatedAt: st.UpdatedAt.UTC(),
	}, nil
}

func stateFromModel(m personaStateModel) (state.PersonaState, error) {
	var st state.PersonaState
	if err := json.Unmarshal([]byte(m.StateJSON), &st); err != nil {
		return state.PersonaState{}, fmt.Errorf("failed to unmarshal state %s: %w", m.UserID, err)
	}
	st.UserID = m.UserID
	st.Version = m.Version
	return st, nil
}

func recordModel(userID string, r state.UpdateRecord) updateRecordModel {
	return updateRecordModel{
		ID:        r.ID,
		UserID:    userID,
		Version:   r.Version,
		FieldPath: r.FieldPath,
		OldValue:  r.OldValue,
		NewValue:  r.NewValue,
		Delta:     r.Delta,
		Kind:      string(r.Kind),
		EventID:   r.EventID,
		Rationale: r.Rationale,
		CreatedAt: r.Timestamp.UTC(),
	}
}

func recordFromModel(m updateRecordModel) state.UpdateRecord {
	return state.UpdateRecord{
		ID:        m.ID,
		Version:   m.Version,
		Timestamp: m.CreatedAt.UTC(),
		FieldPath: m.FieldPath,
		OldValue:  m.OldValue,
		NewValue:  m.NewValue,
		Delta:     m.Delta,
		Kind:      state.FeedbackKind(m.Kind),
		EventID:   m.EventID,
		Rationale: m.Rationale,
	}
}

// #endregion mapping
