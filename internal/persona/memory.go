package persona

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/state"
)

// MemoryRepository keeps snapshots in process memory. Replay and tests use it.
type MemoryRepository struct {
	mu      sync.Mutex
	states  map[string]state.PersonaState
	records map[string][]state.UpdateRecord
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		states:  map[string]state.PersonaState{},
		records: map[string][]state.UpdateRecord{},
	}
}

func (m *MemoryRepository) Load(_ context.Context, userID string) (state.PersonaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok {
		return state.PersonaState{}, apperrors.NotFound("persona state for " + userID)
	}
	out := st.Clone()
	out.History = append([]state.UpdateRecord(nil), m.records[userID]...)
	return out, nil
}

func (m *MemoryRepository) Create(_ context.Context, st state.PersonaState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[st.UserID]; ok {
		return fmt.Errorf("state for %s already exists", st.UserID)
	}
	snap := st.Clone()
	snap.History = nil
	m.states[st.UserID] = snap
	return nil
}

func (m *MemoryRepository) Commit(_ context.Context, next state.PersonaState, records []state.UpdateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := next.Version - int64(len(records))
	if cur, ok := m.states[next.UserID]; (ok && cur.Version != prev) || (!ok && prev != 0) {
		return fmt.Errorf("version conflict for %s: expected stored version %d", next.UserID, prev)
	}
	snap := next.Clone()
	snap.History = nil
	m.states[next.UserID] = snap
	m.records[next.UserID] = append(m.records[next.UserID], records...)
	return nil
}

func (m *MemoryRepository) History(_ context.Context, userID string, limit int) ([]state.UpdateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[userID]
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return append([]state.UpdateRecord(nil), recs...), nil
}

func (m *MemoryRepository) PruneHistory(_ context.Context, userID string, keepRecent int, keepOutcome bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[userID]
	cut := len(recs) - keepRecent
	if cut < 0 {
		cut = 0
	}
	var kept []state.UpdateRecord
	for i, r := range recs {
		if i >= cut || keepOutcome && r.Kind == state.KindOutcome {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Version < kept[j].Version })
	m.records[userID] = kept
	return int64(len(recs) - len(kept)), nil
}
