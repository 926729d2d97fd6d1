package outcome

import (
	"context"
	"sync"
)

// MemoryLedger keeps samples in process memory. Used by tests and replay.
type MemoryLedger struct {
	mu      sync.Mutex
	nextID  int64
	samples map[string][]Sample
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{samples: map[string][]Sample{}}
}

func (m *MemoryLedger) Add(_ context.Context, s Sample) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Topics = append([]string(nil), s.Topics...)
	list := m.samples[s.UserID]
	if s.PostID != "" {
		for i := range list {
			if list[i].PostID == s.PostID && !list[i].Evaluated {
				s.ID = list[i].ID
				list[i] = s
				return s, nil
			}
		}
	}
	m.nextID++
	s.ID = m.nextID
	m.samples[s.UserID] = append(list, s)
	return s, nil
}

func (m *MemoryLedger) Samples(_ context.Context, userID string) ([]Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples[userID]...), nil
}

func (m *MemoryLedger) MarkEvaluated(_ context.Context, userID string, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	list := m.samples[userID]
	for i := range list {
		if set[list[i].ID] {
			list[i].Evaluated = true
		}
	}
	return nil
}
