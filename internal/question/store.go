package question

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Record is the persisted author-side state of one question. Config is
// opaque to everything but the question type.
type Record struct {
	ID           string          `json:"id"`
	EvaluationID string          `json:"evaluation_id"`
	Type         string          `json:"type"`
	Ordinal      int             `json:"ordinal"`
	Config       json.RawMessage `json:"config"`
	UpdatedAt    int64           `json:"updated_at"`
}

type Store interface {
	Put(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns the evaluation's questions in ordinal order.
	List(ctx context.Context, evaluationID string) ([]Record, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, evaluationID string) error
	// Reorder assigns ordinal i to ids[i].
	Reorder(ctx context.Context, evaluationID string, ids []string) error
}

type Memory struct {
	mu   sync.RWMutex
	recs map[string]Record
}

func NewMemory() *Memory { return &Memory{recs: map[string]Record{}} }

func (m *Memory) Put(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Config = append(json.RawMessage(nil), r.Config...)
	m.recs[r.ID] = r
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) List(_ context.Context, evaluationID string) ([]Record, error) {
	m.mu.RLock()
	out := []Record{}
	for _, r := range m.recs {
		if r.EvaluationID == evaluationID {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *Memory) DeleteAll(_ context.Context, evaluationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.recs {
		if r.EvaluationID == evaluationID {
			delete(m.recs, id)
		}
	}
	return nil
}

func (m *Memory) Reorder(_ context.Context, evaluationID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		r, ok := m.recs[id]
		if !ok || r.EvaluationID != evaluationID {
			return ErrNotFound
		}
		r.Ordinal = i
		m.recs[id] = r
	}
	return nil
}

func sortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Ordinal != rs[j].Ordinal {
			return rs[i].Ordinal < rs[j].Ordinal
		}
		return rs[i].ID < rs[j].ID
	})
}
