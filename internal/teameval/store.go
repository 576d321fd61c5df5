package teameval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("evaluation not found")

// Evaluation is one deployment of a questionnaire on a host activity.
type Evaluation struct {
	ID       string   `json:"id"`
	Settings Settings `json:"settings"`
	// MinimumDeadline is supplied by the host; the deadline may not precede it.
	MinimumDeadline *time.Time `json:"minimum_deadline,omitempty"`
	CreatedAt       int64      `json:"created_at"`
	UpdatedAt       int64      `json:"updated_at"`
}

type Store interface {
	Get(ctx context.Context, id string) (Evaluation, error)
	Put(ctx context.Context, ev Evaluation) error
	Delete(ctx context.Context, id string) error
	ListPublic(ctx context.Context) ([]Evaluation, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	evals map[string]Evaluation
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{evals: map[string]Evaluation{}} }

func (m *MemoryStore) Get(_ context.Context, id string) (Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.evals[id]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	return ev, nil
}

func (m *MemoryStore) Put(_ context.Context, ev Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals[ev.ID] = ev
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.evals, id)
	return nil
}

func (m *MemoryStore) ListPublic(_ context.Context) ([]Evaluation, error) {
	m.mu.RLock()
	out := []Evaluation{}
	for _, ev := range m.evals {
		if ev.Settings.Public {
			out = append(out, ev)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
