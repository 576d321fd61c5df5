package response

import (
	"context"
	"sort"
	"sync"
	"time"
)

type key struct{ question, rater string }

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	rows map[key]Response
}

func NewMemory() *Memory { return &Memory{rows: map[key]Response{}} }

func (m *Memory) Put(_ context.Context, r Response) error {
	stamp(&r)
	r.Marks = cloneMarks(r.Marks)
	m.mu.Lock()
	m.rows[key{r.QuestionID, r.RaterID}] = r
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, questionID, raterID string) (Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[key{questionID, raterID}]
	if !ok {
		return Response{}, ErrNotFound
	}
	r.Marks = cloneMarks(r.Marks)
	return r, nil
}

func (m *Memory) ListByQuestion(_ context.Context, questionID string) ([]Response, error) {
	return m.list(func(r Response) bool { return r.QuestionID == questionID }), nil
}

func (m *Memory) ListByRater(_ context.Context, evaluationID, raterID string) ([]Response, error) {
	return m.list(func(r Response) bool { return r.EvaluationID == evaluationID && r.RaterID == raterID }), nil
}

func (m *Memory) HasAny(_ context.Context, evaluationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		if r.EvaluationID == evaluationID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HasAnyForQuestion(_ context.Context, questionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k := range m.rows {
		if k.question == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ClearForQuestion(_ context.Context, questionID, raterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	for k, r := range m.rows {
		if k.question == questionID && (raterID == "" || k.rater == raterID) {
			r.Marks = map[string]Mark{}
			r.UpdatedAt = now
			m.rows[k] = r
		}
	}
	return nil
}

func (m *Memory) DeleteAll(_ context.Context, evaluationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.rows {
		if r.EvaluationID == evaluationID {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *Memory) list(keep func(Response) bool) []Response {
	m.mu.RLock()
	out := []Response{}
	for _, r := range m.rows {
		if keep(r) {
			r.Marks = cloneMarks(r.Marks)
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		return out[i].RaterID < out[j].RaterID
	})
	return out
}

func cloneMarks(in map[string]Mark) map[string]Mark {
	out := make(map[string]Mark, len(in))
	for k, v := range in {
		if v.Value != nil {
			v.Value = Float(*v.Value)
		}
		out[k] = v
	}
	return out
}
