// Package syncx keeps an append-only log of evaluation events.
package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"
)

const (
	TypeSettingsChanged   = "SettingsChanged"
	TypeQuestionsChanged  = "QuestionsChanged"
	TypeResponseSubmitted = "ResponseSubmitted"
	TypeResponsesReset    = "ResponsesReset"
	TypeMarksReleased     = "MarksReleased"
	TypeCommentReviewed   = "CommentReviewed"
	TypeEvaluationReset   = "EvaluationReset"
	TypeGradesAdjusted    = "GradesAdjusted"
)

type Event struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"type"`
	Key       string `json:"key"` // evaluation id
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// Log appends and reads events.
type Log interface {
	Append(ctx context.Context, e Event) error
	Since(ctx context.Context, key string, afterSeq int64, limit int) ([]Event, error)
}

// Recorder stamps events with a site id and JSON-encodes payloads.
type Recorder struct {
	Log    Log
	SiteID string
}

func (r Recorder) Record(ctx context.Context, typ, key string, data any) error {
	if r.Log == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	site := r.SiteID
	if site == "" {
		site = "local"
	}
	return r.Log.Append(ctx, Event{SiteID: site, Type: typ, Key: key, DataJSON: string(b)})
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, e.CreatedAt)
	return err
}

func (r *EventRepo) Since(ctx context.Context, key string, afterSeq int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE key=$1 AND seq>$2 ORDER BY seq LIMIT $3`, key, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryLog) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Seq = int64(len(m.events) + 1)
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryLog) Since(_ context.Context, key string, afterSeq int64, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Event{}
	for _, e := range m.events {
		if e.Key == key && e.Seq > afterSeq {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
