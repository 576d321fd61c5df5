package teameval

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mind-engage/teameval/internal/scoring"
)

// Level is the scope of a release action.
type Level string

const (
	LevelAll   Level = "all"
	LevelGroup Level = "group"
	LevelUser  Level = "user"
)

type Release struct {
	Level      Level  `json:"level" validate:"required,oneof=all group user"`
	Target     string `json:"target,omitempty" validate:"required_unless=Level all"`
	ReleasedAt int64  `json:"released_at"`
}

type ReleaseStore interface {
	Add(ctx context.Context, evalID string, r Release) error
	List(ctx context.Context, evalID string) ([]Release, error)
	DeleteAll(ctx context.Context, evalID string) error
}

// Collect folds release rows into the form scoring consumes.
func Collect(rs []Release) scoring.Releases {
	out := scoring.Releases{Groups: map[string]bool{}, Users: map[string]bool{}}
	for _, r := range rs {
		switch r.Level {
		case LevelAll:
			out.All = true
		case LevelGroup:
			out.Groups[r.Target] = true
		case LevelUser:
			out.Users[r.Target] = true
		}
	}
	return out
}

type MemoryReleases struct {
	mu   sync.RWMutex
	rows map[string][]Release
}

func NewMemoryReleases() *MemoryReleases { return &MemoryReleases{rows: map[string][]Release{}} }

func (m *MemoryReleases) Add(_ context.Context, evalID string, r Release) error {
	if r.ReleasedAt == 0 {
		r.ReleasedAt = time.Now().Unix()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.rows[evalID] {
		if x.Level == r.Level && x.Target == r.Target {
			m.rows[evalID][i] = r
			return nil
		}
	}
	m.rows[evalID] = append(m.rows[evalID], r)
	return nil
}

func (m *MemoryReleases) List(_ context.Context, evalID string) ([]Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Release(nil), m.rows[evalID]...), nil
}

func (m *MemoryReleases) DeleteAll(_ context.Context, evalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, evalID)
	return nil
}

type SQLReleases struct {
	db *sql.DB
}

func NewSQLReleases(db *sql.DB) *SQLReleases { return &SQLReleases{db: db} }

func (s *SQLReleases) Add(ctx context.Context, evalID string, r Release) error {
	if r.ReleasedAt == 0 {
		r.ReleasedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO releases (eval_id, level, target, released_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (eval_id, level, target) DO UPDATE SET released_at=EXCLUDED.released_at`,
		evalID, string(r.Level), r.Target, r.ReleasedAt)
	if err != nil {
		return fmt.Errorf("release %s/%s: %w", r.Level, r.Target, err)
	}
	return nil
}

func (s *SQLReleases) List(ctx context.Context, evalID string) ([]Release, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, target, released_at FROM releases WHERE eval_id=$1 ORDER BY released_at, level, target`, evalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Release
	for rows.Next() {
		var r Release
		var lvl string
		if err := rows.Scan(&lvl, &r.Target, &r.ReleasedAt); err != nil {
			return nil, err
		}
		r.Level = Level(lvl)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLReleases) DeleteAll(ctx context.Context, evalID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM releases WHERE eval_id=$1`, evalID)
	return err
}
