package teameval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Get(ctx context.Context, id string) (Evaluation, error) {
	var (
		settings string
		minDL    sql.NullInt64
		ev       = Evaluation{ID: id}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT settings_json, minimum_deadline, created_at, updated_at FROM evaluations WHERE id=$1`, id).
		Scan(&settings, &minDL, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	if err != nil {
		return Evaluation{}, err
	}
	if err := json.Unmarshal([]byte(settings), &ev.Settings); err != nil {
		return Evaluation{}, err
	}
	if minDL.Valid {
		t := time.Unix(minDL.Int64, 0).UTC()
		ev.MinimumDeadline = &t
	}
	return ev, nil
}

func (s *SQLStore) Put(ctx context.Context, ev Evaluation) error {
	b, err := json.Marshal(ev.Settings)
	if err != nil {
		return err
	}
	var minDL sql.NullInt64
	if ev.MinimumDeadline != nil {
		minDL = sql.NullInt64{Int64: ev.MinimumDeadline.Unix(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (id, settings_json, minimum_deadline, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
		  settings_json=EXCLUDED.settings_json,
		  minimum_deadline=EXCLUDED.minimum_deadline,
		  updated_at=EXCLUDED.updated_at`,
		ev.ID, string(b), minDL, ev.CreatedAt, ev.UpdatedAt)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM evaluations WHERE id=$1`, id)
	return err
}

// ListPublic scans every evaluation; the public flag lives in settings_json.
func (s *SQLStore) ListPublic(ctx context.Context) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM evaluations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []Evaluation{}
	for _, id := range ids {
		ev, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ev.Settings.Public {
			out = append(out, ev)
		}
	}
	return out, nil
}
