package question

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mind-engage/teameval/internal/db"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Put(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, eval_id, type, ordinal, config_json, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
		  type=EXCLUDED.type,
		  ordinal=EXCLUDED.ordinal,
		  config_json=EXCLUDED.config_json,
		  updated_at=EXCLUDED.updated_at
	`, r.ID, r.EvaluationID, r.Type, r.Ordinal, string(r.Config), r.UpdatedAt)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	var (
		r   Record
		cfg string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, eval_id, type, ordinal, config_json, updated_at FROM questions WHERE id=$1
	`, id).Scan(&r.ID, &r.EvaluationID, &r.Type, &r.Ordinal, &cfg, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	r.Config = []byte(cfg)
	return r, nil
}

func (s *SQLStore) List(ctx context.Context, evaluationID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, eval_id, type, ordinal, config_json, updated_at
		FROM questions WHERE eval_id=$1 ORDER BY ordinal, id
	`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		var (
			r   Record
			cfg string
		)
		if err := rows.Scan(&r.ID, &r.EvaluationID, &r.Type, &r.Ordinal, &cfg, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Config = []byte(cfg)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteAll(ctx context.Context, evaluationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE eval_id=$1`, evaluationID)
	return err
}

func (s *SQLStore) Reorder(ctx context.Context, evaluationID string, ids []string) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for i, id := range ids {
			res, err := tx.ExecContext(ctx, `UPDATE questions SET ordinal=$1 WHERE id=$2 AND eval_id=$3`, i, id, evaluationID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}
