package response

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

func (s *SQLStore) Put(ctx context.Context, r Response) error {
	stamp(&r)
	marks, err := json.Marshal(r.Marks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (eval_id, question_id, rater_id, marks_json, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (question_id, rater_id) DO UPDATE SET
		  eval_id=EXCLUDED.eval_id,
		  marks_json=EXCLUDED.marks_json,
		  updated_at=EXCLUDED.updated_at
	`, r.EvaluationID, r.QuestionID, r.RaterID, string(marks), r.UpdatedAt)
	return err
}

func (s *SQLStore) Get(ctx context.Context, questionID, raterID string) (Response, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT eval_id, question_id, rater_id, marks_json, updated_at
		FROM responses WHERE question_id=$1 AND rater_id=$2
	`, questionID, raterID)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, ErrNotFound
	}
	return r, err
}

func (s *SQLStore) ListByQuestion(ctx context.Context, questionID string) ([]Response, error) {
	return s.list(ctx, `
		SELECT eval_id, question_id, rater_id, marks_json, updated_at
		FROM responses WHERE question_id=$1 ORDER BY rater_id
	`, questionID)
}

func (s *SQLStore) ListByRater(ctx context.Context, evaluationID, raterID string) ([]Response, error) {
	return s.list(ctx, `
		SELECT eval_id, question_id, rater_id, marks_json, updated_at
		FROM responses WHERE eval_id=$1 AND rater_id=$2 ORDER BY question_id
	`, evaluationID, raterID)
}

func (s *SQLStore) HasAny(ctx context.Context, evaluationID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM responses WHERE eval_id=$1 LIMIT 1`, evaluationID)
}

func (s *SQLStore) HasAnyForQuestion(ctx context.Context, questionID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM responses WHERE question_id=$1 LIMIT 1`, questionID)
}

func (s *SQLStore) ClearForQuestion(ctx context.Context, questionID, raterID string) error {
	now := time.Now().Unix()
	if raterID == "" {
		_, err := s.db.ExecContext(ctx,
			`UPDATE responses SET marks_json='{}', updated_at=$2 WHERE question_id=$1`, questionID, now)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE responses SET marks_json='{}', updated_at=$3 WHERE question_id=$1 AND rater_id=$2`,
		questionID, raterID, now)
	return err
}

func (s *SQLStore) DeleteAll(ctx context.Context, evaluationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE eval_id=$1`, evaluationID)
	return err
}

func (s *SQLStore) exists(ctx context.Context, q string, arg string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) list(ctx context.Context, q string, args ...any) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanResponse(sc scanner) (Response, error) {
	var (
		r     Response
		marks string
	)
	if err := sc.Scan(&r.EvaluationID, &r.QuestionID, &r.RaterID, &marks, &r.UpdatedAt); err != nil {
		return Response{}, err
	}
	r.Marks = map[string]Mark{}
	if marks != "" {
		if err := json.Unmarshal([]byte(marks), &r.Marks); err != nil {
			return Response{}, err
		}
	}
	return r, nil
}
