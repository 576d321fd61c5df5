package response

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("response not found")

// Mark is one rater's value for one target. Scoring plugins fill Value,
// rating plugins may also keep the chosen Label, free-text plugins fill Text.
type Mark struct {
	Value    *float64 `json:"value,omitempty"`
	Label    string   `json:"label,omitempty"`
	Text     string   `json:"text,omitempty"`
	Rejected bool     `json:"rejected,omitempty"` // excluded from feedback by a reviewer
}

// Response is one rater's answer to one question, keyed by target user.
// The last write per (question, rater) wins.
type Response struct {
	EvaluationID string          `json:"evaluation_id"`
	QuestionID   string          `json:"question_id"`
	RaterID      string          `json:"rater_id"`
	Marks        map[string]Mark `json:"marks"`
	UpdatedAt    int64           `json:"updated_at"`
}

// Store records raw marks. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, r Response) error
	Get(ctx context.Context, questionID, raterID string) (Response, error)
	ListByQuestion(ctx context.Context, questionID string) ([]Response, error)
	ListByRater(ctx context.Context, evaluationID, raterID string) ([]Response, error)
	HasAny(ctx context.Context, evaluationID string) (bool, error)
	HasAnyForQuestion(ctx context.Context, questionID string) (bool, error)
	// ClearForQuestion empties the marks on one question but keeps the rows,
	// so occupancy is unchanged. raterID "" clears all raters.
	ClearForQuestion(ctx context.Context, questionID, raterID string) error
	DeleteAll(ctx context.Context, evaluationID string) error
}

func Float(v float64) *float64 { return &v }

func stamp(r *Response) {
	if r.UpdatedAt == 0 {
		r.UpdatedAt = time.Now().Unix()
	}
	if r.Marks == nil {
		r.Marks = map[string]Mark{}
	}
}
