// Package split asks each rater to divide 100 points among the whole team,
// themselves included.
package split

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/response"
)

const (
	Type  = "split"
	Total = 100.0
)

func init() {
	question.Register(Type, New)
}

type Config struct {
	Title       string `json:"title" yaml:"title" validate:"required_without=Description,max=255"`
	Description string `json:"description" yaml:"description,omitempty"`
}

type Question struct {
	question.Base
	cfg Config
}

func New(env question.Env, rec question.Record) (question.Plugin, error) {
	q := &Question{Base: question.NewBase(env, rec)}
	if len(rec.Config) > 0 {
		if err := json.Unmarshal(rec.Config, &q.cfg); err != nil {
			return nil, fmt.Errorf("split config: %w", err)
		}
	}
	return q, nil
}

func (q *Question) Type() string       { return Type }
func (q *Question) Scored() bool       { return true }
func (q *Question) Optional() bool     { return false }
func (q *Question) RequiresSelf() bool { return true }
func (q *Question) Title() string      { return q.cfg.Title }

func (q *Question) Configure(raw json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return question.Invalid("config", err.Error())
	}
	if err := question.ValidateConfig(cfg); err != nil {
		return err
	}
	q.cfg = cfg
	return nil
}

func (q *Question) Save(ctx context.Context, ordinal int) (string, error) {
	if err := question.ValidateConfig(q.cfg); err != nil {
		return "", err
	}
	return q.Persist(ctx, Type, ordinal, q.cfg)
}

func (q *Question) EditingView(ctx context.Context) (question.ViewDescriptor, error) {
	lock, err := q.EditLock(ctx)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	return question.ViewDescriptor{Type: Type, QuestionID: q.ID(), ReadOnly: lock != nil, Locked: lock, Config: q.cfg}, nil
}

func (q *Question) SubmissionView(ctx context.Context, raterID string, targets []string) (question.ViewDescriptor, error) {
	cur, err := q.Current(ctx, raterID)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	return question.ViewDescriptor{Type: Type, QuestionID: q.ID(), Config: q.cfg, Targets: targets, Current: cur}, nil
}

// Submit expects {"<target>": points, ...} covering every target and
// totalling 100.
func (q *Question) Submit(ctx context.Context, raterID string, data json.RawMessage, targets []string) (bool, error) {
	if err := q.BeginSubmit(ctx, raterID); err != nil {
		return false, err
	}
	var in map[string]float64
	if err := json.Unmarshal(data, &in); err != nil {
		return false, question.Invalid("points", "expected an object of target to number")
	}
	verr := question.CheckTargets(in, targets)
	if verr == nil {
		verr = &question.ValidationError{}
	}
	sum := 0.0
	for target, v := range in {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			verr.Add(target, "must be a non-negative number")
		}
		sum += v
	}
	for _, t := range targets {
		if _, ok := in[t]; !ok {
			verr.Add(t, "missing")
		}
	}
	if math.Abs(sum-Total) > 0.01 {
		verr.Add("total", fmt.Sprintf("points must add up to %.0f, got %.2f", Total, sum))
	}
	if !verr.Empty() {
		return false, verr
	}

	marks := make(map[string]response.Mark, len(in))
	for target, v := range in {
		marks[target] = response.Mark{Value: response.Float(v)}
	}
	if err := q.Record(ctx, raterID, marks); err != nil {
		return false, err
	}
	return true, nil
}

func (q *Question) Complete(ctx context.Context, raterID string, targets []string) (bool, error) {
	return q.Covers(ctx, raterID, targets, func(m response.Mark) bool { return m.Value != nil })
}

func (q *Question) RawMarks(ctx context.Context) (question.Marks, error) {
	return q.Normalized(ctx, func(m response.Mark) (float64, bool) {
		if m.Value == nil {
			return 0, false
		}
		return math.Min(math.Max(*m.Value/Total, 0), 1), true
	})
}
