// Package likert is a rating-scale question: each teammate gets a value on
// a fixed integer range.
package likert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/response"
)

const Type = "likert"

func init() {
	question.Register(Type, New)
}

type Config struct {
	Title       string            `json:"title" yaml:"title" validate:"required_without=Description,max=255"`
	Description string            `json:"description" yaml:"description,omitempty"`
	Min         int               `json:"min" yaml:"min" validate:"gte=0,lte=10,ltfield=Max"`
	Max         int               `json:"max" yaml:"max" validate:"gte=0,lte=10"`
	Meanings    map[string]string `json:"meanings,omitempty" yaml:"meanings,omitempty"`
	Optional    bool              `json:"optional,omitempty" yaml:"optional,omitempty"`
}

func DefaultConfig() Config { return Config{Min: 1, Max: 5} }

type Question struct {
	question.Base
	cfg Config
}

func New(env question.Env, rec question.Record) (question.Plugin, error) {
	q := &Question{Base: question.NewBase(env, rec), cfg: DefaultConfig()}
	if len(rec.Config) > 0 {
		if err := json.Unmarshal(rec.Config, &q.cfg); err != nil {
			return nil, fmt.Errorf("likert config: %w", err)
		}
	}
	return q, nil
}

func (q *Question) Type() string   { return Type }
func (q *Question) Scored() bool   { return true }
func (q *Question) Optional() bool { return q.cfg.Optional }
func (q *Question) Config() Config { return q.cfg }

func (q *Question) Title() string { return q.cfg.Title }

func (q *Question) Configure(raw json.RawMessage) error {
	cfg := DefaultConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return question.Invalid("config", err.Error())
	}
	if err := question.ValidateConfig(cfg); err != nil {
		return err
	}
	// meanings outside the range are dropped
	kept := map[string]string{}
	for k, v := range cfg.Meanings {
		n, err := strconv.Atoi(k)
		if err != nil || n < cfg.Min || n > cfg.Max || v == "" {
			continue
		}
		kept[k] = v
	}
	cfg.Meanings = kept
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
	return question.ViewDescriptor{
		Type:       Type,
		QuestionID: q.ID(),
		ReadOnly:   lock != nil,
		Locked:     lock,
		Optional:   q.cfg.Optional,
		Config:     q.cfg,
	}, nil
}

func (q *Question) SubmissionView(ctx context.Context, raterID string, targets []string) (question.ViewDescriptor, error) {
	cur, err := q.Current(ctx, raterID)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	return question.ViewDescriptor{
		Type:       Type,
		QuestionID: q.ID(),
		Optional:   q.cfg.Optional,
		Config:     q.cfg,
		Targets:    targets,
		Current:    cur,
	}, nil
}

// Submit expects {"<target>": value, ...}. Targets left out stay unmarked.
func (q *Question) Submit(ctx context.Context, raterID string, data json.RawMessage, targets []string) (bool, error) {
	if err := q.BeginSubmit(ctx, raterID); err != nil {
		return false, err
	}
	var in map[string]int
	if err := json.Unmarshal(data, &in); err != nil {
		return false, question.Invalid("marks", "expected an object of target to integer")
	}
	verr := question.CheckTargets(in, targets)
	for target, v := range in {
		if v < q.cfg.Min || v > q.cfg.Max {
			if verr == nil {
				verr = &question.ValidationError{}
			}
			verr.Add(target, fmt.Sprintf("must be between %d and %d", q.cfg.Min, q.cfg.Max))
		}
	}
	if !verr.Empty() {
		return false, verr
	}

	marks := make(map[string]response.Mark, len(in))
	for target, v := range in {
		marks[target] = response.Mark{
			Value: response.Float(float64(v)),
			Label: q.cfg.Meanings[strconv.Itoa(v)],
		}
	}
	if err := q.Record(ctx, raterID, marks); err != nil {
		return false, err
	}
	return covered(marks, targets), nil
}

func (q *Question) Complete(ctx context.Context, raterID string, targets []string) (bool, error) {
	return q.Covers(ctx, raterID, targets, hasValue)
}

// RawMarks maps each stored value onto [0,1] across the configured range.
func (q *Question) RawMarks(ctx context.Context) (question.Marks, error) {
	span := float64(q.cfg.Max - q.cfg.Min)
	return q.Normalized(ctx, func(m response.Mark) (float64, bool) {
		if m.Value == nil || span <= 0 {
			return 0, false
		}
		v := (*m.Value - float64(q.cfg.Min)) / span
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, true
	})
}

func hasValue(m response.Mark) bool { return m.Value != nil }

func covered(marks map[string]response.Mark, targets []string) bool {
	for _, t := range targets {
		if !hasValue(marks[t]) {
			return false
		}
	}
	return true
}
