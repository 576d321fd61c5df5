// Package comment is a free-text question. It never contributes to the
// multiplier; its text becomes feedback for the target user.
package comment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/response"
)

const (
	Type     = "comment"
	MaxRunes = 4000
)

func init() {
	question.Register(Type, New)
}

type Config struct {
	Title       string `json:"title" yaml:"title" validate:"required_without=Description,max=255"`
	Description string `json:"description" yaml:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

type Question struct {
	question.Base
	cfg Config
}

func New(env question.Env, rec question.Record) (question.Plugin, error) {
	q := &Question{Base: question.NewBase(env, rec)}
	if len(rec.Config) > 0 {
		if err := json.Unmarshal(rec.Config, &q.cfg); err != nil {
			return nil, fmt.Errorf("comment config: %w", err)
		}
	}
	return q, nil
}

func (q *Question) Type() string   { return Type }
func (q *Question) Scored() bool   { return false }
func (q *Question) Optional() bool { return q.cfg.Optional }
func (q *Question) Title() string  { return q.cfg.Title }

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
	return question.ViewDescriptor{
		Type: Type, QuestionID: q.ID(), ReadOnly: lock != nil, Locked: lock,
		Optional: q.cfg.Optional, Config: q.cfg,
	}, nil
}

func (q *Question) SubmissionView(ctx context.Context, raterID string, targets []string) (question.ViewDescriptor, error) {
	cur, err := q.Current(ctx, raterID)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	return question.ViewDescriptor{
		Type: Type, QuestionID: q.ID(), Optional: q.cfg.Optional, Config: q.cfg,
		Targets: targets, Current: cur,
	}, nil
}

// Submit expects {"<target>": "text", ...}. Blank text leaves the target
// without a comment.
func (q *Question) Submit(ctx context.Context, raterID string, data json.RawMessage, targets []string) (bool, error) {
	if err := q.BeginSubmit(ctx, raterID); err != nil {
		return false, err
	}
	var in map[string]string
	if err := json.Unmarshal(data, &in); err != nil {
		return false, question.Invalid("comments", "expected an object of target to text")
	}
	verr := question.CheckTargets(in, targets)
	marks := make(map[string]response.Mark, len(in))
	for target, text := range in {
		text = Clean(text)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > MaxRunes {
			if verr == nil {
				verr = &question.ValidationError{}
			}
			verr.Add(target, fmt.Sprintf("comment is longer than %d characters", MaxRunes))
			continue
		}
		marks[target] = response.Mark{Text: text}
	}
	if !verr.Empty() {
		return false, verr
	}
	if err := q.Record(ctx, raterID, marks); err != nil {
		return false, err
	}
	for _, t := range targets {
		if !hasText(marks[t]) {
			return false, nil
		}
	}
	return true, nil
}

func (q *Question) Complete(ctx context.Context, raterID string, targets []string) (bool, error) {
	return q.Covers(ctx, raterID, targets, hasText)
}

func (q *Question) RawMarks(context.Context) (question.Marks, error) { return question.Marks{}, nil }

// Feedback returns the comments other raters left for targetID, skipping
// those a reviewer rejected.
func (q *Question) Feedback(ctx context.Context, targetID string) ([]string, error) {
	rs, err := q.Responses(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rs {
		if r.RaterID == targetID {
			continue
		}
		if m, ok := r.Marks[targetID]; ok && hasText(m) && !m.Rejected {
			out = append(out, m.Text)
		}
	}
	return out, nil
}

// SetRejected hides or restores one comment in feedback. It does not reopen
// submission and is not a structural edit.
func (q *Question) SetRejected(ctx context.Context, raterID, targetID string, rejected bool) error {
	cur, err := q.Current(ctx, raterID)
	if err != nil {
		return err
	}
	m, ok := cur[targetID]
	if !ok {
		return response.ErrNotFound
	}
	m.Rejected = rejected
	cur[targetID] = m
	return q.Record(ctx, raterID, cur)
}

// Clean normalizes to NFC and trims surrounding space.
func Clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func hasText(m response.Mark) bool { return m.Text != "" }
