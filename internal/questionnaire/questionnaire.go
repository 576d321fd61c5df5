// Package questionnaire holds an evaluation's ordered questions and the lock
// that protects them once they have been seen or answered.
package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mind-engage/teameval/internal/locker"
	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/response"
	"github.com/mind-engage/teameval/internal/roster"
)

var ErrQuestionIDsOutOfSync = errors.New("question ids out of sync")

// WindowFunc reports why raterID may not submit right now, or nil.
type WindowFunc func(ctx context.Context, raterID string) error

type Deps struct {
	Configs   question.Store
	Responses response.Store
	Host      roster.Host
	Locker    locker.Locker
	Window    WindowFunc
	Logger    *slog.Logger
}

type Questionnaire struct {
	evalID string
	deps   Deps
	log    *slog.Logger
}

func New(evalID string, deps Deps) *Questionnaire {
	if deps.Locker == nil {
		deps.Locker = locker.NewMemory()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Questionnaire{evalID: evalID, deps: deps, log: log.With("evaluation", evalID)}
}

func (q *Questionnaire) EvaluationID() string { return q.evalID }

// LockState is recomputed on every call from response occupancy and host
// visibility.
func (q *Questionnaire) LockState(ctx context.Context) (question.LockState, error) {
	marked, err := q.deps.Responses.HasAny(ctx, q.evalID)
	if err != nil {
		return question.Open, fmt.Errorf("response occupancy: %w", err)
	}
	if marked {
		return question.LockedMarked, nil
	}
	if q.deps.Host == nil {
		return question.Open, nil
	}
	visible, err := roster.AnyMarkingUserCanSee(ctx, q.deps.Host)
	if err != nil {
		return question.Open, fmt.Errorf("host visibility: %w", err)
	}
	return question.ComputeLockState(false, visible), nil
}

// CheckSubmission applies the evaluation's submission window. The lock state
// does not close submissions.
func (q *Questionnaire) CheckSubmission(ctx context.Context, raterID string) error {
	if q.deps.Window == nil {
		return nil
	}
	return q.deps.Window(ctx, raterID)
}

func (q *Questionnaire) env() question.Env {
	return question.Env{
		EvaluationID: q.evalID,
		Configs:      q.deps.Configs,
		Responses:    q.deps.Responses,
		Guard:        q,
	}
}

// Questions returns plugin instances in ordinal order.
func (q *Questionnaire) Questions(ctx context.Context) ([]question.Plugin, error) {
	recs, err := q.deps.Configs.List(ctx, q.evalID)
	if err != nil {
		return nil, err
	}
	out := make([]question.Plugin, 0, len(recs))
	for _, rec := range recs {
		p, err := question.New(q.env(), rec)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", rec.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (q *Questionnaire) Question(ctx context.Context, id string) (question.Plugin, error) {
	rec, err := q.deps.Configs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.EvaluationID != q.evalID {
		return nil, question.ErrNotFound
	}
	return question.New(q.env(), rec)
}

// EditingViews renders every question for the author.
func (q *Questionnaire) EditingViews(ctx context.Context) ([]question.ViewDescriptor, error) {
	qs, err := q.Questions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]question.ViewDescriptor, 0, len(qs))
	for _, p := range qs {
		v, err := p.EditingView(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// exclusive runs fn while holding the questionnaire lock, so a structural
// edit and a submission never interleave.
func (q *Questionnaire) exclusive(ctx context.Context, fn func() error) error {
	unlock, err := q.deps.Locker.Lock(ctx, "questionnaire:"+q.evalID)
	if err != nil {
		return fmt.Errorf("questionnaire lock: %w", err)
	}
	defer unlock()
	return fn()
}

func (q *Questionnaire) requireOpen(ctx context.Context, op string) error {
	state, err := q.LockState(ctx)
	if err != nil {
		return err
	}
	if state != question.Open {
		q.log.Info("structural edit rejected", "op", op, "state", state.String())
		return &question.StructuralEditError{State: state}
	}
	return nil
}

// Add creates a question of type typ at the end of the questionnaire.
func (q *Questionnaire) Add(ctx context.Context, typ string, cfg json.RawMessage) (question.Plugin, error) {
	var p question.Plugin
	err := q.exclusive(ctx, func() error {
		var err error
		p, err = q.addLocked(ctx, typ, cfg)
		return err
	})
	return p, err
}

func (q *Questionnaire) addLocked(ctx context.Context, typ string, cfg json.RawMessage) (question.Plugin, error) {
	if err := q.requireOpen(ctx, "add"); err != nil {
		return nil, err
	}
	p, err := question.New(q.env(), question.Record{Type: typ})
	if err != nil {
		return nil, err
	}
	if err := p.Configure(cfg); err != nil {
		return nil, err
	}
	next, err := q.nextOrdinal(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := p.Save(ctx, next); err != nil {
		return nil, err
	}
	return p, nil
}

func (q *Questionnaire) nextOrdinal(ctx context.Context) (int, error) {
	existing, err := q.deps.Configs.List(ctx, q.evalID)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, r := range existing {
		if r.Ordinal >= next {
			next = r.Ordinal + 1
		}
	}
	return next, nil
}

// Update replaces the configuration of question id.
func (q *Questionnaire) Update(ctx context.Context, id string, cfg json.RawMessage) (question.Plugin, error) {
	var p question.Plugin
	err := q.exclusive(ctx, func() error {
		var err error
		if p, err = q.Question(ctx, id); err != nil {
			return err
		}
		if err := q.requireOpen(ctx, "update"); err != nil {
			return err
		}
		if err := p.Configure(cfg); err != nil {
			return err
		}
		_, err = p.Save(ctx, p.Ordinal())
		return err
	})
	return p, err
}

func (q *Questionnaire) Delete(ctx context.Context, id string) error {
	return q.exclusive(ctx, func() error {
		p, err := q.Question(ctx, id)
		if err != nil {
			return err
		}
		if err := p.Delete(ctx); err != nil {
			q.log.Info("delete rejected", "question", id, "err", err)
			return err
		}
		return nil
	})
}

// Reorder sets the question order. ids must name exactly the existing
// questions.
func (q *Questionnaire) Reorder(ctx context.Context, ids []string) error {
	return q.exclusive(ctx, func() error {
		if err := q.requireOpen(ctx, "reorder"); err != nil {
			return err
		}
		recs, err := q.deps.Configs.List(ctx, q.evalID)
		if err != nil {
			return err
		}
		if len(recs) != len(ids) {
			return ErrQuestionIDsOutOfSync
		}
		have := make(map[string]bool, len(recs))
		for _, r := range recs {
			have[r.ID] = true
		}
		for _, id := range ids {
			if !have[id] {
				return ErrQuestionIDsOutOfSync
			}
			delete(have, id)
		}
		return q.deps.Configs.Reorder(ctx, q.evalID, ids)
	})
}

// Submit records raterID's answer to question id. It is permitted in every
// lock state; only the submission window can refuse it.
func (q *Questionnaire) Submit(ctx context.Context, raterID, id string, data json.RawMessage, targets []string) (bool, error) {
	var complete bool
	err := q.exclusive(ctx, func() error {
		p, err := q.Question(ctx, id)
		if err != nil {
			return err
		}
		complete, err = p.Submit(ctx, raterID, data, targets)
		return err
	})
	return complete, err
}

// ResetResponses clears raterID's own responses on every question.
func (q *Questionnaire) ResetResponses(ctx context.Context, raterID string) error {
	return q.exclusive(ctx, func() error {
		qs, err := q.Questions(ctx)
		if err != nil {
			return err
		}
		for _, p := range qs {
			if err := p.ResetResponses(ctx, raterID); err != nil {
				return err
			}
		}
		return nil
	})
}

type reviewer interface {
	SetRejected(ctx context.Context, raterID, targetID string, rejected bool) error
}

// Review hides or restores the mark raterID left for targetID on question id.
// It holds the same lock as Submit, so a resubmission is never overwritten
// with a stale copy.
func (q *Questionnaire) Review(ctx context.Context, id, raterID, targetID string, rejected bool) error {
	return q.exclusive(ctx, func() error {
		p, err := q.Question(ctx, id)
		if err != nil {
			return err
		}
		rv, ok := p.(reviewer)
		if !ok {
			return question.Invalid("question", "question type "+p.Type()+" has no reviewable comments")
		}
		return rv.SetRejected(ctx, raterID, targetID, rejected)
	})
}

// Reset deletes every response and, when questions is set, every question.
// It is the explicit takeback for a whole evaluation and ignores the lock.
func (q *Questionnaire) Reset(ctx context.Context, questions bool) error {
	return q.exclusive(ctx, func() error {
		if err := q.deps.Responses.DeleteAll(ctx, q.evalID); err != nil {
			return err
		}
		if questions {
			return q.deps.Configs.DeleteAll(ctx, q.evalID)
		}
		return nil
	})
}
