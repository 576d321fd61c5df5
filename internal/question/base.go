package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/teameval/internal/response"
)

// Base carries the lifecycle shared by every question type:
// Unsaved -> Saved(Open) -> Saved(Locked), delete only from Saved(Open).
// Types embed it and supply their own configuration and mark shapes.
type Base struct {
	env Env
	rec Record
}

func NewBase(env Env, rec Record) Base {
	if rec.EvaluationID == "" {
		rec.EvaluationID = env.EvaluationID
	}
	return Base{env: env, rec: rec}
}

func (b *Base) ID() string           { return b.rec.ID }
func (b *Base) Ordinal() int         { return b.rec.Ordinal }
func (b *Base) Saved() bool          { return b.rec.ID != "" }
func (b *Base) EvaluationID() string { return b.rec.EvaluationID }

// Stored returns the persisted record.
func (b *Base) Stored() Record { return b.rec }

// Lock reports the owning questionnaire's lock state. No guard means Open.
func (b *Base) Lock(ctx context.Context) (LockState, error) {
	if b.env.Guard == nil {
		return Open, nil
	}
	return b.env.Guard.LockState(ctx)
}

// EditLock is nil while the question may be edited.
func (b *Base) EditLock(ctx context.Context) (*LockInfo, error) {
	state, err := b.Lock(ctx)
	if err != nil {
		return nil, err
	}
	if state == Open {
		return nil, nil
	}
	e := &StructuralEditError{State: state}
	return &LockInfo{State: state, Reason: e.Reason(), Hint: e.Hint()}, nil
}

// Persist writes cfg at ordinal, assigning an ID on first save.
func (b *Base) Persist(ctx context.Context, typ string, ordinal int, cfg any) (string, error) {
	state, err := b.Lock(ctx)
	if err != nil {
		return "", err
	}
	if state != Open {
		return "", &StructuralEditError{State: state}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode %s config: %w", typ, err)
	}
	rec := b.rec
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Type = typ
	rec.Ordinal = ordinal
	rec.Config = raw
	rec.UpdatedAt = time.Now().Unix()
	if err := b.env.Configs.Put(ctx, rec); err != nil {
		return "", err
	}
	b.rec = rec
	return rec.ID, nil
}

func (b *Base) Delete(ctx context.Context) error {
	if !b.Saved() {
		return nil
	}
	state, err := b.Lock(ctx)
	if err != nil {
		return err
	}
	has, err := b.env.Responses.HasAnyForQuestion(ctx, b.rec.ID)
	if err != nil {
		return err
	}
	if state != Open {
		return &StructuralEditError{State: state, QuestionHasResponses: has}
	}
	if has {
		return ErrHasResponses
	}
	if err := b.env.Configs.Delete(ctx, b.rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	b.rec.ID = ""
	return nil
}

// ResetResponses empties raterID's marks. The response row stays, so a
// marked questionnaire remains locked.
func (b *Base) ResetResponses(ctx context.Context, raterID string) error {
	if !b.Saved() {
		return nil
	}
	return b.env.Responses.ClearForQuestion(ctx, b.rec.ID, raterID)
}

// BeginSubmit checks the submission window for raterID.
func (b *Base) BeginSubmit(ctx context.Context, raterID string) error {
	if !b.Saved() {
		return ErrUnsaved
	}
	if b.env.Guard == nil {
		return nil
	}
	return b.env.Guard.CheckSubmission(ctx, raterID)
}

// Record stores raterID's marks, replacing any earlier response.
func (b *Base) Record(ctx context.Context, raterID string, marks map[string]response.Mark) error {
	return b.env.Responses.Put(ctx, response.Response{
		EvaluationID: b.rec.EvaluationID,
		QuestionID:   b.rec.ID,
		RaterID:      raterID,
		Marks:        marks,
		UpdatedAt:    time.Now().Unix(),
	})
}

// Current returns raterID's stored marks, empty when there are none.
func (b *Base) Current(ctx context.Context, raterID string) (map[string]response.Mark, error) {
	if !b.Saved() {
		return map[string]response.Mark{}, nil
	}
	r, err := b.env.Responses.Get(ctx, b.rec.ID, raterID)
	if errors.Is(err, response.ErrNotFound) {
		return map[string]response.Mark{}, nil
	}
	if err != nil {
		return nil, err
	}
	return r.Marks, nil
}

// Responses lists every rater's response to this question.
func (b *Base) Responses(ctx context.Context) ([]response.Response, error) {
	if !b.Saved() {
		return nil, nil
	}
	return b.env.Responses.ListByQuestion(ctx, b.rec.ID)
}

// Covers reports whether raterID has a mark accepted by ok for every target.
func (b *Base) Covers(ctx context.Context, raterID string, targets []string, ok func(response.Mark) bool) (bool, error) {
	cur, err := b.Current(ctx, raterID)
	if err != nil {
		return false, err
	}
	return covers(cur, targets, ok), nil
}

// Normalized collects marks through norm, which maps a stored mark to [0,1].
func (b *Base) Normalized(ctx context.Context, norm func(response.Mark) (float64, bool)) (Marks, error) {
	rs, err := b.Responses(ctx)
	if err != nil {
		return nil, err
	}
	out := Marks{}
	for _, r := range rs {
		for target, m := range r.Marks {
			v, ok := norm(m)
			if !ok {
				continue
			}
			if out[r.RaterID] == nil {
				out[r.RaterID] = map[string]float64{}
			}
			out[r.RaterID][target] = v
		}
	}
	return out, nil
}

// CheckTargets rejects marks addressed to users outside targets.
func CheckTargets[V any](data map[string]V, targets []string) *ValidationError {
	allowed := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		allowed[t] = struct{}{}
	}
	var verr *ValidationError
	for t := range data {
		if _, ok := allowed[t]; !ok {
			if verr == nil {
				verr = &ValidationError{}
			}
			verr.Add(t, "not a member of your group")
		}
	}
	return verr
}

func covers(marks map[string]response.Mark, targets []string, ok func(response.Mark) bool) bool {
	for _, t := range targets {
		m, found := marks[t]
		if !found || !ok(m) {
			return false
		}
	}
	return true
}
