package teameval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/roster"
	syncx "github.com/mind-engage/teameval/internal/sync"
)

// partition resolves the roster of evalID. Inconsistent rosters are counted
// and logged before the error is returned.
func (s *Service) partition(ctx context.Context, evalID string) (roster.Partition, roster.Diagnostics, error) {
	host := s.host(evalID)
	if host == nil {
		return roster.Partition{}, roster.Diagnostics{}, fmt.Errorf("%w: no host roster", roster.ErrInconsistent)
	}
	p, d, err := roster.Resolve(ctx, host)
	if err != nil {
		s.deps.Metrics.RosterFailure()
		s.log.Warn("roster unusable", "evaluation", evalID, "err", err)
	}
	return p, d, err
}

// targets lists whom raterID marks on p: their teammates, less themselves
// unless self-assessment is on or the type always asks for it.
func targets(ev Evaluation, part roster.Partition, p question.Plugin, raterID string) []string {
	mates := part.Teammates(raterID)
	self := ev.Settings.SelfAssessment
	if sr, ok := p.(question.SelfRequirer); ok && sr.RequiresSelf() {
		self = true
	}
	if self {
		return mates
	}
	out := make([]string, 0, len(mates))
	for _, u := range mates {
		if u != raterID {
			out = append(out, u)
		}
	}
	return out
}

// Submit records raterID's answer to question qid.
func (s *Service) Submit(ctx context.Context, evalID, raterID, qid string, data json.RawMessage) (complete bool, err error) {
	ctx, span := startSpan(ctx, "teameval.Submit", evalID)
	span.SetAttributes(attribute.String("question.id", qid))
	defer func() { endSpan(span, err) }()

	q, ev, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return false, err
	}
	part, _, err := s.partition(ctx, evalID)
	if err != nil {
		return false, err
	}
	if _, ok := part.GroupOf(raterID); !ok {
		return false, ErrNotMember
	}
	p, err := q.Question(ctx, qid)
	if err != nil {
		return false, err
	}

	complete, err = q.Submit(ctx, raterID, qid, data, targets(ev, part, p, raterID))
	s.deps.Metrics.Submission(p.Type(), outcome(err))
	if err != nil {
		s.log.Info("submission refused", "evaluation", evalID, "question", qid, "rater", raterID, "err", err)
		return false, err
	}
	s.record(ctx, syncx.TypeResponseSubmitted, evalID, map[string]any{
		"question": qid, "rater": raterID, "complete": complete,
	})
	return complete, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, question.ErrSubmissionClosed):
		return "closed"
	case errors.Is(err, question.ErrValidation):
		return "invalid"
	}
	return "error"
}

// SubmissionView renders question qid for raterID.
func (s *Service) SubmissionView(ctx context.Context, evalID, raterID, qid string) (question.ViewDescriptor, error) {
	q, ev, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	part, _, err := s.partition(ctx, evalID)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	if _, ok := part.GroupOf(raterID); !ok {
		return question.ViewDescriptor{}, ErrNotMember
	}
	p, err := q.Question(ctx, qid)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	return p.SubmissionView(ctx, raterID, targets(ev, part, p, raterID))
}

// Form renders every question for raterID, in order.
func (s *Service) Form(ctx context.Context, evalID, raterID string) ([]question.ViewDescriptor, error) {
	q, ev, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return nil, err
	}
	part, _, err := s.partition(ctx, evalID)
	if err != nil {
		return nil, err
	}
	if _, ok := part.GroupOf(raterID); !ok {
		return nil, ErrNotMember
	}
	qs, err := q.Questions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]question.ViewDescriptor, 0, len(qs))
	for _, p := range qs {
		v, err := p.SubmissionView(ctx, raterID, targets(ev, part, p, raterID))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ResetOwn clears raterID's responses. It is allowed until the deadline.
func (s *Service) ResetOwn(ctx context.Context, evalID, raterID string) error {
	q, ev, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return err
	}
	if s.deadlinePassed(ev) {
		return &question.SubmissionClosedError{Reason: "the deadline has passed"}
	}
	if err := q.ResetResponses(ctx, raterID); err != nil {
		return err
	}
	s.record(ctx, syncx.TypeResponsesReset, evalID, map[string]string{"rater": raterID})
	return nil
}

// ReviewComment hides or restores one comment mark from grade feedback.
func (s *Service) ReviewComment(ctx context.Context, evalID, qid, raterID, targetID string, rejected bool) error {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return err
	}
	if err := q.Review(ctx, qid, raterID, targetID, rejected); err != nil {
		return err
	}
	s.record(ctx, syncx.TypeCommentReviewed, evalID, map[string]any{
		"question": qid, "rater": raterID, "target": targetID, "rejected": rejected,
	})
	return nil
}

// RosterCheck reports roster diagnostics. An inconsistent roster is a
// result here, not an error.
func (s *Service) RosterCheck(ctx context.Context, evalID string) (roster.Diagnostics, error) {
	if _, err := s.deps.Evaluations.Get(ctx, evalID); err != nil {
		return roster.Diagnostics{}, err
	}
	host := s.host(evalID)
	if host == nil {
		return roster.Diagnostics{}, fmt.Errorf("%w: no host roster", roster.ErrInconsistent)
	}
	_, d, err := roster.Resolve(ctx, host)
	if err != nil && !errors.Is(err, roster.ErrInconsistent) {
		return roster.Diagnostics{}, err
	}
	return d, nil
}
