package teameval

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/teameval/internal/grading"
	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/roster"
	"github.com/mind-engage/teameval/internal/scoring"
	syncx "github.com/mind-engage/teameval/internal/sync"
)

// Score computes every marking user's result. It fails when the roster is
// inconsistent.
func (s *Service) Score(ctx context.Context, evalID string) (res map[string]scoring.Result, err error) {
	ctx, span := startSpan(ctx, "teameval.Score", evalID)
	defer func() { endSpan(span, err) }()
	start := time.Now()
	defer func() { s.deps.Metrics.ObserveScoring(time.Since(start)) }()

	q, ev, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return nil, err
	}
	part, _, err := s.partition(ctx, evalID)
	if err != nil {
		return nil, err
	}
	qs, err := q.Questions(ctx)
	if err != nil {
		return nil, err
	}
	inputs, err := gather(ctx, ev, part, qs)
	if err != nil {
		return nil, err
	}
	rels, err := s.deps.Releases.List(ctx, evalID)
	if err != nil {
		return nil, err
	}

	res = scoring.Compute(scoring.Input{
		Settings: scoring.Settings{
			SelfAssessment: ev.Settings.SelfAssessment,
			AutoRelease:    ev.Settings.AutoRelease,
			Fraction:       ev.Settings.Fraction,
			PenaltyPercent: ev.Settings.PenaltyPercent,
		},
		Partition:      part,
		Questions:      inputs,
		Releases:       Collect(rels),
		DeadlinePassed: s.deadlinePassed(ev),
	})
	span.SetAttributes(attribute.Int("scoring.users", len(res)), attribute.Int("scoring.questions", len(qs)))
	return res, nil
}

// gather extracts marks and completion from each question concurrently.
func gather(ctx context.Context, ev Evaluation, part roster.Partition, qs []question.Plugin) ([]scoring.Question, error) {
	out := make([]scoring.Question, len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range qs {
		g.Go(func() error {
			sq := scoring.Question{
				ID:       p.ID(),
				Scored:   p.Scored(),
				Optional: p.Optional(),
				Answered: map[string]bool{},
			}
			if p.Scored() {
				marks, err := p.RawMarks(gctx)
				if err != nil {
					return fmt.Errorf("question %s marks: %w", p.ID(), err)
				}
				sq.Marks = marks
			}
			for _, u := range part.Users() {
				ok, err := p.Complete(gctx, u, targets(ev, part, p, u))
				if err != nil {
					return fmt.Errorf("question %s completion: %w", p.ID(), err)
				}
				sq.Answered[u] = ok
			}
			out[i] = sq
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ScoreFor returns one user's result.
func (s *Service) ScoreFor(ctx context.Context, evalID, userID string) (scoring.Result, error) {
	all, err := s.Score(ctx, evalID)
	if err != nil {
		return scoring.Result{}, err
	}
	r, ok := all[userID]
	if !ok {
		return scoring.Result{}, ErrNotMember
	}
	return r, nil
}

// Release makes marks available at the given level when auto-release is off.
func (s *Service) Release(ctx context.Context, evalID string, r Release) error {
	if err := validate.Struct(r); err != nil {
		return question.Invalid("release", err.Error())
	}
	if _, err := s.deps.Evaluations.Get(ctx, evalID); err != nil {
		return err
	}
	if r.Level == LevelAll {
		r.Target = ""
	}
	r.ReleasedAt = s.deps.Now().Unix()
	if err := s.deps.Releases.Add(ctx, evalID, r); err != nil {
		return err
	}
	s.record(ctx, syncx.TypeMarksReleased, evalID, r)
	return nil
}

func (s *Service) Releases(ctx context.Context, evalID string) ([]Release, error) {
	return s.deps.Releases.List(ctx, evalID)
}

// ResetOptions selects what ResetUserData clears.
type ResetOptions struct {
	Responses     bool `json:"responses"`
	Questionnaire bool `json:"questionnaire"`
}

// ResetUserData clears an evaluation for reuse. The questionnaire can only
// be removed together with the responses.
func (s *Service) ResetUserData(ctx context.Context, evalID string, opts ResetOptions) error {
	if opts.Questionnaire && !opts.Responses {
		return question.Invalid("questionnaire", "resetting the questionnaire requires resetting responses")
	}
	if !opts.Responses {
		return nil
	}
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return err
	}
	if err := q.Reset(ctx, opts.Questionnaire); err != nil {
		return err
	}
	if err := s.deps.Releases.DeleteAll(ctx, evalID); err != nil {
		return err
	}
	s.log.Info("evaluation reset", "evaluation", evalID, "questionnaire", opts.Questionnaire)
	s.record(ctx, syncx.TypeEvaluationReset, evalID, opts)
	return nil
}

// AdjustGrades applies peer multipliers to host grades. permitted reports
// whether the caller may change grades at all; when it is false, or the
// evaluation is disabled, the grades come back unchanged.
func (s *Service) AdjustGrades(ctx context.Context, evalID string, grades grading.Grades, item grading.GradeItem, permitted bool) (out grading.Grades, err error) {
	ctx, span := startSpan(ctx, "teameval.AdjustGrades", evalID)
	defer func() { endSpan(span, err) }()

	ev, err := s.deps.Evaluations.Get(ctx, evalID)
	if err != nil {
		return grading.Grades{}, err
	}
	if !ev.Settings.Enabled || !permitted {
		s.deps.Metrics.Grade("unchanged")
		return grades, nil
	}
	results, err := s.Score(ctx, evalID)
	if err != nil {
		return grading.Grades{}, err
	}
	feedback, err := s.feedback(ctx, evalID, results, grades)
	if err != nil {
		return grading.Grades{}, err
	}

	out = s.deps.Adjuster.UpdateGrades(grading.Snapshot{
		Enabled:   true,
		Permitted: true,
		Results:   results,
		Feedback:  feedback,
		Item:      item,
	}, grades)

	adjusted := map[string]float64{}
	for _, g := range out.All() {
		if g.RawGrade == nil {
			s.deps.Metrics.Grade("withheld")
			continue
		}
		s.deps.Metrics.Grade("adjusted")
		adjusted[g.UserID] = *g.RawGrade
	}
	s.record(ctx, syncx.TypeGradesAdjusted, evalID, map[string]int{"adjusted": len(adjusted)})
	s.publish(ctx, evalID, item, adjusted)
	return out, nil
}

// feedback collects comment feedback for users whose marks are available.
func (s *Service) feedback(ctx context.Context, evalID string, results map[string]scoring.Result, grades grading.Grades) (map[string][]grading.QuestionFeedback, error) {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return nil, err
	}
	qs, err := q.Questions(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string][]grading.QuestionFeedback{}
	for _, g := range grades.All() {
		if !results[g.UserID].MarksAvailable {
			continue
		}
		for _, p := range qs {
			fp, ok := p.(question.FeedbackProvider)
			if !ok {
				continue
			}
			comments, err := fp.Feedback(ctx, g.UserID)
			if err != nil {
				return nil, fmt.Errorf("question %s feedback: %w", p.ID(), err)
			}
			if len(comments) == 0 {
				continue
			}
			qf := grading.QuestionFeedback{Comments: comments}
			if t, ok := p.(question.Titled); ok {
				qf.Title = t.Title()
			}
			out[g.UserID] = append(out[g.UserID], qf)
		}
	}
	return out, nil
}

// publish pushes adjusted grades to the gradebook sink. Failures are logged;
// the host already holds the adjusted grades.
func (s *Service) publish(ctx context.Context, evalID string, item grading.GradeItem, scores map[string]float64) {
	if s.deps.Sink == nil || len(scores) == 0 {
		return
	}
	scoreMax := item.Max
	if scoreMax <= 0 {
		scoreMax = 100
	}
	if err := s.deps.Sink.SyncGrades(ctx, evalID, scoreMax, scores); err != nil {
		s.deps.Metrics.GradeSync("failed")
		s.log.Error("grade sync failed", "evaluation", evalID, "err", err)
		return
	}
	s.deps.Metrics.GradeSync("ok")
}
