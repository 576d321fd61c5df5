// Package teameval binds a questionnaire, the host roster and scoring into
// one evaluation attached to a graded activity.
package teameval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mind-engage/teameval/internal/grading"
	"github.com/mind-engage/teameval/internal/locker"
	"github.com/mind-engage/teameval/internal/metrics"
	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/questionnaire"
	"github.com/mind-engage/teameval/internal/response"
	"github.com/mind-engage/teameval/internal/roster"
	"github.com/mind-engage/teameval/internal/storage"
	syncx "github.com/mind-engage/teameval/internal/sync"
)

var (
	ErrNotMember = errors.New("user is not a member of a marked group")
	ErrNotPublic = errors.New("evaluation is not shared as a template")
)

var tracer = otel.Tracer("github.com/mind-engage/teameval/internal/teameval")

// Hosts yields the host roster of an evaluation.
type Hosts interface {
	Host(evalID string) roster.Host
}

// HostFunc adapts a function to Hosts.
type HostFunc func(evalID string) roster.Host

func (f HostFunc) Host(evalID string) roster.Host { return f(evalID) }

// GradeSink receives adjusted grades that are ready to publish.
type GradeSink interface {
	SyncGrades(ctx context.Context, evalID string, scoreMax float64, scores map[string]float64) error
}

type Deps struct {
	Evaluations Store
	Configs     question.Store
	Responses   response.Store
	Releases    ReleaseStore
	Hosts       Hosts
	Locker      locker.Locker
	Blobs       storage.BlobStore
	Events      syncx.Recorder
	Metrics     *metrics.Metrics
	Adjuster    grading.Adjuster
	Sink        GradeSink
	Logger      *slog.Logger
	Now         func() time.Time
}

type Service struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Service {
	if deps.Evaluations == nil {
		deps.Evaluations = NewMemoryStore()
	}
	if deps.Configs == nil {
		deps.Configs = question.NewMemory()
	}
	if deps.Responses == nil {
		deps.Responses = response.NewMemory()
	}
	if deps.Releases == nil {
		deps.Releases = NewMemoryReleases()
	}
	if deps.Locker == nil {
		deps.Locker = locker.NewMemory()
	}
	if deps.Blobs == nil {
		deps.Blobs = storage.NewMemStore()
	}
	if deps.Adjuster == nil {
		deps.Adjuster = grading.NewAdjuster()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{deps: deps, log: log}
}

func (s *Service) Get(ctx context.Context, id string) (Evaluation, error) {
	return s.deps.Evaluations.Get(ctx, id)
}

// UpdateSettings creates the evaluation on first use.
func (s *Service) UpdateSettings(ctx context.Context, id string, settings Settings) (Evaluation, error) {
	now := s.deps.Now().Unix()
	ev, err := s.deps.Evaluations.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		ev = Evaluation{ID: id, CreatedAt: now}
	case err != nil:
		return Evaluation{}, err
	}
	if err := settings.Validate(ev.MinimumDeadline); err != nil {
		return Evaluation{}, err
	}
	ev.Settings = settings
	ev.UpdatedAt = now
	if err := s.deps.Evaluations.Put(ctx, ev); err != nil {
		return Evaluation{}, err
	}
	s.record(ctx, syncx.TypeSettingsChanged, id, settings)
	return ev, nil
}

// SetMinimumDeadline records the host's earliest permitted deadline. An
// existing deadline before it is rejected.
func (s *Service) SetMinimumDeadline(ctx context.Context, id string, minDeadline *time.Time) (Evaluation, error) {
	ev, err := s.deps.Evaluations.Get(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if err := ev.Settings.Validate(minDeadline); err != nil {
		return Evaluation{}, err
	}
	ev.MinimumDeadline = minDeadline
	ev.UpdatedAt = s.deps.Now().Unix()
	return ev, s.deps.Evaluations.Put(ctx, ev)
}

func (s *Service) host(evalID string) roster.Host {
	if s.deps.Hosts == nil {
		return nil
	}
	return s.deps.Hosts.Host(evalID)
}

// Questionnaire returns the evaluation's questionnaire with its submission
// window bound.
func (s *Service) Questionnaire(ctx context.Context, evalID string) (*questionnaire.Questionnaire, Evaluation, error) {
	ev, err := s.deps.Evaluations.Get(ctx, evalID)
	if err != nil {
		return nil, Evaluation{}, err
	}
	host := s.host(evalID)
	return questionnaire.New(evalID, questionnaire.Deps{
		Configs:   s.deps.Configs,
		Responses: s.deps.Responses,
		Host:      host,
		Locker:    s.deps.Locker,
		Window:    s.window(ev, host),
		Logger:    s.log,
	}), ev, nil
}

func (s *Service) window(ev Evaluation, host roster.Host) questionnaire.WindowFunc {
	return func(ctx context.Context, raterID string) error {
		now := s.deps.Now()
		switch {
		case !ev.Settings.Enabled:
			return &question.SubmissionClosedError{Reason: "team evaluation is disabled"}
		case ev.MinimumDeadline != nil && now.Before(*ev.MinimumDeadline):
			return &question.SubmissionClosedError{Reason: "team evaluation has not opened yet"}
		case s.deadlinePassed(ev):
			return &question.SubmissionClosedError{Reason: "the deadline has passed"}
		}
		if host != nil {
			visible, err := host.IsVisibleTo(ctx, raterID)
			if err != nil {
				return fmt.Errorf("host visibility: %w", err)
			}
			if !visible {
				return &question.SubmissionClosedError{Reason: "the activity is not visible to you"}
			}
		}
		return nil
	}
}

func (s *Service) deadlinePassed(ev Evaluation) bool {
	return ev.Settings.Deadline != nil && s.deps.Now().After(*ev.Settings.Deadline)
}

// EditorView is the author's view of a questionnaire.
type EditorView struct {
	State     question.LockState        `json:"state"`
	Reason    string                    `json:"reason,omitempty"`
	Hint      string                    `json:"hint,omitempty"`
	Questions []question.ViewDescriptor `json:"questions"`
}

func (s *Service) Editor(ctx context.Context, evalID string) (EditorView, error) {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return EditorView{}, err
	}
	state, err := q.LockState(ctx)
	if err != nil {
		return EditorView{}, err
	}
	views, err := q.EditingViews(ctx)
	if err != nil {
		return EditorView{}, err
	}
	out := EditorView{State: state, Questions: views}
	if state != question.Open {
		se := &question.StructuralEditError{State: state}
		out.Reason, out.Hint = se.Reason(), se.Hint()
	}
	return out, nil
}

func (s *Service) AddQuestion(ctx context.Context, evalID, typ string, cfg json.RawMessage) (question.ViewDescriptor, error) {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	p, err := q.Add(ctx, typ, cfg)
	if err != nil {
		return question.ViewDescriptor{}, s.editFailed(err)
	}
	s.record(ctx, syncx.TypeQuestionsChanged, evalID, map[string]string{"op": "add", "question": p.ID()})
	return p.EditingView(ctx)
}

func (s *Service) UpdateQuestion(ctx context.Context, evalID, qid string, cfg json.RawMessage) (question.ViewDescriptor, error) {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return question.ViewDescriptor{}, err
	}
	p, err := q.Update(ctx, qid, cfg)
	if err != nil {
		return question.ViewDescriptor{}, s.editFailed(err)
	}
	s.record(ctx, syncx.TypeQuestionsChanged, evalID, map[string]string{"op": "update", "question": qid})
	return p.EditingView(ctx)
}

func (s *Service) DeleteQuestion(ctx context.Context, evalID, qid string) error {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return err
	}
	if err := q.Delete(ctx, qid); err != nil {
		return s.editFailed(err)
	}
	s.record(ctx, syncx.TypeQuestionsChanged, evalID, map[string]string{"op": "delete", "question": qid})
	return nil
}

func (s *Service) ReorderQuestions(ctx context.Context, evalID string, ids []string) error {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return err
	}
	if err := q.Reorder(ctx, ids); err != nil {
		return s.editFailed(err)
	}
	s.record(ctx, syncx.TypeQuestionsChanged, evalID, map[string]any{"op": "reorder", "order": ids})
	return nil
}

func (s *Service) editFailed(err error) error {
	var se *question.StructuralEditError
	if errors.As(err, &se) {
		s.deps.Metrics.EditRejected(se.State.String())
	}
	return err
}

func (s *Service) record(ctx context.Context, typ, evalID string, data any) {
	if err := s.deps.Events.Record(ctx, typ, evalID, data); err != nil {
		s.log.Warn("event log append failed", "type", typ, "evaluation", evalID, "err", err)
	}
}

// Events pages through the event log of evalID after sequence number afterSeq.
func (s *Service) Events(ctx context.Context, evalID string, afterSeq int64, limit int) ([]syncx.Event, error) {
	if s.deps.Events.Log == nil {
		return []syncx.Event{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.deps.Events.Log.Since(ctx, evalID, afterSeq, limit)
}

func startSpan(ctx context.Context, name, evalID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("evaluation.id", evalID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
