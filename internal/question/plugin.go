package question

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mind-engage/teameval/internal/response"
)

// Marks is rater -> target -> normalized value in [0,1].
type Marks map[string]map[string]float64

// ViewDescriptor is a render-agnostic description of a question view.
type ViewDescriptor struct {
	Type       string                   `json:"type"`
	QuestionID string                   `json:"question_id,omitempty"`
	ReadOnly   bool                     `json:"read_only"`
	Locked     *LockInfo                `json:"locked,omitempty"`
	Optional   bool                     `json:"optional,omitempty"`
	Config     any                      `json:"config"`
	Targets    []string                 `json:"targets,omitempty"`
	Current    map[string]response.Mark `json:"current,omitempty"`
}

type LockInfo struct {
	State  LockState `json:"state"`
	Reason string    `json:"reason"`
	Hint   string    `json:"hint"`
}

// Guard is the owning questionnaire's view of the lock and the submission
// window. Plugins consult it; they never compute either themselves.
type Guard interface {
	LockState(ctx context.Context) (LockState, error)
	CheckSubmission(ctx context.Context, raterID string) error
}

// Env binds a plugin instance to its evaluation.
type Env struct {
	EvaluationID string
	Configs      Store
	Responses    response.Store
	Guard        Guard
}

// Plugin is the capability set every question type implements.
type Plugin interface {
	Type() string
	ID() string
	Ordinal() int

	// Configure replaces the unsaved author-side configuration.
	Configure(cfg json.RawMessage) error
	SubmissionView(ctx context.Context, raterID string, targets []string) (ViewDescriptor, error)
	EditingView(ctx context.Context) (ViewDescriptor, error)
	Save(ctx context.Context, ordinal int) (string, error)
	Delete(ctx context.Context) error

	// Submit validates and records a rater's marks. complete reports whether
	// every target received a value.
	Submit(ctx context.Context, raterID string, data json.RawMessage, targets []string) (complete bool, err error)
	Complete(ctx context.Context, raterID string, targets []string) (bool, error)
	ResetResponses(ctx context.Context, raterID string) error

	// RawMarks returns normalized numeric marks; non-scoring types return an
	// empty map.
	RawMarks(ctx context.Context) (Marks, error)
	Scored() bool
	Optional() bool
}

// SelfRequirer is implemented by types that always ask raters to mark
// themselves, whatever the self-assessment setting.
type SelfRequirer interface {
	RequiresSelf() bool
}

// FeedbackProvider is implemented by types that produce text feedback for
// the target user.
type FeedbackProvider interface {
	Feedback(ctx context.Context, targetID string) ([]string, error)
}

// Titled is implemented by types with an author-facing title.
type Titled interface {
	Title() string
}

// Factory builds a plugin from a stored (or new, ID-less) record.
type Factory func(env Env, rec Record) (Plugin, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register a question type. Call from init() in subpackages.
func Register(typ string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[typ] = f
}

// Lookup returns the factory for a question type.
func Lookup(typ string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := registry[typ]
	return f, ok
}

// Types lists registered question types.
func Types() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New instantiates rec through its registered factory.
func New(env Env, rec Record) (Plugin, error) {
	f, ok := Lookup(rec.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, rec.Type)
	}
	if rec.EvaluationID == "" {
		rec.EvaluationID = env.EvaluationID
	}
	return f(env, rec)
}
