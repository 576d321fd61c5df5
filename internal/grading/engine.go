package grading

import (
	"math"

	"github.com/mind-engage/teameval/internal/scoring"
)

// Snapshot is everything one update needs, built per request. Nothing here
// outlives the call.
type Snapshot struct {
	Enabled   bool
	Permitted bool
	Results   map[string]scoring.Result
	Feedback  map[string][]QuestionFeedback
	Item      GradeItem
}

// Adjuster applies peer multipliers to host grades.
type Adjuster interface {
	UpdateGrades(s Snapshot, grades Grades) Grades
}

type Option func(*config)

type config struct {
	Min, Max float64
	Format   FeedbackFormatter
}

// WithFeedbackFormatter replaces the default plain-text feedback.
func WithFeedbackFormatter(f FeedbackFormatter) Option { return func(c *config) { c.Format = f } }

type defaultAdjuster struct {
	cfg config
}

func NewAdjuster(opts ...Option) Adjuster {
	cfg := &config{Min: 0, Max: 100, Format: PlainFeedback}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultAdjuster{cfg: *cfg}
}

// UpdateGrades returns grades in the shape it was given. When evaluation is
// off the grades pass through untouched; a user whose marks are not yet
// available gets a null grade.
func (a *defaultAdjuster) UpdateGrades(s Snapshot, grades Grades) Grades {
	if !s.Enabled || !s.Permitted {
		return grades
	}
	if grades.Single != nil {
		g := a.adjust(s, *grades.Single)
		return Grades{Single: &g}
	}
	out := Grades{ByUser: make(map[string]Grade, len(grades.ByUser))}
	for uid, g := range grades.ByUser {
		if g.UserID == "" {
			g.UserID = uid
		}
		out.ByUser[uid] = a.adjust(s, g)
	}
	return out
}

func (a *defaultAdjuster) adjust(s Snapshot, g Grade) Grade {
	if g.RawGrade == nil {
		return g
	}
	res, ok := s.Results[g.UserID]
	if !ok || !res.MarksAvailable {
		g.RawGrade = nil
		return g
	}
	original := *g.RawGrade
	v := clamp(original*res.Multiplier, a.cfg.Min, a.cfg.Max)
	g.RawGrade = &v

	fb := Feedback{
		Original:       original,
		Adjusted:       v,
		Multiplier:     res.Multiplier,
		Incomplete:     res.IncompleteQuestions,
		PenaltyPercent: res.PenaltyPercent,
		Questions:      s.Feedback[g.UserID],
	}
	if fb.Empty() {
		return g
	}
	g.Feedback += a.cfg.Format(fb, s.Item)
	return g
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
