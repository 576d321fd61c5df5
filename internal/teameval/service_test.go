package teameval

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/teameval/internal/grading"
	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/question/comment"
	"github.com/mind-engage/teameval/internal/question/likert"
	"github.com/mind-engage/teameval/internal/roster"
	syncx "github.com/mind-engage/teameval/internal/sync"
)

const (
	evalID    = "e1"
	likertCfg = `{"title":"Contribution","min":0,"max":10}`
	notesCfg  = `{"title":"Notes for your teammates","optional":true}`
)

type fakeSink struct {
	mu     sync.Mutex
	calls  int
	max    float64
	scores map[string]float64
}

func (f *fakeSink) SyncGrades(_ context.Context, _ string, scoreMax float64, scores map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.max = scoreMax
	f.scores = scores
	return nil
}

type fixture struct {
	svc    *Service
	host   *roster.Static
	now    time.Time
	events *syncx.MemoryLog
	sink   *fakeSink
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		host: &roster.Static{
			Users:      []string{"A", "B", "C"},
			Membership: map[string][]string{"g": {"A", "B", "C"}},
			Visible:    map[string]bool{},
		},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		events: &syncx.MemoryLog{},
		sink:   &fakeSink{},
	}
	f.svc = New(Deps{
		Hosts:  HostFunc(func(string) roster.Host { return f.host }),
		Events: syncx.Recorder{Log: f.events},
		Sink:   f.sink,
		Now:    func() time.Time { return f.now },
	})
	_, err := f.svc.UpdateSettings(context.Background(), evalID, settings)
	require.NoError(t, err)
	return f
}

func (f *fixture) add(t *testing.T, typ, cfg string) string {
	t.Helper()
	v, err := f.svc.AddQuestion(context.Background(), evalID, typ, json.RawMessage(cfg))
	require.NoError(t, err)
	return v.QuestionID
}

func (f *fixture) open() {
	for _, u := range f.host.Users {
		f.host.Visible[u] = true
	}
}

func (f *fixture) submit(t *testing.T, rater, qid, data string) bool {
	t.Helper()
	complete, err := f.svc.Submit(context.Background(), evalID, rater, qid, json.RawMessage(data))
	require.NoError(t, err)
	return complete
}

func scenarioSettings() Settings {
	s := DefaultSettings()
	s.Fraction = 1
	return s
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	q1 := f.add(t, likert.Type, likertCfg)
	notes := f.add(t, comment.Type, notesCfg)

	ed, err := f.svc.Editor(ctx, evalID)
	require.NoError(t, err)
	assert.Equal(t, question.Open, ed.State)
	assert.Len(t, ed.Questions, 2)

	f.open()
	ed, err = f.svc.Editor(ctx, evalID)
	require.NoError(t, err)
	assert.Equal(t, question.LockedVisible, ed.State)
	assert.Equal(t, "one or more submitters can already see it", ed.Reason)

	assert.True(t, f.submit(t, "A", q1, `{"B":8,"C":8}`))
	assert.True(t, f.submit(t, "B", q1, `{"A":6,"C":6}`))
	assert.True(t, f.submit(t, "C", q1, `{"A":10,"B":10}`))
	f.submit(t, "A", notes, `{"C":"kept us on schedule"}`)

	res, err := f.svc.Score(ctx, evalID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res["A"].Multiplier, 1e-9)
	assert.InDelta(t, 1.125, res["B"].Multiplier, 1e-9)
	assert.InDelta(t, 0.875, res["C"].Multiplier, 1e-9)
	for _, u := range []string{"A", "B", "C"} {
		assert.True(t, res[u].MarksAvailable, u)
		assert.False(t, res[u].CompletionPenaltyApplied, u)
	}

	var in grading.Grades
	require.NoError(t, json.Unmarshal([]byte(`{"A":{"rawgrade":80},"B":{"rawgrade":80},"C":{"rawgrade":80}}`), &in))
	out, err := f.svc.AdjustGrades(ctx, evalID, in, grading.GradeItem{Max: 100}, true)
	require.NoError(t, err)
	assert.InDelta(t, 80, *out.ByUser["A"].RawGrade, 1e-9)
	assert.InDelta(t, 90, *out.ByUser["B"].RawGrade, 1e-9)
	assert.InDelta(t, 70, *out.ByUser["C"].RawGrade, 1e-9)
	assert.Contains(t, out.ByUser["C"].Feedback, "Notes for your teammates")
	assert.Contains(t, out.ByUser["C"].Feedback, "kept us on schedule")
	assert.Empty(t, out.ByUser["A"].Feedback)

	assert.Equal(t, 1, f.sink.calls)
	assert.Equal(t, 100.0, f.sink.max)
	assert.InDelta(t, 90, f.sink.scores["B"], 1e-9)

	ed, err = f.svc.Editor(ctx, evalID)
	require.NoError(t, err)
	assert.Equal(t, question.LockedMarked, ed.State)
	_, err = f.svc.AddQuestion(ctx, evalID, likert.Type, json.RawMessage(likertCfg))
	require.ErrorIs(t, err, question.ErrStructuralEditRejected)

	evs, err := f.events.Since(ctx, evalID, 0, 100)
	require.NoError(t, err)
	types := map[string]int{}
	for _, e := range evs {
		types[e.Type]++
	}
	assert.Equal(t, 4, types[syncx.TypeResponseSubmitted])
	assert.Equal(t, 1, types[syncx.TypeGradesAdjusted])
}

func TestService_SubmitWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	q1 := f.add(t, likert.Type, likertCfg)

	_, err := f.svc.Submit(ctx, evalID, "A", q1, json.RawMessage(`{"B":5}`))
	require.ErrorIs(t, err, question.ErrSubmissionClosed, "activity not visible")

	f.open()
	_, err = f.svc.Submit(ctx, evalID, "X", q1, json.RawMessage(`{"B":5}`))
	require.ErrorIs(t, err, ErrNotMember)

	minDL := f.now.Add(time.Hour)
	_, err = f.svc.SetMinimumDeadline(ctx, evalID, &minDL)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, evalID, "A", q1, json.RawMessage(`{"B":5}`))
	require.ErrorIs(t, err, question.ErrSubmissionClosed, "before minimum deadline")

	f.now = f.now.Add(2 * time.Hour)
	deadline := f.now.Add(time.Hour)
	s := scenarioSettings()
	s.Deadline = &deadline
	_, err = f.svc.UpdateSettings(ctx, evalID, s)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, evalID, "A", q1, json.RawMessage(`{"B":5}`))
	require.NoError(t, err)

	f.now = deadline.Add(time.Second)
	_, err = f.svc.Submit(ctx, evalID, "A", q1, json.RawMessage(`{"B":6}`))
	var closed *question.SubmissionClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, "the deadline has passed", closed.Reason)
	require.ErrorIs(t, f.svc.ResetOwn(ctx, evalID, "A"), question.ErrSubmissionClosed)

	s.Enabled = false
	_, err = f.svc.UpdateSettings(ctx, evalID, s)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, evalID, "A", q1, json.RawMessage(`{"B":6}`))
	require.ErrorIs(t, err, question.ErrSubmissionClosed)
}

func TestService_SettingsValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultSettings())

	s := DefaultSettings()
	s.Fraction = 1.5
	s.PenaltyPercent = -1
	_, err := f.svc.UpdateSettings(ctx, evalID, s)
	var verr *question.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "adjustment_fraction")
	assert.Contains(t, verr.Fields, "non_completion_penalty_percent")

	minDL := f.now.Add(48 * time.Hour)
	_, err = f.svc.SetMinimumDeadline(ctx, evalID, &minDL)
	require.NoError(t, err)
	early := f.now.Add(24 * time.Hour)
	s = DefaultSettings()
	s.Deadline = &early
	_, err = f.svc.UpdateSettings(ctx, evalID, s)
	require.ErrorIs(t, err, question.ErrValidation)

	_, err = f.svc.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_OmissionPenaltyAfterDeadline(t *testing.T) {
	ctx := context.Background()
	s := scenarioSettings()
	deadline := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.Deadline = &deadline
	f := newFixture(t, s)
	q1 := f.add(t, likert.Type, likertCfg)
	f.open()

	f.submit(t, "A", q1, `{"B":8,"C":8}`)
	f.submit(t, "B", q1, `{"A":6,"C":6}`)

	res, err := f.svc.Score(ctx, evalID)
	require.NoError(t, err)
	assert.False(t, res["A"].GroupReady, "C has not answered and the deadline is ahead")
	assert.False(t, res["A"].MarksAvailable)

	f.now = deadline.Add(time.Minute)
	res, err = f.svc.Score(ctx, evalID)
	require.NoError(t, err)
	assert.True(t, res["A"].MarksAvailable)
	assert.False(t, res["A"].CompletionPenaltyApplied)
	assert.False(t, res["B"].CompletionPenaltyApplied)
	assert.True(t, res["C"].CompletionPenaltyApplied)
	assert.Equal(t, 1, res["C"].IncompleteQuestions)
	// C received 0.7, the group mean; only the penalty moves C.
	assert.InDelta(t, 0.9, res["C"].Multiplier, 1e-9)
}

func TestService_ManualRelease(t *testing.T) {
	ctx := context.Background()
	s := scenarioSettings()
	s.AutoRelease = false
	f := newFixture(t, s)
	f.host.Users = append(f.host.Users, "D", "E")
	f.host.Membership["h"] = []string{"D", "E"}
	q1 := f.add(t, likert.Type, likertCfg)
	f.open()
	f.host.Visible["D"], f.host.Visible["E"] = true, true

	f.submit(t, "A", q1, `{"B":8,"C":8}`)
	f.submit(t, "B", q1, `{"A":6,"C":6}`)
	f.submit(t, "C", q1, `{"A":10,"B":10}`)
	f.submit(t, "D", q1, `{"E":7}`)
	f.submit(t, "E", q1, `{"D":7}`)

	res, err := f.svc.Score(ctx, evalID)
	require.NoError(t, err)
	assert.True(t, res["A"].GroupReady)
	assert.False(t, res["A"].MarksAvailable)

	grade := 50.0
	one := grading.Grades{Single: &grading.Grade{UserID: "B", RawGrade: &grade}}
	out, err := f.svc.AdjustGrades(ctx, evalID, one, grading.GradeItem{}, true)
	require.NoError(t, err)
	assert.Nil(t, out.Single.RawGrade, "not released yet")
	assert.Zero(t, f.sink.calls)

	require.Error(t, f.svc.Release(ctx, evalID, Release{Level: LevelGroup}), "group release names a group")
	require.ErrorIs(t, f.svc.Release(ctx, evalID, Release{Level: "course", Target: "g"}), question.ErrValidation)
	require.NoError(t, f.svc.Release(ctx, evalID, Release{Level: LevelGroup, Target: "g"}))
	require.NoError(t, f.svc.Release(ctx, evalID, Release{Level: LevelUser, Target: "E"}))

	res, err = f.svc.Score(ctx, evalID)
	require.NoError(t, err)
	assert.True(t, res["B"].MarksAvailable)
	assert.False(t, res["D"].MarksAvailable)
	assert.True(t, res["E"].MarksAvailable)

	out, err = f.svc.AdjustGrades(ctx, evalID, one, grading.GradeItem{}, true)
	require.NoError(t, err)
	assert.InDelta(t, 56.25, *out.Single.RawGrade, 1e-9)

	out, err = f.svc.AdjustGrades(ctx, evalID, one, grading.GradeItem{}, false)
	require.NoError(t, err)
	assert.Equal(t, 50.0, *out.Single.RawGrade, "not permitted leaves grades alone")
}

func TestService_RosterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	q1 := f.add(t, likert.Type, likertCfg)
	f.open()
	f.host.Membership = map[string][]string{"g": {"A", "B"}, "solo": {"C"}}

	_, err := f.svc.Score(ctx, evalID)
	require.ErrorIs(t, err, roster.ErrInconsistent)
	_, err = f.svc.Submit(ctx, evalID, "A", q1, json.RawMessage(`{"B":5}`))
	require.ErrorIs(t, err, roster.ErrInconsistent)

	d, err := f.svc.RosterCheck(ctx, evalID)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, d.SingleMemberGroups)
	assert.True(t, d.Fatal())
}

func TestService_SelfRequiredTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	q1 := f.add(t, likert.Type, likertCfg)
	f.open()

	v, err := f.svc.SubmissionView(ctx, evalID, "A", q1)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, v.Targets)

	s := scenarioSettings()
	s.SelfAssessment = true
	_, err = f.svc.UpdateSettings(ctx, evalID, s)
	require.NoError(t, err)
	form, err := f.svc.Form(ctx, evalID, "A")
	require.NoError(t, err)
	require.Len(t, form, 1)
	assert.Equal(t, []string{"A", "B", "C"}, form[0].Targets)
}

func TestService_ReviewComment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	q1 := f.add(t, likert.Type, likertCfg)
	notes := f.add(t, comment.Type, notesCfg)
	f.open()
	f.submit(t, "A", q1, `{"B":5,"C":5}`)
	f.submit(t, "B", q1, `{"A":5,"C":5}`)
	f.submit(t, "C", q1, `{"A":5,"B":5}`)
	f.submit(t, "A", notes, `{"C":"rude remark"}`)

	require.NoError(t, f.svc.ReviewComment(ctx, evalID, notes, "A", "C", true))
	require.ErrorIs(t, f.svc.ReviewComment(ctx, evalID, q1, "A", "C", true), question.ErrValidation)

	grade := 60.0
	out, err := f.svc.AdjustGrades(ctx, evalID,
		grading.Grades{Single: &grading.Grade{UserID: "C", RawGrade: &grade}}, grading.GradeItem{}, true)
	require.NoError(t, err)
	assert.InDelta(t, 60, *out.Single.RawGrade, 1e-9)
	assert.NotContains(t, out.Single.Feedback, "rude remark")
}

func TestService_ResetUserData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	q1 := f.add(t, likert.Type, likertCfg)
	f.open()
	f.submit(t, "A", q1, `{"B":5,"C":5}`)
	require.NoError(t, f.svc.Release(ctx, evalID, Release{Level: LevelAll}))

	err := f.svc.ResetUserData(ctx, evalID, ResetOptions{Questionnaire: true})
	require.ErrorIs(t, err, question.ErrValidation)

	require.NoError(t, f.svc.ResetUserData(ctx, evalID, ResetOptions{Responses: true}))
	rels, err := f.svc.Releases(ctx, evalID)
	require.NoError(t, err)
	assert.Empty(t, rels)
	ed, err := f.svc.Editor(ctx, evalID)
	require.NoError(t, err)
	assert.Equal(t, question.LockedVisible, ed.State, "responses gone, questions kept")
	assert.Len(t, ed.Questions, 1)

	require.NoError(t, f.svc.ResetUserData(ctx, evalID, ResetOptions{Responses: true, Questionnaire: true}))
	ed, err = f.svc.Editor(ctx, evalID)
	require.NoError(t, err)
	assert.Empty(t, ed.Questions)
}

func TestService_ResetOwnBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	q1 := f.add(t, likert.Type, likertCfg)
	f.open()
	f.submit(t, "A", q1, `{"B":5,"C":5}`)

	require.NoError(t, f.svc.ResetOwn(ctx, evalID, "A"))
	v, err := f.svc.SubmissionView(ctx, evalID, "A", q1)
	require.NoError(t, err)
	assert.Empty(t, v.Current)
}

func TestService_Templates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioSettings())
	f.add(t, likert.Type, likertCfg)
	f.add(t, comment.Type, notesCfg)

	_, err := f.svc.UpdateSettings(ctx, "e2", DefaultSettings())
	require.NoError(t, err)
	_, err = f.svc.ImportFrom(ctx, "e2", evalID)
	require.ErrorIs(t, err, ErrNotPublic)
	_, err = f.svc.PublishTemplate(ctx, evalID)
	require.ErrorIs(t, err, ErrNotPublic)

	s := scenarioSettings()
	s.Public = true
	_, err = f.svc.UpdateSettings(ctx, evalID, s)
	require.NoError(t, err)
	key, err := f.svc.PublishTemplate(ctx, evalID)
	require.NoError(t, err)
	assert.Equal(t, "templates/e1.yaml", key)

	pub, err := f.svc.PublicTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, evalID, pub[0].ID)

	added, err := f.svc.ImportFrom(ctx, "e2", evalID)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, likert.Type, added[0].Type)
	assert.Equal(t, comment.Type, added[1].Type)

	data, err := f.svc.ExportTemplate(ctx, "e2")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Contribution")

	_, err = f.svc.ImportTemplate(ctx, "e2", []byte("version: 9\nquestions: []\n"))
	require.ErrorIs(t, err, question.ErrValidation)
}
