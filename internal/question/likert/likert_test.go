package likert

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/response"
)

type guard struct{ state question.LockState }

func (g *guard) LockState(context.Context) (question.LockState, error) { return g.state, nil }
func (g *guard) CheckSubmission(context.Context, string) error         { return nil }

func newLikert(t *testing.T, g question.Guard, cfg string) *Question {
	t.Helper()
	env := question.Env{EvaluationID: "e1", Configs: question.NewMemory(), Responses: response.NewMemory(), Guard: g}
	p, err := question.New(env, question.Record{Type: Type})
	require.NoError(t, err)
	require.NoError(t, p.Configure(json.RawMessage(cfg)))
	return p.(*Question)
}

func TestConfigure_Validation(t *testing.T) {
	q := newLikert(t, &guard{}, `{"title":"Contribution","min":0,"max":4}`)

	err := q.Configure(json.RawMessage(`{"min":0,"max":4}`))
	require.ErrorIs(t, err, question.ErrValidation)
	var verr *question.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")

	require.NoError(t, q.Configure(json.RawMessage(`{"description":"How did they do?","min":0,"max":4}`)),
		"description alone is enough")

	err = q.Configure(json.RawMessage(`{"title":"x","min":5,"max":5}`))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "min")

	err = q.Configure(json.RawMessage(`{"title":"x","min":0,"max":11}`))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "max")

	require.NoError(t, q.Configure(json.RawMessage(`{"title":"x","min":1,"max":3,"meanings":{"0":"gone","1":"poor","3":"great"}}`)))
	assert.Equal(t, map[string]string{"1": "poor", "3": "great"}, q.Config().Meanings)
}

func TestSubmit_CompletionAndRange(t *testing.T) {
	ctx := context.Background()
	q := newLikert(t, &guard{}, `{"title":"Effort","min":0,"max":10,"meanings":{"10":"excellent"}}`)
	_, err := q.Save(ctx, 0)
	require.NoError(t, err)

	targets := []string{"b", "c"}
	complete, err := q.Submit(ctx, "a", json.RawMessage(`{"b":8}`), targets)
	require.NoError(t, err)
	assert.False(t, complete)

	_, err = q.Submit(ctx, "a", json.RawMessage(`{"b":11}`), targets)
	require.ErrorIs(t, err, question.ErrValidation)
	_, err = q.Submit(ctx, "a", json.RawMessage(`{"z":5}`), targets)
	require.ErrorIs(t, err, question.ErrValidation)

	done, err := q.Complete(ctx, "a", targets)
	require.NoError(t, err)
	assert.False(t, done, "rejected submissions write nothing")

	complete, err = q.Submit(ctx, "a", json.RawMessage(`{"b":10,"c":5}`), targets)
	require.NoError(t, err)
	assert.True(t, complete)

	view, err := q.SubmissionView(ctx, "a", targets)
	require.NoError(t, err)
	assert.Equal(t, "excellent", view.Current["b"].Label)

	raw, err := q.RawMarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, question.Marks{"a": {"b": 1.0, "c": 0.5}}, raw)
}

func TestSave_RejectedWhileLocked(t *testing.T) {
	ctx := context.Background()
	g := &guard{}
	q := newLikert(t, g, `{"title":"Effort","min":1,"max":5}`)
	_, err := q.Save(ctx, 0)
	require.NoError(t, err)

	g.state = question.LockedVisible
	_, err = q.Save(ctx, 0)
	var se *question.StructuralEditError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, question.LockedVisible, se.State)

	view, err := q.EditingView(ctx)
	require.NoError(t, err)
	assert.True(t, view.ReadOnly)
	require.NotNil(t, view.Locked)
	assert.Equal(t, se.Reason(), view.Locked.Reason)
}
