package split

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/response"
)

func TestSplit_TotalsAndSelf(t *testing.T) {
	ctx := context.Background()
	env := question.Env{EvaluationID: "e1", Configs: question.NewMemory(), Responses: response.NewMemory()}
	p, err := question.New(env, question.Record{Type: Type})
	require.NoError(t, err)
	require.NoError(t, p.Configure(json.RawMessage(`{"title":"Share of the work"}`)))
	_, err = p.Save(ctx, 0)
	require.NoError(t, err)

	sr, ok := p.(question.SelfRequirer)
	require.True(t, ok)
	assert.True(t, sr.RequiresSelf())

	targets := []string{"a", "b", "c"}
	_, err = p.Submit(ctx, "a", json.RawMessage(`{"a":50,"b":30}`), targets)
	var verr *question.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "c")
	assert.Contains(t, verr.Fields, "total")

	_, err = p.Submit(ctx, "a", json.RawMessage(`{"a":50,"b":60,"c":-10}`), targets)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "c")

	complete, err := p.Submit(ctx, "a", json.RawMessage(`{"a":40,"b":30,"c":30}`), targets)
	require.NoError(t, err)
	assert.True(t, complete)

	raw, err := p.RawMarks(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, raw["a"]["a"], 1e-9)
	assert.InDelta(t, 0.3, raw["a"]["c"], 1e-9)
}
