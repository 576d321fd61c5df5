package questionnaire

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/question/comment"
	"github.com/mind-engage/teameval/internal/question/likert"
	"github.com/mind-engage/teameval/internal/response"
	"github.com/mind-engage/teameval/internal/roster"
)

const likertCfg = `{"title":"Contribution","min":0,"max":10}`

type fixture struct {
	host      *roster.Static
	responses response.Store
	configs   question.Store
	q         *Questionnaire
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		host: &roster.Static{
			Users:      []string{"a", "b", "c"},
			Membership: map[string][]string{"g": {"a", "b", "c"}},
			Visible:    map[string]bool{},
		},
		responses: response.NewMemory(),
		configs:   question.NewMemory(),
	}
	f.q = New("e1", Deps{Configs: f.configs, Responses: f.responses, Host: f.host})
	return f
}

func (f *fixture) state(t *testing.T) question.LockState {
	t.Helper()
	s, err := f.q.LockState(context.Background())
	require.NoError(t, err)
	return s
}

func TestLock_MonotonicOnceMarked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
	require.NoError(t, err)
	assert.Equal(t, question.Open, f.state(t))

	f.host.Visible["b"] = true
	assert.Equal(t, question.LockedVisible, f.state(t))
	_, err = f.q.Update(ctx, p.ID(), json.RawMessage(likertCfg))
	var se *question.StructuralEditError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, question.LockedVisible, se.State)

	delete(f.host.Visible, "b")
	assert.Equal(t, question.Open, f.state(t), "visibility alone is reversible")

	_, err = f.q.Submit(ctx, "a", p.ID(), json.RawMessage(`{"b":5}`), []string{"b", "c"})
	require.NoError(t, err)

	for _, visible := range []bool{true, false, true, false} {
		f.host.Visible["c"] = visible
		assert.Equal(t, question.LockedMarked, f.state(t))

		_, err = f.q.Update(ctx, p.ID(), json.RawMessage(likertCfg))
		require.ErrorIs(t, err, question.ErrStructuralEditRejected)
		_, err = f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
		require.ErrorIs(t, err, question.ErrStructuralEditRejected)
		require.ErrorIs(t, f.q.Reorder(ctx, []string{p.ID()}), question.ErrStructuralEditRejected)
		err = f.q.Delete(ctx, p.ID())
		require.ErrorIs(t, err, question.ErrStructuralEditRejected)
		require.ErrorIs(t, err, question.ErrHasResponses)
	}
}

func TestSubmit_PermittedAfterLockedMarked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
	require.NoError(t, err)

	_, err = f.q.Submit(ctx, "a", p.ID(), json.RawMessage(`{"b":8,"c":8}`), []string{"b", "c"})
	require.NoError(t, err)
	require.Equal(t, question.LockedMarked, f.state(t))

	complete, err := f.q.Submit(ctx, "b", p.ID(), json.RawMessage(`{"a":6,"c":6}`), []string{"a", "c"})
	require.NoError(t, err, "locking blocks structural edits, not submissions")
	assert.True(t, complete)

	_, err = f.q.Update(ctx, p.ID(), json.RawMessage(likertCfg))
	require.ErrorIs(t, err, question.ErrStructuralEditRejected)
}

func TestSubmit_WindowClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
	require.NoError(t, err)

	f.q.deps.Window = func(context.Context, string) error {
		return &question.SubmissionClosedError{Reason: "deadline passed"}
	}
	_, err = f.q.Submit(ctx, "a", p.ID(), json.RawMessage(`{"b":8}`), []string{"b", "c"})
	require.ErrorIs(t, err, question.ErrSubmissionClosed)
	assert.Equal(t, question.Open, f.state(t), "nothing was written")
}

func TestReorder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var ids []string
	for i := 0; i < 3; i++ {
		p, err := f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
		require.NoError(t, err)
		ids = append(ids, p.ID())
	}

	require.ErrorIs(t, f.q.Reorder(ctx, ids[:2]), ErrQuestionIDsOutOfSync)
	require.ErrorIs(t, f.q.Reorder(ctx, []string{ids[0], ids[0], ids[1]}), ErrQuestionIDsOutOfSync)
	require.ErrorIs(t, f.q.Reorder(ctx, []string{ids[0], ids[1], "other"}), ErrQuestionIDsOutOfSync)

	want := []string{ids[2], ids[0], ids[1]}
	require.NoError(t, f.q.Reorder(ctx, want))
	qs, err := f.q.Questions(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(qs))
	for _, p := range qs {
		got = append(got, p.ID())
	}
	assert.Equal(t, want, got)
}

func TestDelete_OpenAndUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.q.Add(ctx, comment.Type, json.RawMessage(`{"title":"Notes"}`))
	require.NoError(t, err)

	require.NoError(t, f.q.Delete(ctx, p.ID()))
	require.ErrorIs(t, f.q.Delete(ctx, p.ID()), question.ErrNotFound)
}

func TestOwnResetIsNotStructural(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
	require.NoError(t, err)
	for _, r := range []string{"a", "b"} {
		_, err = f.q.Submit(ctx, r, p.ID(), json.RawMessage(`{"c":3}`), []string{"c"})
		require.NoError(t, err)
	}

	require.NoError(t, f.q.ResetResponses(ctx, "a"))
	mine, err := f.responses.Get(ctx, p.ID(), "a")
	require.NoError(t, err)
	assert.Empty(t, mine.Marks)
	theirs, err := f.responses.Get(ctx, p.ID(), "b")
	require.NoError(t, err)
	assert.Len(t, theirs.Marks, 1)
	assert.Equal(t, question.LockedMarked, f.state(t))

	require.NoError(t, f.q.Reset(ctx, true))
	assert.Equal(t, question.Open, f.state(t))
	qs, err := f.q.Questions(ctx)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestOwnResetKeepsSoleRaterLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
	require.NoError(t, err)
	_, err = f.q.Submit(ctx, "a", p.ID(), json.RawMessage(`{"b":4}`), []string{"b"})
	require.NoError(t, err)
	require.Equal(t, question.LockedMarked, f.state(t))

	require.NoError(t, f.q.ResetResponses(ctx, "a"))
	assert.Equal(t, question.LockedMarked, f.state(t))

	var serr *question.StructuralEditError
	_, err = f.q.Update(ctx, p.ID(), json.RawMessage(likertCfg))
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, question.LockedMarked, serr.State)
	require.Error(t, f.q.Delete(ctx, p.ID()))
	_, err = f.q.Add(ctx, comment.Type, json.RawMessage(`{"title":"Notes"}`))
	require.ErrorAs(t, err, &serr)
	require.ErrorAs(t, f.q.Reorder(ctx, []string{p.ID()}), &serr)

	complete, err := p.Complete(ctx, "a", []string{"b"})
	require.NoError(t, err)
	assert.False(t, complete, "cleared marks are incomplete")
}

// hookedResponses runs onGet once, after the first Get returns.
type hookedResponses struct {
	response.Store
	once  sync.Once
	onGet func()
}

func (h *hookedResponses) Get(ctx context.Context, questionID, raterID string) (response.Response, error) {
	r, err := h.Store.Get(ctx, questionID, raterID)
	if h.onGet != nil {
		h.once.Do(h.onGet)
	}
	return r, err
}

func TestReview_DoesNotOverwriteResubmit(t *testing.T) {
	ctx := context.Background()
	rs := &hookedResponses{Store: response.NewMemory()}
	q := New("e1", Deps{Configs: question.NewMemory(), Responses: rs})
	p, err := q.Add(ctx, comment.Type, json.RawMessage(`{"title":"Notes"}`))
	require.NoError(t, err)
	targets := []string{"b", "c"}
	_, err = q.Submit(ctx, "a", p.ID(), json.RawMessage(`{"b":"old","c":"x"}`), targets)
	require.NoError(t, err)

	done := make(chan error, 1)
	rs.onGet = func() {
		go func() {
			_, err := q.Submit(ctx, "a", p.ID(), json.RawMessage(`{"b":"new","c":"y"}`), targets)
			done <- err
		}()
		select {
		case err := <-done:
			done <- err
		case <-time.After(50 * time.Millisecond):
		}
	}

	require.NoError(t, q.Review(ctx, p.ID(), "a", "b", true))
	require.NoError(t, <-done)

	got, err := rs.Store.Get(ctx, p.ID(), "a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Marks["b"].Text)
	assert.Equal(t, "y", got.Marks["c"].Text)
}

func TestReview_NotReviewable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
	require.NoError(t, err)
	require.ErrorIs(t, f.q.Review(ctx, p.ID(), "a", "b", true), question.ErrValidation)
	require.ErrorIs(t, f.q.Review(ctx, "missing", "a", "b", true), question.ErrNotFound)
}

// orderedResponses and orderedConfigs stamp every write with a shared
// sequence number so the test can see which happened first.
type orderedResponses struct {
	response.Store
	seq        *int64
	firstWrite int64
}

func (o *orderedResponses) Put(ctx context.Context, r response.Response) error {
	n := atomic.AddInt64(o.seq, 1)
	atomic.CompareAndSwapInt64(&o.firstWrite, 0, n)
	return o.Store.Put(ctx, r)
}

type orderedConfigs struct {
	question.Store
	seq       *int64
	mu        sync.Mutex
	lastWrite int64
}

func (o *orderedConfigs) Put(ctx context.Context, r question.Record) error {
	n := atomic.AddInt64(o.seq, 1)
	o.mu.Lock()
	o.lastWrite = n
	o.mu.Unlock()
	return o.Store.Put(ctx, r)
}

func TestConcurrentEditAndFirstSubmit(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		var seq int64
		resp := &orderedResponses{Store: response.NewMemory(), seq: &seq}
		cfgs := &orderedConfigs{Store: question.NewMemory(), seq: &seq}
		q := New("e1", Deps{Configs: cfgs, Responses: resp})

		p, err := q.Add(ctx, likert.Type, json.RawMessage(likertCfg))
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			updateErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, updateErr = q.Update(ctx, p.ID(), json.RawMessage(`{"title":"Renamed","min":0,"max":10}`))
		}()
		go func() {
			defer wg.Done()
			_, err := q.Submit(ctx, "a", p.ID(), json.RawMessage(`{"b":4}`), []string{"b"})
			assert.NoError(t, err)
		}()
		wg.Wait()

		if updateErr != nil {
			require.ErrorIs(t, updateErr, question.ErrStructuralEditRejected)
			continue
		}
		assert.Less(t, cfgs.lastWrite, resp.firstWrite, "an edit landed after the first submission")
	}
}

func TestTemplate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	_, err := src.q.Add(ctx, likert.Type, json.RawMessage(`{"title":"Effort","min":1,"max":5,"meanings":{"1":"none","5":"all"}}`))
	require.NoError(t, err)
	_, err = src.q.Add(ctx, comment.Type, json.RawMessage(`{"title":"Notes","optional":true}`))
	require.NoError(t, err)

	data, err := src.q.Export(ctx, "Weekly check-in")
	require.NoError(t, err)
	assert.Contains(t, string(data), "type: likert")

	dst := newFixture(t)
	added, err := dst.q.Import(ctx, data)
	require.NoError(t, err)
	require.Len(t, added, 2)

	qs, err := dst.q.Questions(ctx)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	lk, ok := qs[0].(*likert.Question)
	require.True(t, ok)
	assert.Equal(t, 5, lk.Config().Max)
	assert.Equal(t, "all", lk.Config().Meanings["5"])
	assert.True(t, qs[1].Optional())

	bad := []byte("version: 1\nquestions:\n  - type: comment\n    config: {title: Fine}\n  - type: likert\n    config: {min: 1, max: 5}\n")
	_, err = dst.q.Import(ctx, bad)
	require.ErrorIs(t, err, question.ErrValidation)
	qs, err = dst.q.Questions(ctx)
	require.NoError(t, err)
	assert.Len(t, qs, 2, "a rejected import saves nothing")

	dst.host.Visible["a"] = true
	_, err = dst.q.Import(ctx, data)
	require.ErrorIs(t, err, question.ErrStructuralEditRejected)

	_, err = ParseTemplate([]byte("version: 1\nquestions:\n  - type: essay\n    config: {}\n"))
	require.ErrorIs(t, err, question.ErrValidation)
}
