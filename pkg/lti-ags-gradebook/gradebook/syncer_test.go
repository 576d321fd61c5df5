package gradebook_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gradebook "github.com/mind-engage/teameval/pkg/lti-ags-gradebook/gradebook"
)

/* ---------------- In-memory fakes that satisfy gradebook.Store & gradebook.AGSClient ---------------- */

type syncState struct {
	status  gradebook.SyncState
	lastErr string
	retries int
}

type fakeStore struct {
	links      map[string]gradebook.Link
	lineitems  map[string]gradebook.LineItemRecord
	userMap    map[string]string // localUserID => platformSub
	syncStatus map[string]syncState
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		links:      map[string]gradebook.Link{},
		lineitems:  map[string]gradebook.LineItemRecord{},
		userMap:    map[string]string{},
		syncStatus: map[string]syncState{},
	}
}

func key(evalID, userID string) string { return evalID + "|" + userID }

func (s *fakeStore) GetLink(_ context.Context, evalID string) (gradebook.Link, error) {
	l, ok := s.links[evalID]
	if !ok {
		return gradebook.Link{}, gradebook.ErrNoLink
	}
	return l, nil
}

func (s *fakeStore) UpsertLineItem(_ context.Context, li gradebook.LineItemRecord) (gradebook.LineItemRecord, error) {
	s.lineitems[li.EvalID] = li
	return li, nil
}

func (s *fakeStore) FindLineItem(_ context.Context, evalID string) (gradebook.LineItemRecord, error) {
	li, ok := s.lineitems[evalID]
	if !ok {
		return gradebook.LineItemRecord{}, fmt.Errorf("lineitem not found")
	}
	return li, nil
}

func (s *fakeStore) GetPlatformUserID(_ context.Context, localUserID string) (string, error) {
	sub, ok := s.userMap[localUserID]
	if !ok {
		return "", fmt.Errorf("mapping not found")
	}
	return sub, nil
}

func (s *fakeStore) MarkSyncPending(_ context.Context, evalID, userID string) error {
	st := s.syncStatus[key(evalID, userID)]
	st.status = gradebook.SyncPending
	s.syncStatus[key(evalID, userID)] = st
	return nil
}

func (s *fakeStore) MarkSyncOK(_ context.Context, evalID, userID string) error {
	st := s.syncStatus[key(evalID, userID)]
	st.status, st.lastErr = gradebook.SyncOK, ""
	s.syncStatus[key(evalID, userID)] = st
	return nil
}

func (s *fakeStore) MarkSyncFailed(_ context.Context, evalID, userID, lastErr string) error {
	st := s.syncStatus[key(evalID, userID)]
	st.status, st.lastErr, st.retries = gradebook.SyncFailed, lastErr, st.retries+1
	s.syncStatus[key(evalID, userID)] = st
	return nil
}

type fakeAGS struct {
	listed     []gradebook.LineItem
	createdReq *gradebook.CreateLineItemReq
	posted     []gradebook.Score
	postErr    map[string]error // platform user => error
}

func (f *fakeAGS) ListLineItems(_ context.Context, _ string, _ map[string]string) ([]gradebook.LineItem, error) {
	return f.listed, nil
}

func (f *fakeAGS) CreateLineItem(_ context.Context, _ string, req gradebook.CreateLineItemReq) (gradebook.LineItem, error) {
	f.createdReq = &req
	return gradebook.LineItem{
		ID:             "https://lms.example/lineitems/123",
		Label:          req.Label,
		ScoreMaximum:   req.ScoreMaximum,
		ResourceID:     req.ResourceID,
		ResourceLinkID: req.ResourceLinkID,
	}, nil
}

func (f *fakeAGS) PostScore(_ context.Context, _ string, s gradebook.Score) error {
	if err := f.postErr[s.UserID]; err != nil {
		return err
	}
	f.posted = append(f.posted, s)
	return nil
}

/* ------------------------------------------ Tests ------------------------------------------ */

func seedBasic(t *testing.T) (*fakeStore, *fakeAGS, *gradebook.Syncer) {
	t.Helper()
	st := newFakeStore()
	ags := &fakeAGS{}

	st.links["eval-1"] = gradebook.Link{
		EvalID:         "eval-1",
		LineItemsURL:   "https://lms.example/lineitems",
		ResourceLinkID: "rl-1",
	}
	st.userMap["u1"] = "platform-sub-1"
	st.userMap["u2"] = "platform-sub-2"

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := gradebook.New(st, ags, func() time.Time { return now })
	return st, ags, s
}

func TestSyncer_CreatesAndPosts(t *testing.T) {
	st, ags, syncer := seedBasic(t)

	err := syncer.SyncGrades(context.Background(), "eval-1", 100, map[string]float64{"u2": 70, "u1": 90})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ags.createdReq == nil {
		t.Fatalf("expected CreateLineItem to be called")
	}
	if ags.createdReq.ResourceID != "eval-1" || ags.createdReq.ScoreMaximum != 100 {
		t.Fatalf("unexpected create request: %+v", *ags.createdReq)
	}
	if len(ags.posted) != 2 {
		t.Fatalf("expected 2 PostScore calls, got %d", len(ags.posted))
	}
	if ags.posted[0].UserID != "platform-sub-1" || ags.posted[0].ScoreGiven != 90 {
		t.Fatalf("scores are posted in user order; got %+v", ags.posted[0])
	}
	if _, ok := st.lineitems["eval-1"]; !ok {
		t.Fatalf("expected line item persisted in store")
	}
	for _, u := range []string{"u1", "u2"} {
		if st.syncStatus[key("eval-1", u)].status != gradebook.SyncOK {
			t.Fatalf("expected sync status ok for %s; got %q", u, st.syncStatus[key("eval-1", u)].status)
		}
	}
}

func TestSyncer_UsesExistingLineItem(t *testing.T) {
	_, ags, syncer := seedBasic(t)

	ags.listed = []gradebook.LineItem{{
		ID:             "https://lms.example/lineitems/exist",
		Label:          "Team evaluation",
		ScoreMaximum:   100,
		ResourceID:     "eval-1",
		ResourceLinkID: "rl-1",
	}}

	if err := syncer.SyncGrades(context.Background(), "eval-1", 100, map[string]float64{"u1": 50}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ags.createdReq != nil {
		t.Fatalf("did not expect CreateLineItem to be called")
	}
	if len(ags.posted) != 1 {
		t.Fatalf("expected 1 PostScore call, got %d", len(ags.posted))
	}
}

func TestSyncer_PartialFailure(t *testing.T) {
	st, ags, syncer := seedBasic(t)
	delete(st.userMap, "u2")
	ags.postErr = map[string]error{"platform-sub-3": errors.New("503 Service Unavailable")}
	st.userMap["u3"] = "platform-sub-3"

	err := syncer.SyncGrades(context.Background(), "eval-1", 100, map[string]float64{"u1": 80, "u2": 60, "u3": 40})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "u2") || !strings.Contains(err.Error(), "u3") {
		t.Fatalf("error should name both failed users: %v", err)
	}
	if len(ags.posted) != 1 {
		t.Fatalf("expected the mapped user to be posted, got %d posts", len(ags.posted))
	}
	if got := st.syncStatus[key("eval-1", "u1")].status; got != gradebook.SyncOK {
		t.Fatalf("u1 status = %q", got)
	}
	if got := st.syncStatus[key("eval-1", "u3")]; got.status != gradebook.SyncFailed || got.retries != 1 {
		t.Fatalf("u3 status = %+v", got)
	}
}

func TestSyncer_Unlinked(t *testing.T) {
	st, ags, syncer := seedBasic(t)

	err := syncer.SyncGrades(context.Background(), "eval-2", 100, map[string]float64{"u1": 80})
	if !errors.Is(err, gradebook.ErrNoLink) {
		t.Fatalf("expected ErrNoLink, got %v", err)
	}
	if st.syncStatus[key("eval-2", "u1")].status != gradebook.SyncFailed {
		t.Fatalf("expected sync status failed")
	}
	if len(ags.posted) != 0 {
		t.Fatalf("expected 0 PostScore calls, got %d", len(ags.posted))
	}
}
