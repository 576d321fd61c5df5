package gradebook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

type Clock func() time.Time

type Syncer struct {
	Store Store
	AGS   AGSClient
	Now   Clock
	// Label names the line item created for an evaluation.
	Label func(evalID string) string
}

func New(store Store, ags AGSClient, now Clock) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{Store: store, AGS: ags, Now: now, Label: defaultLabel}
}

func defaultLabel(evalID string) string { return "Team evaluation " + evalID }

// EnsureLineItem returns the line item of evalID, reusing a platform item
// with our resource id before creating a new one.
func (s *Syncer) EnsureLineItem(ctx context.Context, evalID string, scoreMax float64) (LineItemRecord, error) {
	if li, err := s.Store.FindLineItem(ctx, evalID); err == nil && li.LineItemURL != "" {
		return li, nil
	}
	link, err := s.Store.GetLink(ctx, evalID)
	if err != nil {
		return LineItemRecord{}, fmt.Errorf("%w: %v", ErrNoLink, err)
	}
	if link.LineItemsURL == "" {
		return LineItemRecord{}, errors.New("missing lineitems_url")
	}

	items, err := s.AGS.ListLineItems(ctx, link.LineItemsURL, map[string]string{
		"resource_id":      evalID,
		"resource_link_id": link.ResourceLinkID,
	})
	if err == nil {
		for _, it := range items {
			if it.ResourceID == evalID && it.ResourceLinkID == link.ResourceLinkID {
				return s.Store.UpsertLineItem(ctx, LineItemRecord{
					EvalID: evalID, Label: it.Label, ScoreMax: it.ScoreMaximum, LineItemURL: it.ID,
				})
			}
		}
	}
	label := defaultLabel(evalID)
	if s.Label != nil {
		label = s.Label(evalID)
	}
	created, err := s.AGS.CreateLineItem(ctx, link.LineItemsURL, CreateLineItemReq{
		Label: label, ScoreMaximum: scoreMax, ResourceID: evalID, ResourceLinkID: link.ResourceLinkID,
	})
	if err != nil {
		return LineItemRecord{}, fmt.Errorf("create line item: %w", err)
	}
	return s.Store.UpsertLineItem(ctx, LineItemRecord{
		EvalID: evalID, Label: created.Label, ScoreMax: created.ScoreMaximum, LineItemURL: created.ID,
	})
}

// SyncGrades posts one score per user. Users are attempted independently;
// the returned error joins every per-user failure.
func (s *Syncer) SyncGrades(ctx context.Context, evalID string, scoreMax float64, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}
	users := make([]string, 0, len(scores))
	for u := range scores {
		users = append(users, u)
	}
	sort.Strings(users)

	li, err := s.EnsureLineItem(ctx, evalID, scoreMax)
	if err != nil {
		for _, u := range users {
			_ = s.Store.MarkSyncFailed(ctx, evalID, u, err.Error())
		}
		return err
	}

	var errs []error
	for _, u := range users {
		if err := s.syncUser(ctx, evalID, u, scores[u], scoreMax, li.LineItemURL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) syncUser(ctx context.Context, evalID, userID string, given, scoreMax float64, lineItemURL string) error {
	_ = s.Store.MarkSyncPending(ctx, evalID, userID)

	platformUserID, err := s.Store.GetPlatformUserID(ctx, userID)
	if err != nil || platformUserID == "" {
		_ = s.Store.MarkSyncFailed(ctx, evalID, userID, "no platform user mapping")
		return fmt.Errorf("no platform user mapping for %s", userID)
	}
	if err := s.AGS.PostScore(ctx, lineItemURL, Score{
		UserID: platformUserID, ScoreGiven: given, ScoreMaximum: scoreMax,
		ActivityProgress: "Completed", GradingProgress: "FullyGraded",
		Timestamp: s.Now(),
	}); err != nil {
		_ = s.Store.MarkSyncFailed(ctx, evalID, userID, err.Error())
		return fmt.Errorf("post score for %s: %w", userID, err)
	}
	return s.Store.MarkSyncOK(ctx, evalID, userID)
}
