package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mind-engage/teameval/pkg/lti-ags-gradebook/gradebook"
)

type Store struct{ DB *sql.DB }

func (s *Store) GetLink(ctx context.Context, evalID string) (gradebook.Link, error) {
	link := gradebook.Link{EvalID: evalID}
	err := s.DB.QueryRowContext(ctx,
		`SELECT lineitems_url, resource_link_id FROM gradebook_links WHERE eval_id=$1`, evalID).
		Scan(&link.LineItemsURL, &link.ResourceLinkID)
	if errors.Is(err, sql.ErrNoRows) {
		return gradebook.Link{}, gradebook.ErrNoLink
	}
	return link, err
}

// PutLink records the line items collection of an evaluation. A changed
// collection invalidates the cached line item.
func (s *Store) PutLink(ctx context.Context, link gradebook.Link) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT lineitems_url FROM gradebook_links WHERE eval_id=$1`, link.EvalID).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO gradebook_links (eval_id, lineitems_url, resource_link_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (eval_id)
		DO UPDATE SET lineitems_url=EXCLUDED.lineitems_url, resource_link_id=EXCLUDED.resource_link_id`,
		link.EvalID, link.LineItemsURL, link.ResourceLinkID); err != nil {
		return err
	}
	if prev != "" && prev != link.LineItemsURL {
		if _, err := tx.ExecContext(ctx, `DELETE FROM gradebook_lineitems WHERE eval_id=$1`, link.EvalID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UpsertLineItem(ctx context.Context, li gradebook.LineItemRecord) (gradebook.LineItemRecord, error) {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO gradebook_lineitems (eval_id, label, score_max, line_item_url)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (eval_id)
		DO UPDATE SET
			label=EXCLUDED.label,
			score_max=EXCLUDED.score_max,
			line_item_url=EXCLUDED.line_item_url,
			updated_at=CURRENT_TIMESTAMP`,
		li.EvalID, li.Label, li.ScoreMax, li.LineItemURL)
	return li, err
}

func (s *Store) FindLineItem(ctx context.Context, evalID string) (gradebook.LineItemRecord, error) {
	var li gradebook.LineItemRecord
	err := s.DB.QueryRowContext(ctx, `
		SELECT eval_id, label, score_max, line_item_url
		FROM gradebook_lineitems
		WHERE eval_id=$1`, evalID).
		Scan(&li.EvalID, &li.Label, &li.ScoreMax, &li.LineItemURL)
	return li, err
}

func (s *Store) GetPlatformUserID(ctx context.Context, localUserID string) (string, error) {
	var sub string
	err := s.DB.QueryRowContext(ctx, `SELECT platform_sub FROM lti_user_map WHERE local_user_id=$1`,
		localUserID).Scan(&sub)
	return sub, err
}

// MapUser records the platform subject of a local user.
func (s *Store) MapUser(ctx context.Context, localUserID, platformSub string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO lti_user_map (local_user_id, platform_sub) VALUES ($1,$2)
		ON CONFLICT (local_user_id) DO UPDATE SET platform_sub=EXCLUDED.platform_sub`,
		localUserID, platformSub)
	return err
}

func (s *Store) MarkSyncPending(ctx context.Context, evalID, userID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (eval_id, user_id, status, retries, updated_at)
		VALUES ($1,$2,'pending',0,CURRENT_TIMESTAMP)
		ON CONFLICT (eval_id, user_id)
		DO UPDATE SET status='pending', updated_at=CURRENT_TIMESTAMP`,
		evalID, userID)
	return err
}

func (s *Store) MarkSyncOK(ctx context.Context, evalID, userID string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE grade_sync_status
		   SET status='ok', last_error=NULL, updated_at=CURRENT_TIMESTAMP
		 WHERE eval_id=$1 AND user_id=$2`, evalID, userID)
	return err
}

func (s *Store) MarkSyncFailed(ctx context.Context, evalID, userID, lastErr string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (eval_id, user_id, status, retries, last_error, updated_at)
		VALUES ($1,$2,'failed',1,$3,CURRENT_TIMESTAMP)
		ON CONFLICT (eval_id, user_id)
		DO UPDATE SET
			status='failed',
			retries=grade_sync_status.retries+1,
			last_error=EXCLUDED.last_error,
			updated_at=CURRENT_TIMESTAMP`,
		evalID, userID, lastErr)
	return err
}

// Statuses lists passback outcomes of an evaluation ordered by user.
func (s *Store) Statuses(ctx context.Context, evalID string) ([]gradebook.Status, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT eval_id, user_id, status, retries, COALESCE(last_error,'')
		FROM grade_sync_status WHERE eval_id=$1 ORDER BY user_id`, evalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []gradebook.Status{}
	for rows.Next() {
		var st gradebook.Status
		if err := rows.Scan(&st.EvalID, &st.UserID, &st.State, &st.Retries, &st.LastError); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
