package roster

import (
	"context"
	"database/sql"
	"fmt"
)

// Upload is a roster pushed by the host for one evaluation.
type Upload struct {
	MarkingUsers []string            `json:"marking_users"`
	Groups       map[string][]string `json:"groups"`
	Catalog      []string            `json:"catalog,omitempty"`
	Visible      []string            `json:"visible,omitempty"` // marking users who can see the activity
}

// SQLStore persists host rosters pushed over the API.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// Put replaces the roster of evalID.
func (s *SQLStore) Put(ctx context.Context, evalID string, u Upload) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM roster_members WHERE eval_id=$1`,
		`DELETE FROM roster_groups WHERE eval_id=$1`,
		`DELETE FROM roster_users WHERE eval_id=$1`,
	} {
		if _, err := tx.ExecContext(ctx, q, evalID); err != nil {
			return err
		}
	}

	visible := toSet(u.Visible)
	for _, uid := range u.MarkingUsers {
		_, vis := visible[uid]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roster_users (eval_id,user_id,visible) VALUES ($1,$2,$3)
			 ON CONFLICT (eval_id,user_id) DO UPDATE SET visible=EXCLUDED.visible`,
			evalID, uid, vis); err != nil {
			return fmt.Errorf("insert user %s: %w", uid, err)
		}
	}

	catalog := u.Catalog
	if catalog == nil {
		catalog = sortedKeys(u.Groups)
	}
	for _, g := range catalog {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roster_groups (eval_id,group_id) VALUES ($1,$2) ON CONFLICT (eval_id,group_id) DO NOTHING`,
			evalID, g); err != nil {
			return fmt.Errorf("insert group %s: %w", g, err)
		}
	}
	for g, members := range u.Groups {
		for _, m := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO roster_members (eval_id,group_id,user_id) VALUES ($1,$2,$3)
				 ON CONFLICT (eval_id,group_id,user_id) DO NOTHING`,
				evalID, g, m); err != nil {
				return fmt.Errorf("insert member %s/%s: %w", g, m, err)
			}
		}
	}
	return tx.Commit()
}

// SetVisible updates whether a marking user can currently see the activity.
func (s *SQLStore) SetVisible(ctx context.Context, evalID, userID string, visible bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE roster_users SET visible=$1 WHERE eval_id=$2 AND user_id=$3`,
		visible, evalID, userID)
	return err
}

// Host returns a Host reading the stored roster of evalID.
func (s *SQLStore) Host(evalID string) Host { return &sqlHost{db: s.db, evalID: evalID} }

type sqlHost struct {
	db     *sql.DB
	evalID string
}

func (h *sqlHost) MarkingUsers(ctx context.Context) ([]string, error) {
	return h.strings(ctx, `SELECT user_id FROM roster_users WHERE eval_id=$1 ORDER BY user_id`)
}

func (h *sqlHost) GroupCatalog(ctx context.Context) ([]string, error) {
	return h.strings(ctx, `SELECT group_id FROM roster_groups WHERE eval_id=$1 ORDER BY group_id`)
}

func (h *sqlHost) Groups(ctx context.Context) (map[string][]string, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT group_id, user_id FROM roster_members WHERE eval_id=$1 ORDER BY group_id, user_id`, h.evalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var g, u string
		if err := rows.Scan(&g, &u); err != nil {
			return nil, err
		}
		out[g] = append(out[g], u)
	}
	return out, rows.Err()
}

func (h *sqlHost) IsVisibleTo(ctx context.Context, userID string) (bool, error) {
	var vis bool
	err := h.db.QueryRowContext(ctx,
		`SELECT visible FROM roster_users WHERE eval_id=$1 AND user_id=$2`, h.evalID, userID).Scan(&vis)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return vis, err
}

func (h *sqlHost) strings(ctx context.Context, q string) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, q, h.evalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
