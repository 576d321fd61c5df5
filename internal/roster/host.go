package roster

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Host is the host platform's view of an activity: who marks, how they are
// grouped, and who can currently see the activity.
type Host interface {
	MarkingUsers(ctx context.Context) ([]string, error)
	Groups(ctx context.Context) (map[string][]string, error)
	IsVisibleTo(ctx context.Context, userID string) (bool, error)
}

// Cataloger is implemented by hosts that keep a catalog of groups separate
// from membership. Without it, every group returned by Groups is known.
type Cataloger interface {
	GroupCatalog(ctx context.Context) ([]string, error)
}

// Snapshot is one consistent read of the host roster.
type Snapshot struct {
	MarkingUsers []string
	Groups       map[string][]string
	Catalog      []string
}

// Fetch reads marking users, groups and (when available) the group catalog
// concurrently.
func Fetch(ctx context.Context, h Host) (Snapshot, error) {
	var s Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		users, err := h.MarkingUsers(gctx)
		if err != nil {
			return fmt.Errorf("marking users: %w", err)
		}
		s.MarkingUsers = users
		return nil
	})
	g.Go(func() error {
		groups, err := h.Groups(gctx)
		if err != nil {
			return fmt.Errorf("groups: %w", err)
		}
		s.Groups = groups
		return nil
	})
	if c, ok := h.(Cataloger); ok {
		g.Go(func() error {
			cat, err := c.GroupCatalog(gctx)
			if err != nil {
				return fmt.Errorf("group catalog: %w", err)
			}
			if cat == nil {
				cat = []string{}
			}
			s.Catalog = cat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Resolve fetches the roster from the host and validates it. It is meant to
// be called every time the roster is consulted; nothing is cached.
func Resolve(ctx context.Context, h Host) (Partition, Diagnostics, error) {
	s, err := Fetch(ctx, h)
	if err != nil {
		return Partition{}, Diagnostics{}, err
	}
	return Validate(s.MarkingUsers, s.Groups, s.Catalog)
}

// AnyMarkingUserCanSee reports whether at least one marking user can
// currently see the activity.
func AnyMarkingUserCanSee(ctx context.Context, h Host) (bool, error) {
	users, err := h.MarkingUsers(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		ok, err := h.IsVisibleTo(ctx, u)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Static is an in-memory Host.
type Static struct {
	Users      []string
	Membership map[string][]string
	Known      []string // nil: every group is known
	Visible    map[string]bool
}

func (s *Static) MarkingUsers(context.Context) ([]string, error) {
	return append([]string(nil), s.Users...), nil
}

func (s *Static) Groups(context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(s.Membership))
	for g, ms := range s.Membership {
		out[g] = append([]string(nil), ms...)
	}
	return out, nil
}

func (s *Static) GroupCatalog(context.Context) ([]string, error) {
	if s.Known == nil {
		return sortedKeys(s.Membership), nil
	}
	return append([]string(nil), s.Known...), nil
}

func (s *Static) IsVisibleTo(_ context.Context, userID string) (bool, error) {
	return s.Visible[userID], nil
}
