// Package roster resolves and validates group membership for the marking
// population of a team evaluation.
package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInconsistent is wrapped by every fatal roster validation failure.
var ErrInconsistent = errors.New("roster inconsistent")

// Partition is a validated assignment of every marking user to exactly one
// group of two or more members.
type Partition struct {
	Groups map[string][]string // group id -> sorted member ids
	byUser map[string]string
}

// GroupOf returns the group the user belongs to.
func (p Partition) GroupOf(userID string) (string, bool) {
	g, ok := p.byUser[userID]
	return g, ok
}

// Teammates returns the members of the user's own group, the user included, or nil.
func (p Partition) Teammates(userID string) []string {
	g, ok := p.byUser[userID]
	if !ok {
		return nil
	}
	return p.Groups[g]
}

// Users returns every marking user, sorted.
func (p Partition) Users() []string {
	out := make([]string, 0, len(p.byUser))
	for u := range p.byUser {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// GroupIDs returns the group ids, sorted.
func (p Partition) GroupIDs() []string {
	return sortedKeys(p.Groups)
}

// NewPartition builds a Partition without validation. Callers that did not
// obtain the groups from Validate are responsible for the partition invariant.
func NewPartition(groups map[string][]string) Partition {
	p := Partition{Groups: make(map[string][]string, len(groups)), byUser: map[string]string{}}
	for g, members := range groups {
		ms := append([]string(nil), members...)
		sort.Strings(ms)
		p.Groups[g] = ms
		for _, m := range ms {
			p.byUser[m] = g
		}
	}
	return p
}

// Diagnostics describes everything Validate found wrong with a roster.
type Diagnostics struct {
	// ExtraGroups have no marking members. Informational.
	ExtraGroups []string `json:"extra_groups,omitempty"`
	// MissingGroups have marking members but are unknown to the host's group
	// catalog. Informational; usually a bug in the host.
	MissingGroups []string `json:"missing_groups,omitempty"`
	// SingleMemberGroups cannot produce peer ratings. Fatal.
	SingleMemberGroups []string `json:"single_member_groups,omitempty"`
	// ExtraMembers maps a group to its members that also appear in another
	// group. Fatal.
	ExtraMembers map[string][]string `json:"extra_members,omitempty"`
	// MissingMembers are marking users with no group. Fatal.
	MissingMembers []string `json:"missing_members,omitempty"`
}

// Fatal reports whether scoring must not proceed.
func (d Diagnostics) Fatal() bool {
	return len(d.SingleMemberGroups) > 0 || len(d.ExtraMembers) > 0 || len(d.MissingMembers) > 0
}

// Messages renders one line per problem, fatal problems first.
func (d Diagnostics) Messages() []string {
	var out []string
	if len(d.SingleMemberGroups) > 0 {
		out = append(out, "Some groups have fewer than two members; this is not supported by Team Evaluation. The problematic groups are: "+
			strings.Join(d.SingleMemberGroups, ", "))
	}
	for _, g := range sortedKeys(d.ExtraMembers) {
		out = append(out, fmt.Sprintf("Group membership check failed. Some users are in multiple groups. The problem is with these members of %s: %s",
			g, strings.Join(d.ExtraMembers[g], ", ")))
	}
	if len(d.MissingMembers) > 0 {
		out = append(out, "Group membership check failed. These submitting users are not in any group: "+
			strings.Join(d.MissingMembers, ", "))
	}
	if len(d.MissingGroups) > 0 {
		out = append(out, "Some users are in a group that the activity doesn't know about; this is probably a bug. The groups are: "+
			strings.Join(d.MissingGroups, ", "))
	}
	if len(d.ExtraGroups) > 0 {
		out = append(out, "There are some groups with no submitting members. The groups are: "+
			strings.Join(d.ExtraGroups, ", "))
	}
	return out
}

// InconsistentError carries the diagnostics of a roster that failed
// validation.
type InconsistentError struct {
	Diagnostics Diagnostics
}

func (e *InconsistentError) Error() string {
	return "roster inconsistent: " + strings.Join(e.Diagnostics.Messages(), "; ")
}

func (e *InconsistentError) Unwrap() error { return ErrInconsistent }

// Validate checks that groups partition markingUsers into groups of at least
// two. Only marking users are considered members; non-marking users in a group
// are ignored. catalog lists the groups the host knows about; a nil catalog
// accepts every group in groups.
//
// Diagnostics are always returned. The error is an *InconsistentError when
// any fatal condition was found, in which case the Partition is empty.
func Validate(markingUsers []string, groups map[string][]string, catalog []string) (Partition, Diagnostics, error) {
	var d Diagnostics

	marking := toSet(markingUsers)
	var known map[string]struct{}
	if catalog != nil {
		known = toSet(catalog)
	}

	seenIn := map[string][]string{} // user -> groups
	members := map[string][]string{}
	for _, g := range sortedKeys(groups) {
		uniq := map[string]struct{}{}
		for _, u := range groups[g] {
			if _, ok := marking[u]; !ok {
				continue
			}
			if _, dup := uniq[u]; dup {
				continue
			}
			uniq[u] = struct{}{}
			members[g] = append(members[g], u)
			seenIn[u] = append(seenIn[u], g)
		}
		n := len(members[g])
		switch {
		case n == 0:
			d.ExtraGroups = append(d.ExtraGroups, g)
			continue
		case n == 1:
			d.SingleMemberGroups = append(d.SingleMemberGroups, g)
		}
		if known != nil {
			if _, ok := known[g]; !ok {
				d.MissingGroups = append(d.MissingGroups, g)
			}
		}
	}

	for u, gs := range seenIn {
		if len(gs) < 2 {
			continue
		}
		if d.ExtraMembers == nil {
			d.ExtraMembers = map[string][]string{}
		}
		for _, g := range gs {
			d.ExtraMembers[g] = append(d.ExtraMembers[g], u)
		}
	}
	for g := range d.ExtraMembers {
		sort.Strings(d.ExtraMembers[g])
	}

	for _, u := range sortedKeys(marking) {
		if _, ok := seenIn[u]; !ok {
			d.MissingMembers = append(d.MissingMembers, u)
		}
	}

	if d.Fatal() {
		return Partition{}, d, &InconsistentError{Diagnostics: d}
	}
	return NewPartition(members), d, nil
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
