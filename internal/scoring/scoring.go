// Package scoring turns peer marks into per-user grade multipliers. Compute is
// a pure function of its input.
package scoring

import (
	"math"
	"sort"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/roster"
)

type Settings struct {
	SelfAssessment bool
	AutoRelease    bool
	// Fraction scales the deviation of the multiplier from 1.
	Fraction float64
	// PenaltyPercent is deducted from the multiplier per incomplete question.
	PenaltyPercent float64
}

// Question is one question's contribution to scoring.
type Question struct {
	ID       string
	Scored   bool
	Optional bool
	Marks    question.Marks
	// Answered reports, per rater, whether every expected target was marked.
	Answered map[string]bool
}

// Releases records explicit release actions.
type Releases struct {
	All    bool
	Groups map[string]bool
	Users  map[string]bool
}

func (r Releases) Covers(userID, groupID string) bool {
	return r.All || r.Groups[groupID] || r.Users[userID]
}

type Input struct {
	Settings       Settings
	Partition      roster.Partition
	Questions      []Question
	Releases       Releases
	DeadlinePassed bool
}

type Result struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`

	Multiplier float64 `json:"multiplier"`
	// Raw is the relative score before Fraction and penalties.
	Raw           float64            `json:"raw"`
	Contributions map[string]float64 `json:"contributions,omitempty"`

	IncompleteQuestions      int     `json:"incomplete_questions"`
	CompletionPenaltyApplied bool    `json:"completion_penalty_applied"`
	PenaltyPercent           float64 `json:"penalty_percent"`
	Complete                 bool    `json:"complete"`

	GroupReady     bool `json:"group_ready"`
	MarksAvailable bool `json:"marks_available"`
}

// Compute scores every member of every group in the partition.
func Compute(in Input) map[string]Result {
	out := map[string]Result{}
	for _, g := range in.Partition.GroupIDs() {
		members := sorted(in.Partition.Groups[g])
		results := scoreGroup(in, g, members)

		ready := in.DeadlinePassed
		if !ready {
			ready = true
			for _, u := range members {
				if !results[u].Complete {
					ready = false
					break
				}
			}
		}
		for _, u := range members {
			r := results[u]
			r.GroupReady = ready
			r.MarksAvailable = ready && (in.Settings.AutoRelease || in.Releases.Covers(u, g))
			out[u] = r
		}
	}
	return out
}

func scoreGroup(in Input, groupID string, members []string) map[string]Result {
	rel := map[string]map[string]float64{} // target -> question -> relative
	for _, q := range in.Questions {
		if !q.Scored {
			continue
		}
		for t, v := range relativeScores(q.Marks, members, in.Settings.SelfAssessment) {
			if rel[t] == nil {
				rel[t] = map[string]float64{}
			}
			rel[t][q.ID] = v
		}
	}

	out := make(map[string]Result, len(members))
	for _, u := range members {
		r := Result{UserID: u, GroupID: groupID, Raw: 1, Contributions: rel[u]}
		if len(rel[u]) > 0 {
			qids := make([]string, 0, len(rel[u]))
			for id := range rel[u] {
				qids = append(qids, id)
			}
			sort.Strings(qids)
			sum := 0.0
			for _, id := range qids {
				sum += rel[u][id]
			}
			r.Raw = sum / float64(len(qids))
		}

		for _, q := range in.Questions {
			if !q.Optional && !q.Answered[u] {
				r.IncompleteQuestions++
			}
		}
		r.Complete = r.IncompleteQuestions == 0
		r.Multiplier = Multiplier(r.Raw, in.Settings.Fraction, r.IncompleteQuestions, in.Settings.PenaltyPercent)
		if r.IncompleteQuestions > 0 && in.Settings.PenaltyPercent > 0 {
			r.CompletionPenaltyApplied = true
			r.PenaltyPercent = float64(r.IncompleteQuestions) * in.Settings.PenaltyPercent
		}
		out[u] = r
	}
	return out
}

// relativeScores returns, for each member who received at least one mark
// from a groupmate, their mean received mark divided by the group mean of
// those values. A zero group mean yields 1 for everyone.
func relativeScores(marks question.Marks, members []string, self bool) map[string]float64 {
	received := map[string]float64{}
	var targets []string
	for _, t := range members {
		sum, n := 0.0, 0
		for _, r := range members {
			if r == t && !self {
				continue
			}
			v, ok := marks[r][t]
			if !ok {
				continue
			}
			sum += v
			n++
		}
		if n > 0 {
			received[t] = sum / float64(n)
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	mean := 0.0
	for _, t := range targets {
		mean += received[t]
	}
	mean /= float64(len(targets))

	out := make(map[string]float64, len(targets))
	for _, t := range targets {
		if mean <= 0 {
			out[t] = 1
			continue
		}
		out[t] = received[t] / mean
	}
	return out
}

// Multiplier applies fraction to the raw score, then deducts pct percent per
// incomplete question. The penalties are summed before one clamp at zero.
func Multiplier(raw, fraction float64, incomplete int, pct float64) float64 {
	m := 1 + fraction*(raw-1)
	m -= float64(incomplete) * pct / 100
	if m < 0 || math.IsNaN(m) {
		return 0
	}
	return m
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
