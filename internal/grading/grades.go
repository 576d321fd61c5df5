package grading

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Grade is one host grade record. A nil RawGrade on output means the user
// is not yet gradeable.
type Grade struct {
	UserID   string   `json:"userid"`
	RawGrade *float64 `json:"rawgrade"`
	Feedback string   `json:"feedback,omitempty"`
}

// Grades is either a single record or a map of user id to record, and
// round-trips in the same shape.
type Grades struct {
	Single *Grade
	ByUser map[string]Grade
}

// All lists the records ordered by user id.
func (g Grades) All() []Grade {
	if g.Single != nil {
		return []Grade{*g.Single}
	}
	out := make([]Grade, 0, len(g.ByUser))
	for uid, one := range g.ByUser {
		if one.UserID == "" {
			one.UserID = uid
		}
		out = append(out, one)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (g Grades) MarshalJSON() ([]byte, error) {
	if g.Single != nil {
		return json.Marshal(g.Single)
	}
	if g.ByUser == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(g.ByUser)
}

func (g *Grades) UnmarshalJSON(b []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return fmt.Errorf("grades: %w", err)
	}
	if _, single := probe["userid"]; single {
		var one Grade
		if err := json.Unmarshal(b, &one); err != nil {
			return fmt.Errorf("grade: %w", err)
		}
		*g = Grades{Single: &one}
		return nil
	}
	m := make(map[string]Grade, len(probe))
	for uid, raw := range probe {
		var one Grade
		if err := json.Unmarshal(raw, &one); err != nil {
			return fmt.Errorf("grade %s: %w", uid, err)
		}
		if one.UserID == "" {
			one.UserID = uid
		}
		m[uid] = one
	}
	*g = Grades{ByUser: m}
	return nil
}
