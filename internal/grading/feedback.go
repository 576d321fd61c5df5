package grading

import (
	"fmt"
	"strconv"
	"strings"
)

// GradeItem describes the host grade column. It is passed with each request.
type GradeItem struct {
	Max      float64 `json:"max"`
	Decimals int     `json:"decimals"`
}

// Format renders v with the item's precision, two places by default.
func (gi GradeItem) Format(v float64) string {
	d := gi.Decimals
	if d <= 0 {
		d = 2
	}
	s := strconv.FormatFloat(v, 'f', d, 64)
	if gi.Max > 0 {
		return s + " / " + strconv.FormatFloat(gi.Max, 'f', -1, 64)
	}
	return s
}

type QuestionFeedback struct {
	Title    string   `json:"title"`
	Comments []string `json:"comments"`
}

type Feedback struct {
	Original       float64
	Adjusted       float64
	Multiplier     float64
	Incomplete     int
	PenaltyPercent float64
	Questions      []QuestionFeedback
}

// Empty reports whether there is nothing worth telling the user.
func (f Feedback) Empty() bool {
	if f.Incomplete > 0 {
		return false
	}
	for _, q := range f.Questions {
		if len(q.Comments) > 0 {
			return false
		}
	}
	return true
}

type FeedbackFormatter func(f Feedback, item GradeItem) string

// IncompleteSummary is empty when nothing is incomplete.
func IncompleteSummary(n int, penaltyPercent float64) string {
	switch {
	case n <= 0:
		return ""
	case penaltyPercent <= 0 && n == 1:
		return "There is 1 incomplete question."
	case penaltyPercent <= 0:
		return fmt.Sprintf("There are %d incomplete questions.", n)
	}
	return fmt.Sprintf("You have %d incomplete questions, resulting in a %s%% non-completion penalty.",
		n, strconv.FormatFloat(penaltyPercent, 'f', -1, 64))
}

func PlainFeedback(f Feedback, item GradeItem) string {
	var b strings.Builder
	b.WriteString("\n\nTeam evaluation\n")
	fmt.Fprintf(&b, "Your adjusted score: %s (x%.2f)\n", item.Format(f.Adjusted), f.Multiplier)
	if s := IncompleteSummary(f.Incomplete, f.PenaltyPercent); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	first := true
	for _, q := range f.Questions {
		if len(q.Comments) == 0 {
			continue
		}
		if first {
			b.WriteString("Your teammates' feedback\n")
			first = false
		}
		if q.Title != "" {
			b.WriteString(q.Title)
			b.WriteString("\n")
		}
		for _, c := range q.Comments {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	return b.String()
}
