package teameval

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/teameval/internal/question"
)

var ErrDeadlineTooEarly = errors.New("deadline is before the minimum deadline")

// Settings configures one evaluation.
type Settings struct {
	Enabled        bool       `json:"enabled"`
	SelfAssessment bool       `json:"self_assessment_allowed"`
	AutoRelease    bool       `json:"auto_release"`
	Public         bool       `json:"public"`
	Fraction       float64    `json:"adjustment_fraction" validate:"gte=0,lte=1"`
	PenaltyPercent float64    `json:"non_completion_penalty_percent" validate:"gte=0,lte=100"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:        true,
		AutoRelease:    true,
		Fraction:       0.5,
		PenaltyPercent: 10,
	}
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}()

// Validate checks ranges and that the deadline is not before minDeadline.
func (s Settings) Validate(minDeadline *time.Time) error {
	verr := &question.ValidationError{}
	if err := validate.Struct(s); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return err
		}
		for _, fe := range ves {
			verr.Add(fe.Field(), fmt.Sprintf("must be %s %s", bound(fe.Tag()), fe.Param()))
		}
	}
	if s.Deadline != nil && minDeadline != nil && s.Deadline.Before(*minDeadline) {
		verr.Add("deadline", ErrDeadlineTooEarly.Error())
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func bound(tag string) string {
	switch tag {
	case "gte":
		return "at least"
	case "lte":
		return "at most"
	}
	return tag
}
