package questionnaire

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/teameval/internal/question"
)

const TemplateVersion = 1

// Template is the portable form of a questionnaire.
type Template struct {
	Version   int                `yaml:"version"`
	Title     string             `yaml:"title,omitempty"`
	Questions []TemplateQuestion `yaml:"questions"`
}

type TemplateQuestion struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// Export renders the questionnaire as a YAML template.
func (q *Questionnaire) Export(ctx context.Context, title string) ([]byte, error) {
	recs, err := q.deps.Configs.List(ctx, q.evalID)
	if err != nil {
		return nil, err
	}
	t := Template{Version: TemplateVersion, Title: title, Questions: make([]TemplateQuestion, 0, len(recs))}
	for _, r := range recs {
		cfg := map[string]any{}
		if len(r.Config) > 0 {
			if err := json.Unmarshal(r.Config, &cfg); err != nil {
				return nil, fmt.Errorf("question %s: %w", r.ID, err)
			}
		}
		t.Questions = append(t.Questions, TemplateQuestion{Type: r.Type, Config: cfg})
	}
	return yaml.Marshal(t)
}

// ParseTemplate decodes and checks a YAML template.
func ParseTemplate(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, question.Invalid("template", err.Error())
	}
	if t.Version != TemplateVersion {
		return Template{}, question.Invalid("version", fmt.Sprintf("unsupported template version %d", t.Version))
	}
	for i, tq := range t.Questions {
		if _, ok := question.Lookup(tq.Type); !ok {
			return Template{}, question.Invalid(fmt.Sprintf("questions[%d].type", i), "unknown question type "+tq.Type)
		}
	}
	return t, nil
}

// Import appends the template's questions. The whole import is refused when
// the questionnaire is locked.
func (q *Questionnaire) Import(ctx context.Context, data []byte) ([]question.Plugin, error) {
	t, err := ParseTemplate(data)
	if err != nil {
		return nil, err
	}
	var added []question.Plugin
	err = q.exclusive(ctx, func() error {
		if err := q.requireOpen(ctx, "import"); err != nil {
			return err
		}
		// configure everything first so a bad entry saves nothing
		pending := make([]question.Plugin, 0, len(t.Questions))
		for i, tq := range t.Questions {
			cfg, err := json.Marshal(tq.Config)
			if err != nil {
				return fmt.Errorf("questions[%d]: %w", i, err)
			}
			p, err := question.New(q.env(), question.Record{Type: tq.Type})
			if err != nil {
				return fmt.Errorf("questions[%d]: %w", i, err)
			}
			if err := p.Configure(cfg); err != nil {
				return fmt.Errorf("questions[%d]: %w", i, err)
			}
			pending = append(pending, p)
		}
		next, err := q.nextOrdinal(ctx)
		if err != nil {
			return err
		}
		for i, p := range pending {
			if _, err := p.Save(ctx, next+i); err != nil {
				return err
			}
			added = append(added, p)
		}
		return nil
	})
	return added, err
}
