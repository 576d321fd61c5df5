package teameval

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/storage"
	syncx "github.com/mind-engage/teameval/internal/sync"
)

func templateKey(evalID string) string { return "templates/" + evalID + ".yaml" }

func (s *Service) ExportTemplate(ctx context.Context, evalID string) ([]byte, error) {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return nil, err
	}
	return q.Export(ctx, evalID)
}

// ImportTemplate appends the questions of a YAML template.
func (s *Service) ImportTemplate(ctx context.Context, evalID string, data []byte) ([]question.ViewDescriptor, error) {
	q, _, err := s.Questionnaire(ctx, evalID)
	if err != nil {
		return nil, err
	}
	added, err := q.Import(ctx, data)
	if err != nil {
		return nil, s.editFailed(err)
	}
	out := make([]question.ViewDescriptor, 0, len(added))
	for _, p := range added {
		v, err := p.EditingView(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	s.record(ctx, syncx.TypeQuestionsChanged, evalID, map[string]any{"op": "import", "added": len(added)})
	return out, nil
}

// PublishTemplate stores a snapshot of a public evaluation's questionnaire.
func (s *Service) PublishTemplate(ctx context.Context, evalID string) (string, error) {
	ev, err := s.deps.Evaluations.Get(ctx, evalID)
	if err != nil {
		return "", err
	}
	if !ev.Settings.Public {
		return "", ErrNotPublic
	}
	data, err := s.ExportTemplate(ctx, evalID)
	if err != nil {
		return "", err
	}
	return s.deps.Blobs.Put(ctx, templateKey(evalID), bytes.NewReader(data))
}

// ImportFrom copies the questionnaire of public evaluation sourceID into
// evalID, preferring its published snapshot.
func (s *Service) ImportFrom(ctx context.Context, evalID, sourceID string) ([]question.ViewDescriptor, error) {
	src, err := s.deps.Evaluations.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !src.Settings.Public {
		return nil, ErrNotPublic
	}
	data, err := s.snapshot(ctx, sourceID)
	if errors.Is(err, storage.ErrNotFound) {
		data, err = s.ExportTemplate(ctx, sourceID)
	}
	if err != nil {
		return nil, err
	}
	return s.ImportTemplate(ctx, evalID, data)
}

func (s *Service) snapshot(ctx context.Context, evalID string) ([]byte, error) {
	rc, err := s.deps.Blobs.Get(ctx, templateKey(evalID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// PublicTemplates lists evaluations shared as template sources.
func (s *Service) PublicTemplates(ctx context.Context) ([]Evaluation, error) {
	return s.deps.Evaluations.ListPublic(ctx)
}
