package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/teameval/internal/teameval"
)

const maxTemplateBytes = 1 << 20

// GET /evaluations/{evalID}/template
func ExportTemplateHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evalID := chi.URLParam(r, "evalID")
		data, err := svc.ExportTemplate(r.Context(), evalID)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Disposition", `attachment; filename="teameval-`+evalID+`.yaml"`)
		_, _ = w.Write(data)
	}
}

// POST /evaluations/{evalID}/template
// Imports a YAML body, or copies the public evaluation named by ?from=.
func ImportTemplateHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evalID := chi.URLParam(r, "evalID")
		if from := r.URL.Query().Get("from"); from != "" {
			added, err := svc.ImportFrom(r.Context(), evalID, from)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, added)
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBytes))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		added, err := svc.ImportTemplate(r.Context(), evalID, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, added)
	}
}

// POST /evaluations/{evalID}/template/publish
func PublishTemplateHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := svc.PublishTemplate(r.Context(), chi.URLParam(r, "evalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key})
	}
}

// GET /templates
func PublicTemplatesHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evs, err := svc.PublicTemplates(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, evs)
	}
}
