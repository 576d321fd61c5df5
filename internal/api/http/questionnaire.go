package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/teameval/internal/auth/middleware"
	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/teameval"
)

// GET /evaluations/{evalID}/questionnaire
func EditorHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Editor(r.Context(), chi.URLParam(r, "evalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /question-types
func QuestionTypesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, question.Types())
	}
}

type questionReq struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// POST /evaluations/{evalID}/questions
func AddQuestionHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Type == "" {
			http.Error(w, "type required", http.StatusBadRequest)
			return
		}
		v, err := svc.AddQuestion(r.Context(), chi.URLParam(r, "evalID"), req.Type, req.Config)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

// PUT /evaluations/{evalID}/questions/{questionID}
func UpdateQuestionHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		v, err := svc.UpdateQuestion(r.Context(), chi.URLParam(r, "evalID"), chi.URLParam(r, "questionID"), req.Config)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DELETE /evaluations/{evalID}/questions/{questionID}
func DeleteQuestionHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteQuestion(r.Context(), chi.URLParam(r, "evalID"), chi.URLParam(r, "questionID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /evaluations/{evalID}/questions/order  {"ids": [...]}
func ReorderHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.ReorderQuestions(r.Context(), chi.URLParam(r, "evalID"), req.IDs); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /evaluations/{evalID}/form
func FormHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		views, err := svc.Form(r.Context(), chi.URLParam(r, "evalID"), sub)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// GET /evaluations/{evalID}/questions/{questionID}/view
func SubmissionViewHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		v, err := svc.SubmissionView(r.Context(), chi.URLParam(r, "evalID"), sub, chi.URLParam(r, "questionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// POST /evaluations/{evalID}/questions/{questionID}/responses
// Body is the question type's submission payload, e.g. {"bob": 4}.
func SubmitHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		complete, err := svc.Submit(r.Context(), chi.URLParam(r, "evalID"), sub, chi.URLParam(r, "questionID"), data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"complete": complete})
	}
}

// DELETE /evaluations/{evalID}/responses/mine
func ResetOwnHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if err := svc.ResetOwn(r.Context(), chi.URLParam(r, "evalID"), sub); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /evaluations/{evalID}/questions/{questionID}/review
// {"rater": "...", "target": "...", "rejected": true}
func ReviewCommentHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Rater    string `json:"rater"`
			Target   string `json:"target"`
			Rejected bool   `json:"rejected"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Rater == "" || req.Target == "" {
			http.Error(w, "rater and target required", http.StatusBadRequest)
			return
		}
		err := svc.ReviewComment(r.Context(), chi.URLParam(r, "evalID"), chi.URLParam(r, "questionID"),
			req.Rater, req.Target, req.Rejected)
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
