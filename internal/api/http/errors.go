package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/teameval/internal/question"
	"github.com/mind-engage/teameval/internal/questionnaire"
	"github.com/mind-engage/teameval/internal/response"
	"github.com/mind-engage/teameval/internal/roster"
	"github.com/mind-engage/teameval/internal/storage"
	"github.com/mind-engage/teameval/internal/teameval"
)

type errorBody struct {
	Error       string              `json:"error"`
	State       string              `json:"state,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Hint        string              `json:"hint,omitempty"`
	Fields      map[string]string   `json:"fields,omitempty"`
	Diagnostics *roster.Diagnostics `json:"diagnostics,omitempty"`
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, teameval.ErrNotFound),
		errors.Is(err, question.ErrNotFound),
		errors.Is(err, response.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, question.ErrStructuralEditRejected),
		errors.Is(err, question.ErrHasResponses),
		errors.Is(err, question.ErrSubmissionClosed):
		return http.StatusConflict
	case errors.Is(err, question.ErrValidation),
		errors.Is(err, roster.ErrInconsistent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, teameval.ErrNotMember),
		errors.Is(err, teameval.ErrNotPublic):
		return http.StatusForbidden
	case errors.Is(err, questionnaire.ErrQuestionIDsOutOfSync),
		errors.Is(err, question.ErrUnknownType),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}

	var se *question.StructuralEditError
	if errors.As(err, &se) {
		body.State = se.State.String()
		body.Reason = se.Reason()
		body.Hint = se.Hint()
	}
	var closed *question.SubmissionClosedError
	if errors.As(err, &closed) {
		body.Reason = closed.Reason
	}
	var verr *question.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	var ie *roster.InconsistentError
	if errors.As(err, &ie) {
		body.Diagnostics = &ie.Diagnostics
	}

	status := statusOf(err)
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
