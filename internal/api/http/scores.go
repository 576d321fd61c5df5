package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/teameval/internal/grading"
	"github.com/mind-engage/teameval/internal/scoring"
	"github.com/mind-engage/teameval/internal/teameval"
)

// GET /evaluations/{evalID}/scores
func ScoresHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Score(r.Context(), chi.URLParam(r, "evalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /evaluations/{evalID}/scores/{userID}
// Until marks are available the user only learns that they are pending.
func UserScoreHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.ScoreFor(r.Context(), chi.URLParam(r, "evalID"), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if !res.MarksAvailable {
			res = scoring.Result{
				UserID:              res.UserID,
				GroupID:             res.GroupID,
				IncompleteQuestions: res.IncompleteQuestions,
				Complete:            res.Complete,
				GroupReady:          res.GroupReady,
			}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /evaluations/{evalID}/releases  {"level": "all|group|user", "target": "..."}
func ReleaseHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rel teameval.Release
		if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.Release(r.Context(), chi.URLParam(r, "evalID"), rel); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rel)
	}
}

// GET /evaluations/{evalID}/releases
func ListReleasesHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rels, err := svc.Releases(r.Context(), chi.URLParam(r, "evalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if rels == nil {
			rels = []teameval.Release{}
		}
		writeJSON(w, http.StatusOK, rels)
	}
}

type gradesReq struct {
	Grades    grading.Grades    `json:"grades"`
	Item      grading.GradeItem `json:"item"`
	Permitted *bool             `json:"permitted,omitempty"`
}

// POST /evaluations/{evalID}/grades
// grades is a single {"userid","rawgrade"} record or a map keyed by user id;
// the response keeps the shape.
func AdjustGradesHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradesReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		permitted := req.Permitted == nil || *req.Permitted
		out, err := svc.AdjustGrades(r.Context(), chi.URLParam(r, "evalID"), req.Grades, req.Item, permitted)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /evaluations/{evalID}/reset  {"responses": true, "questionnaire": false}
func ResetHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var opts teameval.ResetOptions
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.ResetUserData(r.Context(), chi.URLParam(r, "evalID"), opts); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
