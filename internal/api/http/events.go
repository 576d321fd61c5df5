package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/teameval/internal/teameval"
)

// GET /evaluations/{evalID}/events?after=<seq>&limit=<n>
func EventsHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, err := queryInt(r, "after", 0)
		if err != nil {
			http.Error(w, "bad after", http.StatusBadRequest)
			return
		}
		limit, err := queryInt(r, "limit", 100)
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		evs, err := svc.Events(r.Context(), chi.URLParam(r, "evalID"), after, int(limit))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, evs)
	}
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
