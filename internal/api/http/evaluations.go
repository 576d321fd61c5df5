package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/teameval/internal/rbac"
	"github.com/mind-engage/teameval/internal/roster"
	"github.com/mind-engage/teameval/internal/teameval"
)

// RosterWriter stores rosters pushed by the host.
type RosterWriter interface {
	Put(ctx context.Context, evalID string, u roster.Upload) error
}

type evaluationResp struct {
	teameval.Evaluation
	Capabilities []string `json:"capabilities"` // what the caller may do
}

// GET /evaluations/{evalID}
func GetEvaluationHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := svc.Get(r.Context(), chi.URLParam(r, "evalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, evaluationResp{Evaluation: ev, Capabilities: rbac.Capabilities(r)})
	}
}

// PUT /evaluations/{evalID}
func PutSettingsHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := teameval.DefaultSettings()
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		ev, err := svc.UpdateSettings(r.Context(), chi.URLParam(r, "evalID"), s)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// PUT /evaluations/{evalID}/minimum-deadline  {"minimum_deadline": RFC3339|null}
func PutMinimumDeadlineHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MinimumDeadline *time.Time `json:"minimum_deadline"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		ev, err := svc.SetMinimumDeadline(r.Context(), chi.URLParam(r, "evalID"), req.MinimumDeadline)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// PUT /evaluations/{evalID}/roster
// Accepts a JSON roster.Upload, or a multipart CSV file with columns
// group,user[,visible]. CSV rows name marking users.
func PutRosterHandler(svc *teameval.Service, store RosterWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evalID := chi.URLParam(r, "evalID")
		if _, err := svc.Get(r.Context(), evalID); err != nil {
			writeError(w, err)
			return
		}
		var up roster.Upload
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			if up, err = parseRosterCSV(f); err != nil {
				http.Error(w, "bad csv: "+err.Error(), http.StatusBadRequest)
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.Put(r.Context(), evalID, up); err != nil {
			writeError(w, err)
			return
		}
		d, err := svc.RosterCheck(r.Context(), evalID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rosterReport(d))
	}
}

// GET /evaluations/{evalID}/roster/check
func RosterCheckHandler(svc *teameval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.RosterCheck(r.Context(), chi.URLParam(r, "evalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rosterReport(d))
	}
}

func rosterReport(d roster.Diagnostics) map[string]any {
	return map[string]any{
		"usable":      !d.Fatal(),
		"messages":    d.Messages(),
		"diagnostics": d,
	}
}

func parseRosterCSV(r io.Reader) (roster.Upload, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return roster.Upload{}, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"group", "user"} {
		if _, ok := idx[k]; !ok {
			return roster.Upload{}, errors.New("missing column: " + k)
		}
	}
	up := roster.Upload{Groups: map[string][]string{}}
	seen := map[string]bool{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return roster.Upload{}, err
		}
		g, u := strings.TrimSpace(rec[idx["group"]]), strings.TrimSpace(rec[idx["user"]])
		if g == "" || u == "" {
			continue
		}
		up.Groups[g] = append(up.Groups[g], u)
		if !seen[u] {
			seen[u] = true
			up.MarkingUsers = append(up.MarkingUsers, u)
		}
		if i, ok := idx["visible"]; ok && i < len(rec) {
			switch strings.ToLower(strings.TrimSpace(rec[i])) {
			case "1", "true", "yes":
				up.Visible = append(up.Visible, u)
			}
		}
	}
	return up, nil
}
