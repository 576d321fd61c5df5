// Package httpchi exposes gradebook link administration over chi.
package httpchi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/teameval/pkg/lti-ags-gradebook/gradebook"
)

// Links is the writable side of the gradebook store.
type Links interface {
	PutLink(ctx context.Context, link gradebook.Link) error
	MapUser(ctx context.Context, localUserID, platformSub string) error
	Statuses(ctx context.Context, evalID string) ([]gradebook.Status, error)
}

type API struct {
	Links    Links
	validate *validator.Validate
}

func New(links Links) *API { return &API{Links: links, validate: validator.New()} }

// Routes mounts site-wide routes.
func (a *API) Routes(r chi.Router) {
	r.Put("/gradebook/users/{user}", a.putUser)
}

// EvaluationRoutes mounts per-evaluation routes on a router whose pattern
// carries {evalID}.
func (a *API) EvaluationRoutes(r chi.Router) {
	r.Put("/gradebook/link", a.putLink)
	r.Get("/gradebook/status", a.getStatus)
}

func (a *API) putLink(w http.ResponseWriter, r *http.Request) {
	var link gradebook.Link
	if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	link.EvalID = chi.URLParam(r, "evalID")
	if err := a.validate.Struct(link); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := a.Links.PutLink(r.Context(), link); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, link)
}

type userReq struct {
	PlatformSub string `json:"platform_sub"`
}

func (a *API) putUser(w http.ResponseWriter, r *http.Request) {
	var req userReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	req.PlatformSub = strings.TrimSpace(req.PlatformSub)
	if req.PlatformSub == "" {
		http.Error(w, "platform_sub required", http.StatusBadRequest)
		return
	}
	if err := a.Links.MapUser(r.Context(), chi.URLParam(r, "user"), req.PlatformSub); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (a *API) getStatus(w http.ResponseWriter, r *http.Request) {
	out, err := a.Links.Statuses(r.Context(), chi.URLParam(r, "evalID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
