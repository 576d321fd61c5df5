package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/teameval/internal/auth/middleware"
	"github.com/mind-engage/teameval/internal/rbac"
	"github.com/mind-engage/teameval/internal/teameval"
)

// Gradebook mounts LMS gradebook administration; optional.
type Gradebook interface {
	Routes(r chi.Router)
	EvaluationRoutes(r chi.Router)
}

type RouterDeps struct {
	Service   *teameval.Service
	Auth      *authmw.AuthService
	Rosters   RosterWriter
	Limiter   *SubmitLimiter
	Gradebook Gradebook
}

// Mount registers the authenticated evaluation API on r.
func Mount(r chi.Router, d RouterDeps) {
	svc := d.Service
	isSelf := func(r *http.Request) bool {
		return authmw.SubjectFromContext(r.Context()) == chi.URLParam(r, "userID")
	}

	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))

		pr.Get("/question-types", QuestionTypesHandler())
		pr.With(rbac.Require(rbac.PermCreateQuestionnaire)).Get("/templates", PublicTemplatesHandler(svc))

		pr.Route("/evaluations/{evalID}", func(er chi.Router) {
			er.Get("/", GetEvaluationHandler(svc))
			er.With(rbac.Require(rbac.PermChangeSettings)).Put("/", PutSettingsHandler(svc))
			er.With(rbac.Require(rbac.PermRoster)).Put("/minimum-deadline", PutMinimumDeadlineHandler(svc))
			er.With(rbac.Require(rbac.PermRoster)).Put("/roster", PutRosterHandler(svc, d.Rosters))
			er.With(rbac.RequireAny(rbac.PermRoster, rbac.PermViewAllTeams)).Get("/roster/check", RosterCheckHandler(svc))

			er.With(rbac.Require(rbac.PermCreateQuestionnaire)).Get("/questionnaire", EditorHandler(svc))
			er.With(rbac.Require(rbac.PermCreateQuestionnaire)).Post("/questions", AddQuestionHandler(svc))
			er.With(rbac.Require(rbac.PermCreateQuestionnaire)).Post("/questions/order", ReorderHandler(svc))
			er.With(rbac.Require(rbac.PermCreateQuestionnaire)).Put("/questions/{questionID}", UpdateQuestionHandler(svc))
			er.With(rbac.Require(rbac.PermCreateQuestionnaire)).Delete("/questions/{questionID}", DeleteQuestionHandler(svc))
			er.With(rbac.Require(rbac.PermInvalidateAssessment)).Post("/questions/{questionID}/review", ReviewCommentHandler(svc))

			er.With(rbac.Require(rbac.PermSubmitQuestionnaire)).Get("/form", FormHandler(svc))
			er.With(rbac.Require(rbac.PermSubmitQuestionnaire)).Get("/questions/{questionID}/view", SubmissionViewHandler(svc))
			er.With(rbac.Require(rbac.PermSubmitQuestionnaire), d.Limiter.Middleware).
				Post("/questions/{questionID}/responses", SubmitHandler(svc))
			er.With(rbac.Require(rbac.PermSubmitQuestionnaire)).Delete("/responses/mine", ResetOwnHandler(svc))

			er.With(rbac.Require(rbac.PermViewAllTeams)).Get("/scores", ScoresHandler(svc))
			er.With(rbac.RequireOwnerOr(rbac.PermViewAllTeams, isSelf)).Get("/scores/{userID}", UserScoreHandler(svc))
			er.With(rbac.Require(rbac.PermRelease)).Get("/releases", ListReleasesHandler(svc))
			er.With(rbac.Require(rbac.PermRelease)).Post("/releases", ReleaseHandler(svc))
			er.With(rbac.Require(rbac.PermGrade)).Post("/grades", AdjustGradesHandler(svc))
			er.With(rbac.Require(rbac.PermReset)).Post("/reset", ResetHandler(svc))
			er.With(rbac.Require(rbac.PermViewAllTeams)).Get("/events", EventsHandler(svc))

			er.With(rbac.Require(rbac.PermCreateQuestionnaire)).Get("/template", ExportTemplateHandler(svc))
			er.With(rbac.Require(rbac.PermCreateQuestionnaire)).Post("/template", ImportTemplateHandler(svc))
			er.With(rbac.Require(rbac.PermChangeSettings)).Post("/template/publish", PublishTemplateHandler(svc))

			if d.Gradebook != nil {
				er.With(rbac.Require(rbac.PermGrade)).Group(d.Gradebook.EvaluationRoutes)
			}
		})

		if d.Gradebook != nil {
			pr.With(rbac.Require(rbac.PermGrade)).Group(d.Gradebook.Routes)
		}
	})
}
