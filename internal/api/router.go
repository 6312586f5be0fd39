package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/captionforge/internal/api/middleware"
	"github.com/kiranshivaraju/captionforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler   http.HandlerFunc
	ListModels      http.HandlerFunc
	GenerateCaption http.HandlerFunc
	CreateJob       http.HandlerFunc
	ListJobs        http.HandlerFunc
	GetJob          http.HandlerFunc
	PauseJob        http.HandlerFunc
	ResumeJob       http.HandlerFunc
	CancelJob       http.HandlerFunc
	StreamJob       http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/vision/models", orNotImplemented(deps.ListModels))
		r.Post("/api/v1/vision/generate", orNotImplemented(deps.GenerateCaption))

		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreateJob))
			r.Get("/", orNotImplemented(deps.ListJobs))

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", orNotImplemented(deps.GetJob))
				r.Post("/pause", orNotImplemented(deps.PauseJob))
				r.Post("/resume", orNotImplemented(deps.ResumeJob))
				r.Post("/cancel", orNotImplemented(deps.CancelJob))
				r.Get("/stream", orNotImplemented(deps.StreamJob))
			})
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
