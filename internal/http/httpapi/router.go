package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"drisya/internal/http/handlers"
	"drisya/internal/middleware"
)

// Options configure cross-cutting middleware.
type Options struct {
	AllowedOrigins   []string
	EventsRateLimit  int
	EventsRateWindow time.Duration
}

func NewRouter(app *handlers.App, logger zerolog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Get("/v1/templates", app.ListTemplates)

	r.Route("/v1/jobs/{id}", func(r chi.Router) {
		r.Get("/", app.GetJob)
		r.With(middleware.RateLimit(opts.EventsRateLimit, opts.EventsRateWindow)).Get("/events", app.JobEvents)
	})

	return r
}
