package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"drisya/internal/infra"
	"drisya/internal/jobs"
	"drisya/internal/templates"
)

// JobReader loads job rows.
type JobReader interface {
	Get(ctx context.Context, id string) (jobs.Job, error)
	Images(ctx context.Context, jobID string) ([]jobs.Image, error)
}

// EventSource streams progress events pushed by the worker.
type EventSource interface {
	Snapshot(ctx context.Context, jobID string) (jobs.Event, bool, error)
	Subscribe(ctx context.Context, jobID string) (<-chan jobs.Event, error)
}

// TemplateCatalog lists background templates.
type TemplateCatalog interface {
	List(category string) []templates.Template
}

type App struct {
	Jobs      JobReader
	Templates TemplateCatalog
	// Events is optional. Without it the event stream polls Jobs.
	Events EventSource
	// Checks are run by the readiness probe, keyed by dependency name.
	Checks map[string]func(context.Context) error
	Logger *infra.Logger

	Heartbeat    time.Duration
	PollInterval time.Duration
}

func NewApp(jobReader JobReader, catalog TemplateCatalog, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{
		Jobs:         jobReader,
		Templates:    catalog,
		Logger:       logger,
		Checks:       map[string]func(context.Context) error{},
		Heartbeat:    15 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
