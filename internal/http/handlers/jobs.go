package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"drisya/internal/jobs"
)

type jobResponse struct {
	jobs.Job
	Progress int          `json:"progress"`
	Images   []jobs.Image `json:"images"`
}

// GetJob returns the job row, its progress percentage and per-image outcomes.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			a.error(w, http.StatusNotFound, "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("load job failed")
		a.error(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	images, err := a.Jobs.Images(r.Context(), id)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", id).Msg("load job images failed")
		a.error(w, http.StatusInternalServerError, "failed to load job images")
		return
	}
	if images == nil {
		images = []jobs.Image{}
	}
	a.json(w, http.StatusOK, jobResponse{Job: job, Progress: progressPercent(job), Images: images})
}

func progressPercent(job jobs.Job) int {
	if job.TotalItems <= 0 {
		return 0
	}
	return (job.CompletedItems + job.FailedItems) * 100 / job.TotalItems
}
