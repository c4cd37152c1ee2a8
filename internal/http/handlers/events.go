package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"drisya/internal/jobs"
)

// JobEvents streams job progress as server-sent events. The first event is
// the current state; the stream ends after a terminal event.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	job, err := a.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			a.error(w, http.StatusNotFound, "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("load job failed")
		a.error(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	var live <-chan jobs.Event
	current := eventFromJob(job)
	if a.Events != nil && !current.Final() {
		live, err = a.Events.Subscribe(ctx, id)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", id).Msg("subscribe failed, polling instead")
			live = nil
		}
		if snap, ok, err := a.Events.Snapshot(ctx, id); err == nil && ok {
			current = snap
		}
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &eventStream{w: w, rc: http.NewResponseController(w)}
	if err := s.send(current); err != nil || current.Final() {
		return
	}
	if live != nil {
		a.streamLive(s, r, live)
		return
	}
	a.streamPolled(s, r, id, current)
}

func (a *App) streamLive(s *eventStream, r *http.Request, live <-chan jobs.Event) {
	heartbeat := time.NewTicker(a.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			if err := s.send(ev); err != nil || ev.Final() {
				return
			}
		case <-heartbeat.C:
			if err := s.comment("ping"); err != nil {
				return
			}
		}
	}
}

func (a *App) streamPolled(s *eventStream, r *http.Request, id string, last jobs.Event) {
	ticker := time.NewTicker(a.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			job, err := a.Jobs.Get(r.Context(), id)
			if err != nil {
				a.Logger.Warn().Err(err).Str("job_id", id).Msg("poll job failed")
				return
			}
			ev := eventFromJob(job)
			if ev.Status == last.Status && ev.Completed == last.Completed && ev.Failed == last.Failed {
				continue
			}
			last = ev
			if err := s.send(ev); err != nil || ev.Final() {
				return
			}
		}
	}
}

func eventFromJob(job jobs.Job) jobs.Event {
	return jobs.Event{
		JobID:     job.ID,
		Status:    job.Status,
		Completed: job.CompletedItems,
		Failed:    job.FailedItems,
		Total:     job.TotalItems,
		ZipURL:    job.ZipURL,
		At:        job.UpdatedAt,
	}
}

type eventStream struct {
	w   http.ResponseWriter
	rc  *http.ResponseController
	seq int
}

func (s *eventStream) send(ev jobs.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: progress\ndata: %s\n\n", s.seq, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *eventStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.rc.Flush()
}
