package main

import (
	"context"
	"fmt"
	"time"

	"drisya/internal/batch"
	"drisya/internal/jobs"
)

func (w *jobWorker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll", w.poll).Msg("worker: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		j, err := w.store.Claim(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: failed to claim job")
		}
		if err != nil || j == nil {
			if !w.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		w.handleJob(ctx, *j)
	}
}

func (w *jobWorker) wait(ctx context.Context) bool {
	t := time.NewTimer(w.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// handleJob runs every image of j through the batch runner and finalizes the
// job. Bookkeeping uses a context detached from shutdown so a job that was
// started is always closed out.
func (w *jobWorker) handleJob(ctx context.Context, j jobs.Job) {
	logger := w.logger.With().Str("job_id", j.ID).Logger()
	logger.Info().Int("items", j.TotalItems).Msg("worker: picked job")
	bg := context.WithoutCancel(ctx)

	images, err := w.store.Images(bg, j.ID)
	if err != nil {
		logger.Error().Err(err).Msg("worker: load images failed")
		w.finish(bg, j.ID, jobs.StatusFailed, "", 0, 0, 0, "could not load job images")
		return
	}
	if len(images) == 0 {
		w.finish(bg, j.ID, jobs.StatusFailed, "", 0, 0, 0, "job has no images")
		return
	}

	results := w.runner.Run(ctx, j.Requests(images), func(p batch.Progress) {
		if err := w.events.Publish(bg, jobs.ItemEvent(j.ID, images, p, w.now())); err != nil {
			logger.Warn().Err(err).Int("index", p.Index).Msg("worker: publish progress failed")
		}
	})

	completed := 0
	for i, res := range results {
		if res.OK() {
			images[i].ProcessedURL = res.Success.StoredRef
			completed++
		}
	}
	failed := len(results) - completed

	zipURL := ""
	if completed > 0 {
		ref, rep, err := jobs.Archive(bg, w.files, j.ID, images, w.tempDir)
		if err != nil {
			logger.Error().Err(err).Msg("worker: archive failed")
		} else {
			zipURL = ref
			logger.Info().Int("written", rep.Written).Int("skipped", len(rep.Skipped)).Str("zip", ref).Msg("worker: archive stored")
		}
	}

	status := jobs.FinalStatus(completed, len(images))
	errMsg := ""
	if status == jobs.StatusFailed {
		errMsg = fmt.Sprintf("%d of %d images failed", failed, len(images))
	}
	w.finish(bg, j.ID, status, zipURL, completed, failed, len(images), errMsg)
}

func (w *jobWorker) finish(ctx context.Context, jobID string, status jobs.Status, zipURL string, completed, failed, total int, errMsg string) {
	if err := w.store.Finish(ctx, jobID, status, zipURL, errMsg); err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: update status failed")
	}
	ev := jobs.Event{
		JobID:     jobID,
		Status:    status,
		Completed: completed,
		Failed:    failed,
		Total:     total,
		ZipURL:    zipURL,
		At:        w.now(),
	}
	if err := w.events.Publish(ctx, ev); err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: publish final event failed")
	}
	w.logger.Info().Str("job_id", jobID).Str("status", string(status)).Int("completed", completed).Int("failed", failed).Msg("worker: job finished")
}
