// Package jobs tracks bulk enhancement jobs: their rows in Postgres, the
// progress events published while they run, and the final archive.
package jobs

import (
	"context"
	"errors"
	"time"

	"drisya/internal/batch"
	"drisya/internal/enhance"
	"drisya/internal/providers/image"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("jobs: not found")

// ErrDuplicateImage is returned by Create when the same original is listed
// twice for one job.
var ErrDuplicateImage = errors.New("jobs: image listed twice")

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one bulk enhancement request and its counters.
type Job struct {
	ID             string        `json:"id"`
	Status         Status        `json:"status"`
	Prompt         string        `json:"prompt"`
	TemplateID     string        `json:"template_id,omitempty"`
	Quality        image.Quality `json:"quality"`
	Size           string        `json:"size"`
	Blurred        bool          `json:"blurred"`
	ProviderOrder  []string      `json:"provider_order,omitempty"`
	TotalItems     int           `json:"total_items"`
	CompletedItems int           `json:"completed_items"`
	FailedItems    int           `json:"failed_items"`
	ZipURL         string        `json:"zip_url,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// Image is one source photo of a job and its outcome.
type Image struct {
	ID           string   `json:"id"`
	JobID        string   `json:"job_id"`
	Position     int      `json:"position"`
	OriginalURL  string   `json:"original_url"`
	ProcessedURL string   `json:"processed_url,omitempty"`
	Status       Status   `json:"status"`
	Provider     string   `json:"provider,omitempty"`
	Method       string   `json:"method,omitempty"`
	CostEstimate float64  `json:"cost_estimate,omitempty"`
	Attempts     int      `json:"attempts"`
	ElapsedMS    int64    `json:"elapsed_ms,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Hints        []string `json:"hints,omitempty"`
}

// NewJob is the input to PGStore.Create. Originals are readable paths or
// store references of the source photos, in order.
type NewJob struct {
	Prompt        string
	TemplateID    string
	Quality       image.Quality
	Size          string
	Blurred       bool
	ProviderOrder []string
	Originals     []string
}

// Requests turns the job's images into orchestrator requests. Image IDs
// become request IDs so results map back to rows.
func (j Job) Requests(images []Image) []enhance.Request {
	reqs := make([]enhance.Request, 0, len(images))
	for _, img := range images {
		reqs = append(reqs, enhance.Request{
			ID:         img.ID,
			SourcePath: img.OriginalURL,
			Prompt:     j.Prompt,
			TemplateID: j.TemplateID,
			Options: enhance.Options{
				Size:      j.Size,
				Quality:   j.Quality,
				Blurred:   j.Blurred,
				Providers: j.ProviderOrder,
			},
		})
	}
	return reqs
}

// Event is a progress notification for one job.
type Event struct {
	JobID     string          `json:"job_id"`
	Status    Status          `json:"status"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Total     int             `json:"total"`
	ImageID   string          `json:"image_id,omitempty"`
	Position  int             `json:"position"`
	Result    *enhance.Result `json:"result,omitempty"`
	ZipURL    string          `json:"zip_url,omitempty"`
	At        time.Time       `json:"at"`
}

// Final reports whether the job has reached a terminal status.
func (e Event) Final() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// ItemEvent builds the event for the item at p.Index of images.
func ItemEvent(jobID string, images []Image, p batch.Progress, at time.Time) Event {
	ev := Event{
		JobID:     jobID,
		Status:    StatusRunning,
		Completed: p.Completed,
		Failed:    p.Failed,
		Total:     p.Total,
		Position:  p.Index,
		At:        at,
	}
	if p.Index >= 0 && p.Index < len(images) {
		ev.ImageID = images[p.Index].ID
		ev.Position = images[p.Index].Position
	}
	res := p.Last
	ev.Result = &res
	return ev
}

// FinalStatus is completed only when every item succeeded.
func FinalStatus(completed, total int) Status {
	if total > 0 && completed == total {
		return StatusCompleted
	}
	return StatusFailed
}

// Sink receives progress events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout delivers each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
