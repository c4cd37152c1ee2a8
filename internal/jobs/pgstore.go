package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"drisya/internal/enhance"
	"drisya/internal/infra"
	"drisya/internal/providers/image"
	"drisya/internal/sqlinline"
)

type sqlDB interface {
	infra.SQLExecutor
	InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error
}

// PGStore persists jobs and per-image outcomes through marker-tagged
// queries.
type PGStore struct {
	db sqlDB
}

func NewPGStore(db sqlDB) *PGStore {
	return &PGStore{db: db}
}

// Create inserts a queued job and one row per original.
func (s *PGStore) Create(ctx context.Context, in NewJob) (Job, []Image, error) {
	if len(in.Originals) == 0 {
		return Job{}, nil, errors.New("jobs: at least one image is required")
	}
	if strings.TrimSpace(in.Prompt) == "" && in.TemplateID == "" {
		return Job{}, nil, errors.New("jobs: prompt or template is required")
	}
	quality := image.NormalizeQuality(string(in.Quality))
	job := Job{
		ID:            uuid.NewString(),
		Status:        StatusQueued,
		Prompt:        strings.TrimSpace(in.Prompt),
		TemplateID:    in.TemplateID,
		Quality:       quality,
		Size:          image.NormalizeSize(in.Size),
		Blurred:       in.Blurred,
		ProviderOrder: in.ProviderOrder,
		TotalItems:    len(in.Originals),
	}
	if job.ProviderOrder == nil {
		job.ProviderOrder = []string{}
	}
	images := make([]Image, len(in.Originals))

	err := s.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		row := tx.QueryRow(ctx, sqlinline.QInsertJob,
			job.ID, job.Prompt, job.TemplateID, string(job.Quality), job.Size, job.Blurred, job.ProviderOrder, job.TotalItems)
		if err := row.Scan(&job.CreatedAt); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		for i, original := range in.Originals {
			images[i] = Image{ID: uuid.NewString(), JobID: job.ID, Position: i, OriginalURL: original, Status: StatusQueued}
			if _, err := tx.Exec(ctx, sqlinline.QInsertJobImage, images[i].ID, job.ID, i, original); err != nil {
				if infra.IsUniqueViolation(err) {
					return fmt.Errorf("%w: %s", ErrDuplicateImage, original)
				}
				return fmt.Errorf("insert job image %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return Job{}, nil, err
	}
	job.UpdatedAt = job.CreatedAt
	return job, images, nil
}

// Claim moves the oldest queued job to running. It returns nil when the
// queue is empty.
func (s *PGStore) Claim(ctx context.Context) (*Job, error) {
	var (
		job     Job
		quality string
	)
	err := s.db.QueryRow(ctx, sqlinline.QWorkerClaimJob).Scan(
		&job.ID,
		&job.Prompt,
		&job.TemplateID,
		&quality,
		&job.Size,
		&job.Blurred,
		&job.ProviderOrder,
		&job.TotalItems,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	job.Status = StatusRunning
	job.Quality = image.Quality(quality)
	return &job, nil
}

// RequeueStale returns running jobs untouched for longer than olderThan to
// the queue.
func (s *PGStore) RequeueStale(ctx context.Context, olderThan string) (int64, error) {
	tag, err := s.db.Exec(ctx, sqlinline.QWorkerRequeueStale, olderThan)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Job{}, ErrNotFound
	}
	var (
		job             Job
		status, quality string
	)
	err := s.db.QueryRow(ctx, sqlinline.QSelectJob, id).Scan(
		&job.ID,
		&status,
		&job.Prompt,
		&job.TemplateID,
		&quality,
		&job.Size,
		&job.Blurred,
		&job.ProviderOrder,
		&job.TotalItems,
		&job.CompletedItems,
		&job.FailedItems,
		&job.ZipURL,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	job.Status = Status(status)
	job.Quality = image.Quality(quality)
	return job, nil
}

func (s *PGStore) Images(ctx context.Context, jobID string) ([]Image, error) {
	rows, err := s.db.Query(ctx, sqlinline.QListJobImages, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var (
			img    Image
			status string
		)
		if err := rows.Scan(
			&img.ID,
			&img.JobID,
			&img.Position,
			&img.OriginalURL,
			&img.ProcessedURL,
			&status,
			&img.Provider,
			&img.Method,
			&img.CostEstimate,
			&img.Attempts,
			&img.ElapsedMS,
			&img.ErrorKind,
			&img.ErrorMessage,
			&img.Hints,
		); err != nil {
			return nil, fmt.Errorf("scan job image: %w", err)
		}
		img.Status = Status(status)
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job images: %w", err)
	}
	return out, nil
}

// Publish records an item outcome and the job counters in one transaction.
// Events without an item are ignored; Finish writes the terminal state.
func (s *PGStore) Publish(ctx context.Context, ev Event) error {
	if ev.ImageID == "" || ev.Result == nil {
		return nil
	}
	return s.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		if err := recordResult(ctx, tx, ev.ImageID, *ev.Result); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlinline.QUpdateJobProgress, ev.JobID, ev.Completed, ev.Failed); err != nil {
			return fmt.Errorf("update job progress: %w", err)
		}
		return nil
	})
}

func recordResult(ctx context.Context, tx infra.SQLExecutor, imageID string, res enhance.Result) error {
	if s := res.Success; s != nil {
		_, err := tx.Exec(ctx, sqlinline.QRecordImageSuccess,
			imageID, s.StoredRef, s.Provider, string(s.Method), s.CostEstimate, s.Attempts, s.ElapsedMillis())
		if err != nil {
			return fmt.Errorf("record image success: %w", err)
		}
		return nil
	}
	f := res.Failure
	if f == nil {
		f = &enhance.Failure{Kind: enhance.KindInternal, Message: "empty result"}
	}
	hints := f.Hints
	if hints == nil {
		hints = []string{}
	}
	_, err := tx.Exec(ctx, sqlinline.QRecordImageFailure,
		imageID, string(f.Kind), f.Message, hints, f.Attempts, f.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("record image failure: %w", err)
	}
	return nil
}

// Finish writes the terminal status, archive reference and error message.
func (s *PGStore) Finish(ctx context.Context, jobID string, status Status, zipURL, errMsg string) error {
	tag, err := s.db.Exec(ctx, sqlinline.QFinishJob, jobID, string(status), zipURL, errMsg)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
