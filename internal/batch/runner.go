// Package batch applies the orchestrator to many requests in fixed-size
// chunks with a pause between chunks.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"drisya/internal/enhance"
	"drisya/internal/infra"
	"drisya/internal/retry"
)

// DefaultWindow is the chunk size used when Options.Window is below 1.
const DefaultWindow = 3

// Enhancer is the single-request operation the runner fans out.
type Enhancer interface {
	Enhance(ctx context.Context, req enhance.Request) enhance.Result
}

// Progress is the counter snapshot emitted after an item resolves.
type Progress struct {
	Completed int
	Failed    int
	Total     int
	// Index is the input position of Last.
	Index int
	Last  enhance.Result
}

// Done reports whether every item has resolved.
func (p Progress) Done() bool { return p.Completed+p.Failed == p.Total }

// ProgressFunc receives progress snapshots. Calls are serialized.
type ProgressFunc func(Progress)

// Options tune a Runner. A Window below 1 uses DefaultWindow. A Delay of
// zero or less runs the chunks back to back.
type Options struct {
	Window int
	Delay  time.Duration
	Sleep  retry.Sleeper
	Logger *infra.Logger
}

type Runner struct {
	enhancer Enhancer
	window   int
	delay    time.Duration
	sleep    retry.Sleeper
	logger   *infra.Logger
}

func NewRunner(e Enhancer, opts Options) *Runner {
	if opts.Window < 1 {
		opts.Window = DefaultWindow
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.SleepContext
	}
	if opts.Logger == nil {
		opts.Logger = infra.NopLogger()
	}
	return &Runner{enhancer: e, window: opts.Window, delay: opts.Delay, sleep: opts.Sleep, logger: opts.Logger}
}

// Run resolves every request and returns the results in input order. Chunk
// N+1 starts only after chunk N has fully settled. Cancelling ctx stops the
// batch at the next chunk boundary; requests already in flight run to
// completion and the rest resolve as Canceled.
func (r *Runner) Run(ctx context.Context, reqs []enhance.Request, progress ProgressFunc) []enhance.Result {
	results := make([]enhance.Result, len(reqs))
	tracker := &tracker{total: len(reqs), fn: progress}

	for start := 0; start < len(reqs); start += r.window {
		end := min(start+r.window, len(reqs))
		if start > 0 && r.delay > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				r.cancelRest(reqs, results, start, tracker)
				break
			}
		}
		if ctx.Err() != nil {
			r.cancelRest(reqs, results, start, tracker)
			break
		}

		r.logger.Debug().Int("from", start).Int("to", end).Int("total", len(reqs)).Msg("batch: running chunk")
		r.runChunk(context.WithoutCancel(ctx), reqs, results, start, end, tracker)
	}

	p := tracker.snapshot()
	r.logger.Info().Int("completed", p.Completed).Int("failed", p.Failed).Int("total", p.Total).Msg("batch: finished")
	return results
}

func (r *Runner) runChunk(ctx context.Context, reqs []enhance.Request, results []enhance.Result, start, end int, t *tracker) {
	var g errgroup.Group
	for i := start; i < end; i++ {
		g.Go(func() error {
			res := r.enhanceOne(ctx, reqs[i])
			results[i] = res
			t.record(i, res)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) enhanceOne(ctx context.Context, req enhance.Request) (res enhance.Result) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error().Interface("panic", v).Str("request_id", req.ID).Msg("batch: enhancer panicked")
			res = failed(req, enhance.KindInternal, fmt.Sprintf("internal error: %v", v))
		}
	}()
	return r.enhancer.Enhance(ctx, req)
}

func (r *Runner) cancelRest(reqs []enhance.Request, results []enhance.Result, from int, t *tracker) {
	r.logger.Warn().Int("remaining", len(reqs)-from).Msg("batch: canceled, skipping remaining requests")
	for i := from; i < len(reqs); i++ {
		results[i] = failed(reqs[i], enhance.KindCanceled, "batch canceled before the request started")
		t.record(i, results[i])
	}
}

func failed(req enhance.Request, kind enhance.ErrorKind, msg string) enhance.Result {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return enhance.Result{RequestID: id, Failure: &enhance.Failure{Kind: kind, Message: msg}}
}

type tracker struct {
	mu        sync.Mutex
	completed int
	failed    int
	total     int
	fn        ProgressFunc
}

func (t *tracker) record(i int, res enhance.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if res.OK() {
		t.completed++
	} else {
		t.failed++
	}
	if t.fn != nil {
		t.fn(Progress{Completed: t.completed, Failed: t.failed, Total: t.total, Index: i, Last: res})
	}
}

func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Progress{Completed: t.completed, Failed: t.failed, Total: t.total}
}
