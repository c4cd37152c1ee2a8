package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drisya/internal/http/handlers"
	"drisya/internal/jobs"
	"drisya/internal/templates"
)

const jobID = "6f1d3a52-1c9e-4f55-9d4b-2f0b9a7e8c11"

type fakeJobs struct {
	mu     sync.Mutex
	states []jobs.Job
	images []jobs.Image
	err    error
}

func (f *fakeJobs) Get(_ context.Context, id string) (jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return jobs.Job{}, f.err
	}
	if id != jobID || len(f.states) == 0 {
		return jobs.Job{}, jobs.ErrNotFound
	}
	job := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return job, nil
}

func (f *fakeJobs) Images(context.Context, string) ([]jobs.Image, error) {
	return f.images, nil
}

type fakeEvents struct {
	snapshot *jobs.Event
	live     []jobs.Event
	subErr   error
}

func (f *fakeEvents) Snapshot(context.Context, string) (jobs.Event, bool, error) {
	if f.snapshot == nil {
		return jobs.Event{}, false, nil
	}
	return *f.snapshot, true, nil
}

func (f *fakeEvents) Subscribe(context.Context, string) (<-chan jobs.Event, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	ch := make(chan jobs.Event, len(f.live))
	for _, ev := range f.live {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func running(done, failed int) jobs.Job {
	return jobs.Job{ID: jobID, Status: jobs.StatusRunning, TotalItems: 4, CompletedItems: done, FailedItems: failed}
}

func newServer(t *testing.T, fj *fakeJobs, events handlers.EventSource, opts Options) http.Handler {
	t.Helper()
	app := handlers.NewApp(fj, templates.Default(), nil)
	app.PollInterval = time.Millisecond
	app.Heartbeat = time.Hour
	if events != nil {
		app.Events = events
	}
	return NewRouter(app, zerolog.Nop(), opts)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func sseEvents(t *testing.T, body string) []jobs.Event {
	t.Helper()
	var out []jobs.Event
	for _, block := range strings.Split(body, "\n\n") {
		for _, line := range strings.Split(block, "\n") {
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev jobs.Event
				require.NoError(t, json.Unmarshal([]byte(data), &ev))
				out = append(out, ev)
			}
		}
	}
	return out
}

func TestHealthz(t *testing.T) {
	rec := get(newServer(t, &fakeJobs{}, nil, Options{}), "/v1/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	app := handlers.NewApp(&fakeJobs{}, templates.Default(), nil)
	app.Checks["postgres"] = func(context.Context) error { return nil }
	app.Checks["redis"] = func(context.Context) error { return errors.New("dial tcp: refused") }
	rec := get(NewRouter(app, zerolog.Nop(), Options{}), "/v1/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
}

func TestGetJob(t *testing.T) {
	fj := &fakeJobs{
		states: []jobs.Job{running(1, 1)},
		images: []jobs.Image{{ID: "img-1", Status: jobs.StatusCompleted, ProcessedURL: "enhanced/a.png"}},
	}
	h := newServer(t, fj, nil, Options{})

	rec := get(h, "/v1/jobs/"+jobID)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(50), body["progress"])
	assert.Equal(t, "running", body["status"])
	assert.Len(t, body["images"], 1)

	assert.Equal(t, http.StatusNotFound, get(h, "/v1/jobs/unknown").Code)
}

func TestGetJobStoreError(t *testing.T) {
	h := newServer(t, &fakeJobs{err: errors.New("pool closed")}, nil, Options{})
	rec := get(h, "/v1/jobs/"+jobID)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to load job"}`, rec.Body.String())
}

func TestListTemplates(t *testing.T) {
	h := newServer(t, &fakeJobs{}, nil, Options{})
	rec := get(h, "/v1/templates?category=jewelry")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Templates []map[string]any `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Templates)
	assert.Equal(t, "ivory-silk-luxury-scene", body.Templates[0]["id"])
	assert.NotContains(t, body.Templates[0], "DiffusionPrompt")

	rec = get(h, "/v1/templates?category=food")
	assert.JSONEq(t, `{"templates":[]}`, rec.Body.String())
}

func TestJobEventsStreamsLiveEvents(t *testing.T) {
	snap := jobs.Event{JobID: jobID, Status: jobs.StatusRunning, Completed: 1, Total: 4}
	events := &fakeEvents{
		snapshot: &snap,
		live: []jobs.Event{
			{JobID: jobID, Status: jobs.StatusRunning, Completed: 2, Total: 4},
			{JobID: jobID, Status: jobs.StatusCompleted, Completed: 4, Total: 4, ZipURL: "archives/x.zip"},
			{JobID: jobID, Status: jobs.StatusRunning, Completed: 9, Total: 4},
		},
	}
	h := newServer(t, &fakeJobs{states: []jobs.Job{running(0, 0)}}, events, Options{})

	rec := get(h, "/v1/jobs/"+jobID+"/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	got := sseEvents(t, rec.Body.String())
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Completed)
	assert.Equal(t, 2, got[1].Completed)
	assert.True(t, got[2].Final())
	assert.Equal(t, "archives/x.zip", got[2].ZipURL)
	assert.Contains(t, rec.Body.String(), "id: 3\nevent: progress\n")
}

func TestJobEventsPollsWithoutEventSource(t *testing.T) {
	done := running(4, 0)
	done.Status = jobs.StatusCompleted
	fj := &fakeJobs{states: []jobs.Job{running(1, 0), running(1, 0), running(2, 1), done}}
	h := newServer(t, fj, nil, Options{})

	got := sseEvents(t, get(h, "/v1/jobs/"+jobID+"/events").Body.String())
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Completed)
	assert.Equal(t, 1, got[1].Failed)
	assert.Equal(t, jobs.StatusCompleted, got[2].Status)
}

func TestJobEventsFallsBackWhenSubscribeFails(t *testing.T) {
	done := running(3, 1)
	done.Status = jobs.StatusFailed
	fj := &fakeJobs{states: []jobs.Job{running(0, 0), done}}
	h := newServer(t, fj, &fakeEvents{subErr: errors.New("redis down")}, Options{})

	got := sseEvents(t, get(h, "/v1/jobs/"+jobID+"/events").Body.String())
	require.Len(t, got, 2)
	assert.Equal(t, jobs.StatusFailed, got[1].Status)
}

func TestJobEventsFinishedJobSendsSingleEvent(t *testing.T) {
	done := running(4, 0)
	done.Status = jobs.StatusCompleted
	h := newServer(t, &fakeJobs{states: []jobs.Job{done}}, &fakeEvents{}, Options{})
	got := sseEvents(t, get(h, "/v1/jobs/"+jobID+"/events").Body.String())
	require.Len(t, got, 1)
	assert.True(t, got[0].Final())

	assert.Equal(t, http.StatusNotFound, get(h, "/v1/jobs/other/events").Code)
}

func TestJobEventsRateLimited(t *testing.T) {
	done := running(4, 0)
	done.Status = jobs.StatusCompleted
	h := newServer(t, &fakeJobs{states: []jobs.Job{done}}, nil, Options{EventsRateLimit: 1, EventsRateWindow: time.Minute})

	assert.Equal(t, http.StatusOK, get(h, "/v1/jobs/"+jobID+"/events").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/v1/jobs/"+jobID+"/events").Code)
	assert.Equal(t, http.StatusOK, get(h, "/v1/jobs/"+jobID).Code)
}

func TestOpenAPIDocument(t *testing.T) {
	rec := get(newServer(t, &fakeJobs{}, nil, Options{}), "/v1/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc["paths"], "/v1/jobs/{id}/events")
}
