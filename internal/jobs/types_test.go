package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drisya/internal/batch"
	"drisya/internal/enhance"
	"drisya/internal/providers/image"
)

func TestJobRequests(t *testing.T) {
	job := Job{Prompt: "ring", TemplateID: "white-marble-luxe", Quality: image.QualityHigh, Size: "512x512", Blurred: true, ProviderOrder: []string{"stability"}}
	reqs := job.Requests([]Image{{ID: "a", OriginalURL: "uploads/a.png"}, {ID: "b", OriginalURL: "uploads/b.png"}})
	require.Len(t, reqs, 2)
	assert.Equal(t, enhance.Request{
		ID:         "b",
		SourcePath: "uploads/b.png",
		Prompt:     "ring",
		TemplateID: "white-marble-luxe",
		Options:    enhance.Options{Size: "512x512", Quality: image.QualityHigh, Blurred: true, Providers: []string{"stability"}},
	}, reqs[1])
}

func TestItemEvent(t *testing.T) {
	at := time.Unix(10, 0)
	res := enhance.Result{RequestID: "b"}
	images := []Image{{ID: "a", Position: 0}, {ID: "b", Position: 1}}
	ev := ItemEvent("job", images, batch.Progress{Completed: 1, Failed: 1, Total: 2, Index: 1, Last: res}, at)
	assert.Equal(t, "b", ev.ImageID)
	assert.Equal(t, 1, ev.Position)
	assert.Equal(t, StatusRunning, ev.Status)
	assert.Equal(t, &res, ev.Result)
	assert.False(t, ev.Final())
}

func TestFinalStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, FinalStatus(3, 3))
	assert.Equal(t, StatusFailed, FinalStatus(2, 3))
	assert.Equal(t, StatusFailed, FinalStatus(0, 0))
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Publish(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a := &recordingSink{err: errors.New("db down")}
	b := &recordingSink{}
	err := Fanout{a, nil, b}.Publish(t.Context(), Event{JobID: "j"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
