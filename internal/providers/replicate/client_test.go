package replicate

import (
	"bytes"
	"encoding/json"
	stdimage "image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drisya/internal/providers/image"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, stdimage.NewGray(stdimage.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

// scripted answers the create call with created and each later poll with the
// next entry of polls, repeating the last one.
type scripted struct {
	mu      sync.Mutex
	created string
	polls   []*http.Response
	bodies  []string
	create  map[string]any
	gets    int
	auth    []string
}

func (s *scripted) roundTrip(t *testing.T) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.auth = append(s.auth, req.Header.Get("Authorization"))
		if req.Method == http.MethodPost {
			assert.Equal(t, "/v1/predictions", req.URL.Path)
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&s.create))
			return respond(201, s.created), nil
		}
		assert.Equal(t, "/v1/predictions/p1", req.URL.Path)
		i := min(s.gets, len(s.bodies)-1)
		s.gets++
		if s.polls != nil && s.polls[i] != nil {
			return s.polls[i], nil
		}
		return respond(200, s.bodies[i]), nil
	}
}

func newTestClient(t *testing.T, rt roundTripFunc, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{APIToken: "r8-test", PollInterval: time.Millisecond, HTTPClient: &http.Client{Transport: rt}}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func TestEditImagePollsUntilSucceeded(t *testing.T) {
	s := &scripted{
		created: `{"id":"p1","status":"starting"}`,
		bodies: []string{
			`{"id":"p1","status":"processing"}`,
			`{"id":"p1","status":"succeeded","output":["https://replicate.delivery/out.png"]}`,
		},
	}
	client := newTestClient(t, s.roundTrip(t), nil)

	res, err := client.EditImage(t.Context(), image.EditInput{Image: samplePNG(t), Prompt: "velvet tray", Options: image.Options{Quality: image.QualityHigh}})
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.delivery/out.png", res.RemoteURL)
	assert.Empty(t, res.Data)
	assert.Equal(t, 2, s.gets)
	for _, a := range s.auth {
		assert.Equal(t, "Token r8-test", a)
	}

	assert.Equal(t, defaultVersion, s.create["version"])
	input := s.create["input"].(map[string]any)
	assert.True(t, strings.HasPrefix(input["image"].(string), "data:image/png;base64,"), input["image"])
	assert.Equal(t, "velvet tray", input["prompt"])
	assert.EqualValues(t, 0.35, input["prompt_strength"])
	assert.EqualValues(t, 30, input["num_inference_steps"])
	assert.Equal(t, "K_EULER_ANCESTRAL", input["scheduler"])
}

func TestGenerateImageAcceptsStringOutput(t *testing.T) {
	s := &scripted{
		created: `{"id":"p1","status":"starting"}`,
		bodies:  []string{`{"id":"p1","status":"succeeded","output":"https://replicate.delivery/one.png"}`},
	}
	client := newTestClient(t, s.roundTrip(t), nil)

	res, err := client.GenerateImage(t.Context(), image.GenerateInput{Prompt: "ring", Options: image.Options{Size: "1792x1024"}})
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.delivery/one.png", res.RemoteURL)
	input := s.create["input"].(map[string]any)
	assert.Nil(t, input["image"])
	assert.EqualValues(t, 1792, input["width"])
	assert.EqualValues(t, 1024, input["height"])
}

func TestFailedPredictionIsTerminal(t *testing.T) {
	s := &scripted{
		created: `{"id":"p1","status":"starting"}`,
		bodies:  []string{`{"id":"p1","status":"failed","error":"NSFW content detected"}`},
	}
	client := newTestClient(t, s.roundTrip(t), nil)

	_, err := client.GenerateImage(t.Context(), image.GenerateInput{Prompt: "ring"})
	pe, ok := image.AsProviderError(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, image.KindRejected, pe.Kind)
	assert.Equal(t, "prediction_failed", pe.Code)
	assert.Contains(t, pe.Error(), "NSFW content detected")
}

func TestPollTimeoutIsRetryable(t *testing.T) {
	s := &scripted{
		created: `{"id":"p1","status":"starting"}`,
		bodies:  []string{`{"id":"p1","status":"processing"}`},
	}
	client := newTestClient(t, s.roundTrip(t), func(o *Options) { o.PollTimeout = 20 * time.Millisecond })

	_, err := client.GenerateImage(t.Context(), image.GenerateInput{Prompt: "ring"})
	pe, ok := image.AsProviderError(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, image.KindProviderUnavailable, pe.Kind)
	assert.True(t, pe.Kind.Retryable())
	assert.Contains(t, pe.Error(), "timed out")
}

func TestTransientPollErrorsAreSkipped(t *testing.T) {
	s := &scripted{
		created: `{"id":"p1","status":"starting"}`,
		bodies:  []string{"", `{"id":"p1","status":"succeeded","output":["https://replicate.delivery/out.png"]}`},
		polls:   []*http.Response{respond(503, `{"title":"Service Unavailable","detail":"try again"}`), nil},
	}
	client := newTestClient(t, s.roundTrip(t), nil)

	res, err := client.GenerateImage(t.Context(), image.GenerateInput{Prompt: "ring"})
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.delivery/out.png", res.RemoteURL)
	assert.Equal(t, 2, s.gets)
}

func TestCreateErrorsAreClassified(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		resp := respond(429, `{"title":"Too Many Requests","detail":"Request was throttled."}`)
		resp.Header.Set("Retry-After", "4")
		return resp, nil
	}, nil)

	_, err := client.GenerateImage(t.Context(), image.GenerateInput{Prompt: "ring"})
	pe, ok := image.AsProviderError(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, image.KindRateLimited, pe.Kind)
	assert.Equal(t, 4*time.Second, pe.RetryAfter)
	assert.Contains(t, pe.Error(), "Request was throttled.")
}

func TestEditImageRejectsInvalidSourceWithoutCalling(t *testing.T) {
	called := false
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		called = true
		return respond(200, `{}`), nil
	}, nil)
	_, err := client.EditImage(t.Context(), image.EditInput{Image: []byte("not an image"), Prompt: "p"})
	assert.Equal(t, image.KindInvalidImage, image.KindOf(err))
	assert.False(t, called)
}

func TestMissingToken(t *testing.T) {
	client, err := NewClient(Options{})
	require.NoError(t, err)
	_, err = client.GenerateImage(t.Context(), image.GenerateInput{Prompt: "p"})
	assert.ErrorIs(t, err, image.ErrMissingAPIKey)
	assert.Equal(t, image.KindUnauthorized, image.KindOf(err))
}
