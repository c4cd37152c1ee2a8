// Package replicate runs SDXL predictions on Replicate. A prediction is
// created and then polled until it settles; the output is a hosted URL.
package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"drisya/internal/infra"
	"drisya/internal/providers/image"
)

// ProviderName identifies this client in results and logs.
const ProviderName = "replicate"

const (
	defaultBaseURL        = "https://api.replicate.com"
	defaultVersion        = "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"
	defaultCreateTimeout  = 30 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultPollTimeout    = 60 * time.Second
	defaultPromptStrength = 0.35
	maxErrorBody          = 64 << 10
)

// Options configures the Replicate client.
type Options struct {
	APIToken string
	BaseURL  string
	// Version is the model version hash predictions run against.
	Version        string
	PromptStrength float64
	CreateTimeout  time.Duration
	PollInterval   time.Duration
	PollTimeout    time.Duration
	MaxImageBytes  int64
	HTTPClient     *http.Client
	Logger         *infra.Logger
}

// Client creates predictions and polls them to completion.
type Client struct {
	token          string
	baseURL        string
	version        string
	promptStrength float64
	createTimeout  time.Duration
	pollInterval   time.Duration
	pollTimeout    time.Duration
	maxImageBytes  int64
	httpClient     *http.Client
	logger         *infra.Logger
}

type predictionInput struct {
	Image             string  `json:"image,omitempty"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	PromptStrength    float64 `json:"prompt_strength,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Scheduler         string  `json:"scheduler"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

type errorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = defaultVersion
	}
	strength := opts.PromptStrength
	if strength <= 0 || strength >= 1 {
		strength = defaultPromptStrength
	}
	createTimeout := opts.CreateTimeout
	if createTimeout <= 0 {
		createTimeout = defaultCreateTimeout
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	maxBytes := opts.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = image.DefaultMaxImageBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		token:          strings.TrimSpace(opts.APIToken),
		baseURL:        baseURL,
		version:        version,
		promptStrength: strength,
		createTimeout:  createTimeout,
		pollInterval:   interval,
		pollTimeout:    pollTimeout,
		maxImageBytes:  maxBytes,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

func (c *Client) Name() string       { return ProviderName }
func (c *Client) SupportsEdit() bool { return true }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.token != "" }

// EditImage sends the source as a data URI so SDXL runs image-to-image.
func (c *Client) EditImage(ctx context.Context, in image.EditInput) (image.RawResult, error) {
	if !c.HasCredentials() {
		return image.RawResult{}, c.missingKey(image.OpEdit)
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindRejected, Message: "prompt is required"}
	}
	src, err := image.ValidateSource(ProviderName, in.Image, c.maxImageBytes)
	if err != nil {
		return image.RawResult{}, err
	}
	input := c.input(prompt, in.Options)
	input.Image = "data:" + src.MIME + ";base64," + base64.StdEncoding.EncodeToString(in.Image)
	input.PromptStrength = c.promptStrength
	return c.run(ctx, image.OpEdit, input, in.Options.RequestID)
}

// GenerateImage runs text-to-image on the same model.
func (c *Client) GenerateImage(ctx context.Context, in image.GenerateInput) (image.RawResult, error) {
	if !c.HasCredentials() {
		return image.RawResult{}, c.missingKey(image.OpGenerate)
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpGenerate, Kind: image.KindRejected, Message: "prompt is required"}
	}
	input := c.input(prompt, in.Options)
	if neg := strings.TrimSpace(in.NegativePrompt); neg != "" {
		input.NegativePrompt = neg
	}
	input.Width, input.Height = image.SizeDimensions(in.Options.Size)
	return c.run(ctx, image.OpGenerate, input, in.Options.RequestID)
}

func (c *Client) input(prompt string, opts image.Options) predictionInput {
	return predictionInput{
		Prompt:            prompt,
		NegativePrompt:    image.DefaultNegativePrompt,
		GuidanceScale:     7.5,
		NumInferenceSteps: stepsFor(opts.Quality),
		Scheduler:         "K_EULER_ANCESTRAL",
	}
}

func (c *Client) run(ctx context.Context, op image.Op, input predictionInput, requestID string) (image.RawResult, error) {
	body, err := json.Marshal(predictionRequest{Version: c.version, Input: input})
	if err != nil {
		return image.RawResult{}, fmt.Errorf("replicate: encode request: %w", err)
	}
	createCtx, cancel := context.WithTimeout(ctx, c.createTimeout)
	raw, err := c.do(createCtx, op, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body))
	cancel()
	if err != nil {
		return image.RawResult{}, err
	}
	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: op, Kind: image.KindRejected, Message: "decode prediction", Err: err}
	}
	c.logger.Debug().Str("provider", ProviderName).Str("prediction", pred.ID).Str("request_id", requestID).Msg("replicate: prediction created")
	return c.poll(ctx, op, pred)
}

// poll follows a prediction until it settles or PollTimeout elapses. Polls
// that fail with a retryable error are repeated; anything else ends the call.
func (c *Client) poll(ctx context.Context, op image.Op, pred prediction) (image.RawResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	url := pred.URLs.Get
	if url == "" {
		url = c.baseURL + "/v1/predictions/" + pred.ID
	}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		switch pred.Status {
		case "succeeded":
			out := outputURL(pred.Output)
			if out == "" {
				if op == image.OpEdit {
					return image.RawResult{}, fmt.Errorf("replicate: prediction %s has no output: %w", pred.ID, image.ErrEditUnsupported)
				}
				return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: op, Kind: image.KindRejected, Message: "prediction returned no output"}
			}
			return image.RawResult{RemoteURL: out}, nil
		case "failed", "canceled":
			msg := "prediction " + pred.Status
			if pred.Error != nil {
				msg = fmt.Sprint(pred.Error)
			}
			return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: op, Kind: image.KindRejected, Code: "prediction_" + pred.Status, Message: msg}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: op, Kind: image.KindProviderUnavailable, Message: "prediction timed out", Err: ctx.Err()}
			}
			return image.RawResult{}, image.ClassifyTransport(ProviderName, op, ctx.Err())
		case <-ticker.C:
		}

		raw, err := c.do(ctx, op, http.MethodGet, url, nil)
		if err != nil {
			if image.KindOf(err).Retryable() && ctx.Err() == nil {
				c.logger.Debug().Err(err).Str("prediction", pred.ID).Msg("replicate: poll failed, retrying")
				continue
			}
			return image.RawResult{}, err
		}
		var next prediction
		if err := json.Unmarshal(raw, &next); err != nil {
			return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: op, Kind: image.KindRejected, Message: "decode prediction", Err: err}
		}
		if next.ID == "" {
			next.ID = pred.ID
		}
		pred = next
	}
}

func (c *Client) do(ctx context.Context, op image.Op, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, image.ClassifyTransport(ProviderName, op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var detail errorResponse
		code, message := "", strings.TrimSpace(string(raw))
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
			code, message = detail.Title, detail.Detail
		}
		return nil, image.ClassifyHTTP(ProviderName, op, resp.StatusCode, resp.Header, code, message)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, image.ClassifyTransport(ProviderName, op, err)
	}
	return raw, nil
}

func (c *Client) missingKey(op image.Op) error {
	return &image.ProviderError{Provider: ProviderName, Op: op, Kind: image.KindUnauthorized, Message: "api token is not configured", Err: image.ErrMissingAPIKey}
}

// outputURL accepts both the list and the single string output shapes.
func outputURL(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, u := range list {
			if u = strings.TrimSpace(u); u != "" {
				return u
			}
		}
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	return ""
}

func stepsFor(q image.Quality) int {
	switch q {
	case image.QualityUltra:
		return 40
	case image.QualityHigh:
		return 30
	default:
		return 20
	}
}

var _ image.Provider = (*Client)(nil)
