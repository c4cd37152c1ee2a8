// Package huggingface calls instruction-following image edit models (Qwen
// Image Edit, FLUX Kontext) on the Hugging Face Inference API. These models
// only edit; there is no text-to-image path.
package huggingface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"drisya/internal/infra"
	"drisya/internal/providers/image"
)

// ProviderName identifies this client in results and logs.
const ProviderName = "huggingface"

const (
	defaultBaseURL     = "https://api-inference.huggingface.co/models"
	defaultModel       = "auto"
	defaultEditTimeout = 120 * time.Second
	maxErrorBody       = 64 << 10
)

// Models maps the short model keys accepted in configuration to repository IDs.
var Models = map[string]string{
	"auto":         "Qwen/Qwen-Image-Edit-2509",
	"qwen-2509":    "Qwen/Qwen-Image-Edit-2509",
	"flux-kontext": "black-forest-labs/FLUX.1-Kontext-dev",
}

// ModelKeys lists the keys of Models in a stable order.
func ModelKeys() []string {
	keys := make([]string, 0, len(Models))
	for k := range Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options configures the Hugging Face client. Model is either a key of
// Models or a full repository ID such as "org/model".
type Options struct {
	APIToken      string
	BaseURL       string
	Model         string
	EditTimeout   time.Duration
	MaxImageBytes int64
	HTTPClient    *http.Client
	Logger        *infra.Logger
}

type Client struct {
	token         string
	baseURL       string
	model         string
	editTimeout   time.Duration
	maxImageBytes int64
	httpClient    *http.Client
	logger        *infra.Logger
}

type editRequest struct {
	Inputs struct {
		Image  string `json:"image"`
		Prompt string `json:"prompt"`
	} `json:"inputs"`
}

type errorResponse struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
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
	model, err := resolveModel(opts.Model)
	if err != nil {
		return nil, err
	}
	editTimeout := opts.EditTimeout
	if editTimeout <= 0 {
		editTimeout = defaultEditTimeout
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
		token:         strings.TrimSpace(opts.APIToken),
		baseURL:       baseURL,
		model:         model,
		editTimeout:   editTimeout,
		maxImageBytes: maxBytes,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

func resolveModel(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultModel
	}
	if repo, ok := Models[strings.ToLower(name)]; ok {
		return repo, nil
	}
	if strings.Contains(name, "/") {
		return name, nil
	}
	return "", fmt.Errorf("huggingface: unknown model %q (known: %s)", name, strings.Join(ModelKeys(), ", "))
}

func (c *Client) Name() string       { return ProviderName }
func (c *Client) SupportsEdit() bool { return true }

// Model returns the repository ID requests are sent to.
func (c *Client) Model() string { return c.model }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.token != "" }

// EditImage posts the base64 source and the instruction as JSON inputs. The
// model answers with raw image bytes.
func (c *Client) EditImage(ctx context.Context, in image.EditInput) (image.RawResult, error) {
	if !c.HasCredentials() {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindUnauthorized, Message: "api token is not configured", Err: image.ErrMissingAPIKey}
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindRejected, Message: "prompt is required"}
	}
	if _, err := image.ValidateSource(ProviderName, in.Image, c.maxImageBytes); err != nil {
		return image.RawResult{}, err
	}
	var payload editRequest
	payload.Inputs.Image = base64.StdEncoding.EncodeToString(in.Image)
	payload.Inputs.Prompt = prompt
	body, err := json.Marshal(payload)
	if err != nil {
		return image.RawResult{}, fmt.Errorf("huggingface: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.editTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.model, bytes.NewReader(body))
	if err != nil {
		return image.RawResult{}, fmt.Errorf("huggingface: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return image.RawResult{}, image.ClassifyTransport(ProviderName, image.OpEdit, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return image.RawResult{}, classify(resp, raw)
	}
	if strings.Contains(contentType, "application/json") {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err := classify(resp, raw); err != nil {
			return image.RawResult{}, err
		}
		return image.RawResult{}, fmt.Errorf("huggingface: %s answered without an image: %w", c.model, image.ErrEditUnsupported)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return image.RawResult{}, image.ClassifyTransport(ProviderName, image.OpEdit, err)
	}
	if len(data) == 0 {
		return image.RawResult{}, fmt.Errorf("huggingface: empty response: %w", image.ErrEditUnsupported)
	}
	mime := http.DetectContentType(data)
	if strings.HasPrefix(contentType, "image/") {
		mime = contentType
	}
	c.logger.Debug().Str("provider", ProviderName).Str("model", c.model).Int("bytes", len(data)).Str("request_id", in.Options.RequestID).Msg("huggingface: edit completed")
	return image.RawResult{Data: data, MIME: mime}, nil
}

// GenerateImage always fails with image.ErrGenerateUnsupported.
func (c *Client) GenerateImage(_ context.Context, _ image.GenerateInput) (image.RawResult, error) {
	return image.RawResult{}, fmt.Errorf("huggingface: %s: %w", c.model, image.ErrGenerateUnsupported)
}

// classify maps an error body onto a ProviderError. A model that is still
// loading is reported as unavailable with its estimated load time. A 2xx JSON
// body without an error yields nil.
func classify(resp *http.Response, raw []byte) error {
	var detail errorResponse
	_ = json.Unmarshal(raw, &detail)
	message := strings.TrimSpace(detail.Error)
	if message == "" && resp.StatusCode >= 300 {
		message = strings.TrimSpace(string(raw))
	}
	if strings.Contains(strings.ToLower(message), "loading") {
		pe := &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindProviderUnavailable, HTTPStatus: resp.StatusCode, Code: "model_loading", Message: message}
		if detail.EstimatedTime > 0 {
			pe.RetryAfter = time.Duration(math.Min(detail.EstimatedTime, image.MaxRetryAfter.Seconds()) * float64(time.Second))
			pe.HasRetryAfter = true
		}
		return pe
	}
	if resp.StatusCode >= 300 {
		return image.ClassifyHTTP(ProviderName, image.OpEdit, resp.StatusCode, resp.Header, "", message)
	}
	if message != "" {
		return &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindRejected, HTTPStatus: resp.StatusCode, Message: message}
	}
	return nil
}

var _ image.Provider = (*Client)(nil)
