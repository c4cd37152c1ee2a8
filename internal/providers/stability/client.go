package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"drisya/internal/infra"
	"drisya/internal/providers/image"
)

// ProviderName identifies this client in results and logs.
const ProviderName = "stability"

const (
	defaultBaseURL         = "https://api.stability.ai"
	defaultEngine          = "stable-diffusion-xl-1024-v1-0"
	defaultEditTimeout     = 120 * time.Second
	defaultGenerateTimeout = 60 * time.Second
	defaultImageStrength   = 0.35
	defaultCFGScale        = 5
	maxErrorBody           = 64 << 10
)

// Options configures the Stability AI client.
type Options struct {
	APIKey          string
	BaseURL         string
	Engine          string
	ImageStrength   float64
	EditTimeout     time.Duration
	GenerateTimeout time.Duration
	MaxImageBytes   int64
	HTTPClient      *http.Client
	Logger          *infra.Logger
}

// Client calls the Stability v1 generation endpoints. Both endpoints answer
// with base64 artifacts, so results always carry inline data.
type Client struct {
	apiKey          string
	baseURL         string
	engine          string
	imageStrength   float64
	editTimeout     time.Duration
	generateTimeout time.Duration
	maxImageBytes   int64
	httpClient      *http.Client
	logger          *infra.Logger
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type textToImageRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CFGScale    int          `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
}

type artifactsResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
		Seed         int64  `json:"seed"`
	} `json:"artifacts"`
}

type errorResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	engine := strings.TrimSpace(opts.Engine)
	if engine == "" {
		engine = defaultEngine
	}
	strength := opts.ImageStrength
	if strength <= 0 || strength >= 1 {
		strength = defaultImageStrength
	}
	editTimeout := opts.EditTimeout
	if editTimeout <= 0 {
		editTimeout = defaultEditTimeout
	}
	generateTimeout := opts.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = defaultGenerateTimeout
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
		apiKey:          strings.TrimSpace(opts.APIKey),
		baseURL:         baseURL,
		engine:          engine,
		imageStrength:   strength,
		editTimeout:     editTimeout,
		generateTimeout: generateTimeout,
		maxImageBytes:   maxBytes,
		httpClient:      httpClient,
		logger:          logger,
	}, nil
}

// Name implements image.Provider.
func (c *Client) Name() string { return ProviderName }

// SupportsEdit implements image.Provider.
func (c *Client) SupportsEdit() bool { return true }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// EditImage runs image-to-image with the source as init image. A low image
// strength keeps the product intact while the prompt restyles the scene.
func (c *Client) EditImage(ctx context.Context, in image.EditInput) (image.RawResult, error) {
	if !c.HasCredentials() {
		return image.RawResult{}, c.missingKey(image.OpEdit)
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindRejected, Message: "prompt is required"}
	}
	if _, err := image.ValidateSource(ProviderName, in.Image, c.maxImageBytes); err != nil {
		return image.RawResult{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("init_image", "init_image.png")
	if err != nil {
		return image.RawResult{}, fmt.Errorf("stability: build multipart: %w", err)
	}
	if _, err := part.Write(in.Image); err != nil {
		return image.RawResult{}, fmt.Errorf("stability: build multipart: %w", err)
	}
	fields := [][2]string{
		{"init_image_mode", "IMAGE_STRENGTH"},
		{"image_strength", strconv.FormatFloat(c.imageStrength, 'f', 2, 64)},
		{"steps", strconv.Itoa(stepsFor(in.Options.Quality))},
		{"cfg_scale", strconv.Itoa(defaultCFGScale)},
		{"samples", "1"},
		{"text_prompts[0][text]", prompt},
		{"text_prompts[0][weight]", "1"},
		{"text_prompts[1][text]", image.DefaultNegativePrompt},
		{"text_prompts[1][weight]", "-1"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return image.RawResult{}, fmt.Errorf("stability: build multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return image.RawResult{}, fmt.Errorf("stability: build multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.editTimeout)
	defer cancel()
	raw, err := c.do(ctx, image.OpEdit, "image-to-image", mw.FormDataContentType(), &body)
	if err != nil {
		return image.RawResult{}, err
	}
	result, err := decodeArtifacts(raw)
	if err != nil {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindRejected, Message: "decode response", Err: err}
	}
	if result.Empty() {
		return image.RawResult{}, fmt.Errorf("stability: edit returned no artifacts: %w", image.ErrEditUnsupported)
	}
	c.logger.Debug().Str("provider", ProviderName).Str("engine", c.engine).Str("request_id", in.Options.RequestID).Msg("stability: edit completed")
	return result, nil
}

// GenerateImage runs text-to-image.
func (c *Client) GenerateImage(ctx context.Context, in image.GenerateInput) (image.RawResult, error) {
	if !c.HasCredentials() {
		return image.RawResult{}, c.missingKey(image.OpGenerate)
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpGenerate, Kind: image.KindRejected, Message: "prompt is required"}
	}
	negative := strings.TrimSpace(in.NegativePrompt)
	if negative == "" {
		negative = image.DefaultNegativePrompt
	}
	// SDXL only renders a fixed set of dimensions; the square default is
	// used for anything else.
	width, height := 1024, 1024
	payload := textToImageRequest{
		TextPrompts: []textPrompt{{Text: prompt, Weight: 1}, {Text: negative, Weight: -1}},
		CFGScale:    7,
		Height:      height,
		Width:       width,
		Samples:     1,
		Steps:       stepsFor(in.Options.Quality),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return image.RawResult{}, fmt.Errorf("stability: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()
	raw, err := c.do(ctx, image.OpGenerate, "text-to-image", "application/json", bytes.NewReader(encoded))
	if err != nil {
		return image.RawResult{}, err
	}
	result, err := decodeArtifacts(raw)
	if err != nil {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpGenerate, Kind: image.KindRejected, Message: "decode response", Err: err}
	}
	if result.Empty() {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpGenerate, Kind: image.KindRejected, Message: "generation returned no artifacts"}
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, op image.Op, action, contentType string, body io.Reader) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/generation/%s/%s", c.baseURL, c.engine, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			code, message = detail.Name, detail.Message
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
	return &image.ProviderError{Provider: ProviderName, Op: op, Kind: image.KindUnauthorized, Message: "api key is not configured", Err: image.ErrMissingAPIKey}
}

func decodeArtifacts(raw []byte) (image.RawResult, error) {
	var decoded artifactsResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return image.RawResult{}, err
	}
	for _, a := range decoded.Artifacts {
		if a.FinishReason == "CONTENT_FILTERED" || strings.TrimSpace(a.Base64) == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(a.Base64)
		if err != nil {
			return image.RawResult{}, fmt.Errorf("decode artifact: %w", err)
		}
		return image.RawResult{Data: data, MIME: "image/png"}, nil
	}
	return image.RawResult{}, nil
}

func stepsFor(q image.Quality) int {
	switch q {
	case image.QualityUltra:
		return 50
	case image.QualityHigh:
		return 40
	default:
		return 30
	}
}

var _ image.Provider = (*Client)(nil)
