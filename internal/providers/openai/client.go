package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"drisya/internal/infra"
	"drisya/internal/providers/image"
)

// ProviderName identifies this client in results and logs.
const ProviderName = "openai"

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultGenerateModel   = "dall-e-3"
	defaultEditTimeout     = 120 * time.Second
	defaultGenerateTimeout = 60 * time.Second
	maxErrorBody           = 64 << 10
)

// Options configures the OpenAI images client.
type Options struct {
	APIKey       string
	BaseURL      string
	Organization string
	// EditModel is sent with edit requests when set (for example gpt-image-1);
	// when empty the endpoint default applies.
	EditModel       string
	GenerateModel   string
	EditTimeout     time.Duration
	GenerateTimeout time.Duration
	MaxImageBytes   int64
	HTTPClient      *http.Client
	Logger          *infra.Logger
}

// Client calls the OpenAI /images/edits and /images/generations endpoints.
type Client struct {
	apiKey          string
	baseURL         string
	organization    string
	editModel       string
	generateModel   string
	editTimeout     time.Duration
	generateTimeout time.Duration
	maxImageBytes   int64
	httpClient      *http.Client
	logger          *infra.Logger
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
// Timeouts are applied per call through the request context, so the HTTP
// client itself carries none.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	generateModel := strings.TrimSpace(opts.GenerateModel)
	if generateModel == "" {
		generateModel = defaultGenerateModel
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
		organization:    strings.TrimSpace(opts.Organization),
		editModel:       strings.TrimSpace(opts.EditModel),
		generateModel:   generateModel,
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

// EditImage uploads the source image with the prompt as multipart form data.
// The source is validated locally first; oversize or undecodable images fail
// with image.KindInvalidImage without a network round trip.
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

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = "image" + image.ExtensionForMIME(src.MIME)
	}
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	partHeader.Set("Content-Type", src.MIME)
	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return image.RawResult{}, fmt.Errorf("openai: build multipart: %w", err)
	}
	if _, err := part.Write(in.Image); err != nil {
		return image.RawResult{}, fmt.Errorf("openai: build multipart: %w", err)
	}
	fields := [][2]string{
		{"prompt", prompt},
		{"n", "1"},
		{"size", image.NormalizeSize(in.Options.Size)},
	}
	if c.editModel != "" {
		fields = append(fields, [2]string{"model", c.editModel})
	}
	// gpt-image-1 always answers with b64_json and rejects response_format.
	if !strings.HasPrefix(c.editModel, "gpt-image") {
		fields = append(fields, [2]string{"response_format", "url"})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return image.RawResult{}, fmt.Errorf("openai: build multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return image.RawResult{}, fmt.Errorf("openai: build multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.editTimeout)
	defer cancel()
	raw, err := c.do(ctx, image.OpEdit, "/images/edits", mw.FormDataContentType(), &body)
	if err != nil {
		return image.RawResult{}, err
	}
	result, err := decodeImages(raw)
	if err != nil {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpEdit, Kind: image.KindRejected, Message: "decode response", Err: err}
	}
	if result.Empty() {
		return image.RawResult{}, fmt.Errorf("openai: edit returned no data: %w", image.ErrEditUnsupported)
	}
	c.logger.Debug().
		Str("provider", ProviderName).
		Str("request_id", in.Options.RequestID).
		Bool("inline", len(result.Data) > 0).
		Msg("openai: edit completed")
	return result, nil
}

// GenerateImage creates an image from text only.
func (c *Client) GenerateImage(ctx context.Context, in image.GenerateInput) (image.RawResult, error) {
	if !c.HasCredentials() {
		return image.RawResult{}, c.missingKey(image.OpGenerate)
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpGenerate, Kind: image.KindRejected, Message: "prompt is required"}
	}
	payload := generationRequest{
		Model:   c.generateModel,
		Prompt:  prompt,
		N:       1,
		Size:    image.NormalizeSize(in.Options.Size),
		Quality: generationQuality(c.generateModel, in.Options.Quality),
	}
	if !strings.HasPrefix(c.generateModel, "gpt-image") {
		payload.ResponseFormat = "url"
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return image.RawResult{}, fmt.Errorf("openai: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()
	raw, err := c.do(ctx, image.OpGenerate, "/images/generations", "application/json", bytes.NewReader(encoded))
	if err != nil {
		return image.RawResult{}, err
	}
	result, err := decodeImages(raw)
	if err != nil {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpGenerate, Kind: image.KindRejected, Message: "decode response", Err: err}
	}
	if result.Empty() {
		return image.RawResult{}, &image.ProviderError{Provider: ProviderName, Op: image.OpGenerate, Kind: image.KindRejected, Message: "generation returned no data"}
	}
	c.logger.Debug().
		Str("provider", ProviderName).
		Str("model", c.generateModel).
		Str("request_id", in.Options.RequestID).
		Msg("openai: generation completed")
	return result, nil
}

func (c *Client) do(ctx context.Context, op image.Op, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
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
		code, message := parseError(raw)
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

func decodeImages(raw []byte) (image.RawResult, error) {
	var decoded imagesResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return image.RawResult{}, err
	}
	for _, item := range decoded.Data {
		if u := strings.TrimSpace(item.URL); u != "" {
			return image.RawResult{RemoteURL: u, RevisedPrompt: item.RevisedPrompt}, nil
		}
		if b := strings.TrimSpace(item.B64JSON); b != "" {
			data, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return image.RawResult{}, fmt.Errorf("decode b64_json: %w", err)
			}
			return image.RawResult{Data: data, MIME: http.DetectContentType(data), RevisedPrompt: item.RevisedPrompt}, nil
		}
	}
	return image.RawResult{}, nil
}

// parseError extracts code and message from an OpenAI error body. The code
// field is a string for most errors but null or absent for some.
func parseError(raw []byte) (string, string) {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err != nil {
		return "", strings.TrimSpace(string(raw))
	}
	code := ""
	switch v := detail.Error.Code.(type) {
	case string:
		code = v
	case float64:
		code = fmt.Sprintf("%.0f", v)
	}
	if code == "" {
		code = detail.Error.Type
	}
	return code, detail.Error.Message
}

func generationQuality(model string, q image.Quality) string {
	switch {
	case strings.HasPrefix(model, "dall-e-3"):
		if q == image.QualityUltra {
			return "hd"
		}
		return "standard"
	case strings.HasPrefix(model, "gpt-image"):
		switch q {
		case image.QualityUltra:
			return "high"
		case image.QualityHigh:
			return "medium"
		default:
			return "low"
		}
	default:
		return ""
	}
}

var _ image.Provider = (*Client)(nil)
