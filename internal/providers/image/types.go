package image

import (
	"context"
	"strings"
)

// Op names the provider operation that produced a result or error.
type Op string

const (
	OpEdit     Op = "edit"
	OpGenerate Op = "generate"
)

// Quality is the requested rendering quality. Providers map it onto their
// own knobs (OpenAI "hd", Stability step count).
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

// DefaultSize is used when a request does not name an output size.
const DefaultSize = "1024x1024"

// DefaultNegativePrompt lists artefacts that product photography must avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, text artefacts, watermark, altered product design"

// Options carries per-request rendering parameters.
type Options struct {
	Size      string
	Quality   Quality
	RequestID string
}

// EditInput is an image-conditioned request: the provider modifies the
// supplied source according to the prompt.
type EditInput struct {
	Image    []byte
	Filename string
	Prompt   string
	Options  Options
}

// GenerateInput is a text-only request.
type GenerateInput struct {
	Prompt         string
	NegativePrompt string
	Options        Options
}

// RawResult is a successful provider response. Exactly one of RemoteURL and
// Data is set: some APIs hand back a short-lived URL, others inline bytes.
type RawResult struct {
	RemoteURL     string
	Data          []byte
	MIME          string
	RevisedPrompt string
}

// Empty reports whether the provider returned neither a URL nor bytes.
func (r RawResult) Empty() bool {
	return strings.TrimSpace(r.RemoteURL) == "" && len(r.Data) == 0
}

// Provider is the contract implemented by all image providers. A failed call
// returns a *ProviderError (or wraps one); ErrEditUnsupported signals that
// the edit path cannot serve the request and generation should be tried.
type Provider interface {
	Name() string
	SupportsEdit() bool
	EditImage(ctx context.Context, in EditInput) (RawResult, error)
	GenerateImage(ctx context.Context, in GenerateInput) (RawResult, error)
}

// NormalizeQuality maps free-form input (including the "hd" and "4k" labels
// used by the template catalog) onto a Quality.
func NormalizeQuality(q string) Quality {
	switch strings.ToLower(strings.TrimSpace(q)) {
	case "high", "hd":
		return QualityHigh
	case "ultra", "4k", "uhd":
		return QualityUltra
	default:
		return QualityStandard
	}
}

var supportedSizes = map[string]struct{}{
	"256x256":   {},
	"512x512":   {},
	"1024x1024": {},
	"1792x1024": {},
	"1024x1792": {},
}

// NormalizeSize returns size when it is one the providers accept, DefaultSize otherwise.
func NormalizeSize(size string) string {
	size = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(size), "*", "x"))
	if _, ok := supportedSizes[size]; ok {
		return size
	}
	return DefaultSize
}

// SizeDimensions splits a normalized size into width and height.
func SizeDimensions(size string) (int, int) {
	switch NormalizeSize(size) {
	case "256x256":
		return 256, 256
	case "512x512":
		return 512, 512
	case "1792x1024":
		return 1792, 1024
	case "1024x1792":
		return 1024, 1792
	default:
		return 1024, 1024
	}
}
