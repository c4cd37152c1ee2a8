package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

// DefaultMaxImageBytes is the edit endpoints' upload ceiling.
const DefaultMaxImageBytes int64 = 4 << 20

// Source describes a validated source image.
type Source struct {
	MIME   string
	Format string
	Width  int
	Height int
	Size   int64
}

// ValidateSource checks the preconditions shared by all edit endpoints: the
// payload is non-empty, within ceiling, and decodes as PNG, JPEG or WebP.
// Violations are reported as KindInvalidImage so they are never retried.
func ValidateSource(provider string, data []byte, ceiling int64) (Source, error) {
	if ceiling <= 0 {
		ceiling = DefaultMaxImageBytes
	}
	size := int64(len(data))
	if size == 0 {
		return Source{}, invalidImage(provider, "source image is empty", "")
	}
	if size > ceiling {
		return Source{}, invalidImage(provider,
			fmt.Sprintf("source image is %s, limit is %s", humanBytes(size), humanBytes(ceiling)),
			"image_too_large")
	}
	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Source{}, invalidImage(provider, "source image is not a decodable PNG, JPEG or WebP", "invalid_image_format")
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/" + format
	}
	return Source{MIME: mime, Format: format, Width: cfg.Width, Height: cfg.Height, Size: size}, nil
}

func invalidImage(provider, msg, code string) *ProviderError {
	return &ProviderError{Provider: provider, Op: OpEdit, Kind: KindInvalidImage, Code: code, Message: msg}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ExtensionForMIME maps an image MIME type to a file extension.
func ExtensionForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
