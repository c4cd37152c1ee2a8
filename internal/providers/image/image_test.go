package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidateSourceAcceptsPNG(t *testing.T) {
	src, err := ValidateSource("openai", pngBytes(t, 8, 4), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", src.MIME)
	assert.Equal(t, 8, src.Width)
	assert.Equal(t, 4, src.Height)
}

func TestValidateSourceRejectsOversize(t *testing.T) {
	data := pngBytes(t, 8, 8)
	_, err := ValidateSource("openai", data, int64(len(data)-1))
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidImage, pe.Kind)
	assert.Equal(t, "image_too_large", pe.Code)
	assert.False(t, pe.Kind.Retryable())
}

func TestValidateSourceRejectsGarbageAndEmpty(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateSource("stability", data, 0)
			assert.Equal(t, KindInvalidImage, KindOf(err))
		})
	}
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		code   string
		want   Kind
	}{
		{name: "rate limited", status: 429, want: KindRateLimited},
		{name: "quota arrives as 429", status: 429, code: "insufficient_quota", want: KindQuotaExceeded},
		{name: "server error", status: 503, want: KindProviderUnavailable},
		{name: "bad gateway", status: 502, want: KindProviderUnavailable},
		{name: "invalid image", status: 400, code: "invalid_image_format", want: KindInvalidImage},
		{name: "too large", status: 413, want: KindInvalidImage},
		{name: "unauthorized", status: 401, want: KindUnauthorized},
		{name: "bad request", status: 400, code: "invalid_request_error", want: KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := ClassifyHTTP("openai", OpEdit, tt.status, tt.header, tt.code, "")
			assert.Equal(t, tt.want, pe.Kind)
			assert.NotEmpty(t, pe.Message)
		})
	}
}

func TestClassifyHTTPReadsRetryAfter(t *testing.T) {
	pe := ClassifyHTTP("openai", OpGenerate, 429, http.Header{"Retry-After": []string{"7"}}, "", "slow down")
	assert.True(t, pe.HasRetryAfter)
	assert.Equal(t, 7*time.Second, pe.RetryAfter)
	assert.Contains(t, pe.Error(), "status 429")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	d, ok := ParseRetryAfter(now.Add(5*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	d, ok = ParseRetryAfter("0", now)
	assert.True(t, ok)
	assert.Zero(t, d)

	_, ok = ParseRetryAfter("soon", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfter("", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfter("-3", now)
	assert.False(t, ok)
}

func TestParseRetryAfterClampsLargeValues(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, value := range []string{
		"86400",
		"99999999999",
		"999999999999999999999999",
		now.Add(72 * time.Hour).Format(http.TimeFormat),
	} {
		d, ok := ParseRetryAfter(value, now)
		assert.True(t, ok, value)
		assert.Equal(t, MaxRetryAfter, d, value)
	}
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, KindProviderUnavailable, ClassifyTransport("openai", OpEdit, context.DeadlineExceeded).Kind)
	assert.Equal(t, KindProviderUnavailable, ClassifyTransport("openai", OpEdit, errors.New("connection reset by peer")).Kind)
	canceled := ClassifyTransport("openai", OpEdit, context.Canceled)
	assert.Equal(t, KindRejected, canceled.Kind)
	assert.ErrorIs(t, canceled, context.Canceled)
}

func TestNormalizeHelpers(t *testing.T) {
	assert.Equal(t, QualityHigh, NormalizeQuality("HD"))
	assert.Equal(t, QualityUltra, NormalizeQuality("4k"))
	assert.Equal(t, QualityStandard, NormalizeQuality(""))
	assert.Equal(t, "1792x1024", NormalizeSize("1792*1024"))
	assert.Equal(t, DefaultSize, NormalizeSize("640x480"))
	w, h := SizeDimensions("1024x1792")
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1792, h)
	assert.Equal(t, ".webp", ExtensionForMIME("image/webp; charset=binary"))
	assert.True(t, RawResult{}.Empty())
	assert.False(t, RawResult{Data: []byte{1}}.Empty())
}
