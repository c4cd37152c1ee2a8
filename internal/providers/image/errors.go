package image

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies provider failures for the retry envelope and for reporting.
type Kind string

const (
	// KindInvalidImage: the source image violates a precondition. Terminal.
	KindInvalidImage Kind = "InvalidImage"
	// KindRateLimited: HTTP 429 without a billing cause. Retryable.
	KindRateLimited Kind = "RateLimited"
	// KindProviderUnavailable: 5xx, timeouts, broken connections. Retryable.
	KindProviderUnavailable Kind = "ProviderUnavailable"
	// KindQuotaExceeded: the account has no credits left. Terminal.
	KindQuotaExceeded Kind = "QuotaExceeded"
	// KindUnauthorized: missing or rejected credentials. Terminal.
	KindUnauthorized Kind = "Unauthorized"
	// KindRejected: any other client error. Terminal.
	KindRejected Kind = "Rejected"
)

// Retryable reports whether the retry envelope may repeat the call.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindProviderUnavailable
}

// ErrEditUnsupported marks an edit call that cannot serve the request (no
// edit endpoint, or an edit response carrying no image).
var ErrEditUnsupported = errors.New("image: edit not supported")

// ErrGenerateUnsupported marks a provider that only edits images.
var ErrGenerateUnsupported = errors.New("image: generation not supported")

// ErrMissingAPIKey indicates that a client was configured without credentials.
var ErrMissingAPIKey = errors.New("image: api key is required")

// ProviderError is the normalized failure envelope of a provider call.
type ProviderError struct {
	Provider      string
	Op            Op
	Kind          Kind
	HTTPStatus    int
	Code          string
	Message       string
	RetryAfter    time.Duration
	HasRetryAfter bool
	Err           error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Op))
	}
	b.WriteString(": ")
	if e.HTTPStatus > 0 {
		fmt.Fprintf(&b, "status %d: ", e.HTTPStatus)
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	b.WriteString(msg)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the Kind carried by err, or KindRejected for unknown errors.
func KindOf(err error) Kind {
	if pe, ok := AsProviderError(err); ok {
		return pe.Kind
	}
	if errors.Is(err, ErrMissingAPIKey) {
		return KindUnauthorized
	}
	return KindRejected
}

var (
	quotaCodes = map[string]struct{}{
		"insufficient_quota":         {},
		"billing_hard_limit_reached": {},
		"insufficient_balance":       {},
	}
	invalidImageCodes = map[string]struct{}{
		"invalid_image":        {},
		"invalid_image_format": {},
		"image_too_large":      {},
		"invalid_image_size":   {},
	}
)

// ClassifyHTTP builds the ProviderError for a non-2xx response. code and
// message come from the provider-specific error body and may be empty.
func ClassifyHTTP(provider string, op Op, status int, header http.Header, code, message string) *ProviderError {
	pe := &ProviderError{
		Provider:   provider,
		Op:         op,
		HTTPStatus: status,
		Code:       strings.TrimSpace(code),
		Message:    strings.TrimSpace(message),
	}
	lowerCode := strings.ToLower(pe.Code)
	_, quota := quotaCodes[lowerCode]
	_, invalid := invalidImageCodes[lowerCode]
	switch {
	case quota:
		pe.Kind = KindQuotaExceeded
	case invalid || status == http.StatusRequestEntityTooLarge:
		pe.Kind = KindInvalidImage
	case status == http.StatusTooManyRequests:
		pe.Kind = KindRateLimited
		if header != nil {
			pe.RetryAfter, pe.HasRetryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
		}
	case status >= 500:
		pe.Kind = KindProviderUnavailable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Kind = KindUnauthorized
	default:
		pe.Kind = KindRejected
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	return pe
}

// ClassifyTransport wraps an error raised before a response was received.
// Deadlines and network failures are retryable; caller cancellation is not.
func ClassifyTransport(provider string, op Op, err error) *ProviderError {
	pe := &ProviderError{Provider: provider, Op: op, Err: err, Kind: KindProviderUnavailable}
	if errors.Is(err, context.Canceled) {
		pe.Kind = KindRejected
		pe.Message = "request canceled"
		return pe
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		pe.Message = "request timed out"
	}
	return pe
}

// MaxRetryAfter bounds any server-provided Retry-After value.
const MaxRetryAfter = time.Hour

// ParseRetryAfter accepts either delay-seconds or an HTTP date. Values beyond
// MaxRetryAfter are clamped to it.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	switch {
	case err == nil && secs < 0:
		return 0, false
	case err == nil && secs > int64(MaxRetryAfter/time.Second):
		return MaxRetryAfter, true
	case err == nil:
		return time.Duration(secs) * time.Second, true
	case errors.Is(err, strconv.ErrRange):
		if strings.HasPrefix(value, "-") {
			return 0, false
		}
		return MaxRetryAfter, true
	}
	if at, err := http.ParseTime(value); err == nil {
		return min(max(at.Sub(now), 0), MaxRetryAfter), true
	}
	return 0, false
}
