package enhance

import (
	"context"
	"errors"

	"drisya/internal/providers/image"
	"drisya/internal/retry"
	"drisya/internal/storage"
)

// ErrorKind is the failure taxonomy reported to callers.
type ErrorKind string

const (
	KindInvalidImage          ErrorKind = "InvalidImage"
	KindRateLimited           ErrorKind = "RateLimited"
	KindProviderUnavailable   ErrorKind = "ProviderUnavailable"
	KindRetriesExhausted      ErrorKind = "RetriesExhausted"
	KindAllProvidersExhausted ErrorKind = "AllProvidersExhausted"
	KindDownloadFailed        ErrorKind = "DownloadFailed"
	KindQuotaExceeded         ErrorKind = "QuotaExceeded"
	KindUnauthorized          ErrorKind = "Unauthorized"
	KindUnsupported           ErrorKind = "Unsupported"
	KindRejected              ErrorKind = "Rejected"
	KindInvalidRequest        ErrorKind = "InvalidRequest"
	KindCanceled              ErrorKind = "Canceled"
	KindInternal              ErrorKind = "Internal"
)

// Classify maps an error from the provider, retry or storage layers onto the
// taxonomy. Exhaustion wins over the underlying kind so callers can tell a
// spent retry budget from a first-try rejection.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, retry.ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, image.ErrEditUnsupported), errors.Is(err, image.ErrGenerateUnsupported):
		return KindUnsupported
	}
	var dl *storage.DownloadError
	if errors.As(err, &dl) {
		return KindDownloadFailed
	}
	if pe, ok := image.AsProviderError(err); ok {
		switch pe.Kind {
		case image.KindInvalidImage:
			return KindInvalidImage
		case image.KindRateLimited:
			return KindRateLimited
		case image.KindProviderUnavailable:
			return KindProviderUnavailable
		case image.KindQuotaExceeded:
			return KindQuotaExceeded
		case image.KindUnauthorized:
			return KindUnauthorized
		default:
			return KindRejected
		}
	}
	if errors.Is(err, image.ErrMissingAPIKey) {
		return KindUnauthorized
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindProviderUnavailable
	}
	return KindRejected
}

// Hints returns remediation advice for a failure kind. The provider code
// refines the advice where it is more specific than the kind.
func Hints(kind ErrorKind, code string) []string {
	switch code {
	case CodeDuplicateRequest:
		return []string{"Wait for the running request with this ID to finish, or use a new ID."}
	case CodeMissingPrompt:
		return []string{"Provide a prompt or a template."}
	case CodeUnreadableSource:
		return []string{"Check that the source image path exists and is readable."}
	case CodeUnknownProvider:
		return []string{"Name only configured providers, or omit the list to use the default order."}
	case CodeImageTooLarge:
		return []string{"Reduce the image size below 4 MB.", "Export the photo as PNG or JPEG at 1024x1024."}
	case "invalid_image_format":
		return []string{"Convert the image to PNG, JPEG or WebP."}
	case "insufficient_quota", "billing_hard_limit_reached":
		return []string{"Add billing credits to the provider account."}
	}
	switch kind {
	case KindInvalidImage:
		return []string{"Use a PNG, JPEG or WebP image under 4 MB."}
	case KindQuotaExceeded:
		return []string{"Add billing credits to the provider account."}
	case KindUnauthorized:
		return []string{"Check that the provider API key is configured and valid."}
	case KindRateLimited, KindRetriesExhausted:
		return []string{"Wait a few minutes before retrying.", "Lower the batch window to send fewer concurrent requests."}
	case KindProviderUnavailable:
		return []string{"The provider is having trouble; retry later."}
	case KindDownloadFailed:
		return []string{"Check network access to the provider's image host and that storage is writable."}
	case KindInvalidRequest:
		return []string{"Check the request fields and try again."}
	default:
		return nil
	}
}

func providerCode(err error) string {
	if pe, ok := image.AsProviderError(err); ok {
		return pe.Code
	}
	return ""
}

// describe renders err for users: the provider's own message when there is
// one, without wrapping noise.
func describe(err error) string {
	if err == nil {
		return ""
	}
	if pe, ok := image.AsProviderError(err); ok {
		return pe.Error()
	}
	return err.Error()
}
