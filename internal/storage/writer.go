package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"drisya/internal/infra"
	"drisya/internal/providers/image"
)

const (
	defaultDownloadTimeout = 60 * time.Second
	defaultMaxDownload     = 50 << 20
	defaultKeyPrefix       = "enhanced"
)

// DownloadError reports that a provider result could not be fetched or
// persisted. The enhancement itself succeeded upstream.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	target := e.URL
	if target == "" {
		target = "inline image"
	}
	if e.Status > 0 {
		return fmt.Sprintf("storage: download %s: status %d", redactURL(target), e.Status)
	}
	return fmt.Sprintf("storage: persist %s: %v", redactURL(target), e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Stored describes a persisted image.
type Stored struct {
	Ref    string
	Key    string
	Size   int64
	MIME   string
	SHA256 string
	// Reused is set when content addressing matched an existing object.
	Reused bool
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	HTTPClient      *http.Client
	DownloadTimeout time.Duration
	MaxBytes        int64
	// ContentAddressed names objects by their SHA-256 so identical bytes
	// share one ref. Off by default: every persist yields a fresh ref.
	ContentAddressed bool
	KeyPrefix        string
	TempDir          string
	Now              func() time.Time
	Logger           *infra.Logger
}

// Writer makes provider results durable.
type Writer struct {
	store            Store
	httpClient       *http.Client
	downloadTimeout  time.Duration
	maxBytes         int64
	contentAddressed bool
	keyPrefix        string
	tempDir          string
	now              func() time.Time
	logger           *infra.Logger
}

// NewWriter wires a Writer on top of store.
func NewWriter(store Store, opts WriterOptions) (*Writer, error) {
	if store == nil {
		return nil, errors.New("storage: store is required")
	}
	w := &Writer{
		store:            store,
		httpClient:       opts.HTTPClient,
		downloadTimeout:  opts.DownloadTimeout,
		maxBytes:         opts.MaxBytes,
		contentAddressed: opts.ContentAddressed,
		keyPrefix:        strings.Trim(strings.TrimSpace(opts.KeyPrefix), "/"),
		tempDir:          opts.TempDir,
		now:              opts.Now,
		logger:           opts.Logger,
	}
	if w.httpClient == nil {
		w.httpClient = &http.Client{}
	}
	if w.downloadTimeout <= 0 {
		w.downloadTimeout = defaultDownloadTimeout
	}
	if w.maxBytes <= 0 {
		w.maxBytes = defaultMaxDownload
	}
	if w.keyPrefix == "" {
		w.keyPrefix = defaultKeyPrefix
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.logger == nil {
		w.logger = infra.NopLogger()
	}
	return w, nil
}

// Store exposes the underlying store, for reading results back.
func (w *Writer) Store() Store { return w.store }

// Save persists a provider result, downloading it first when the provider
// returned a URL.
func (w *Writer) Save(ctx context.Context, raw image.RawResult) (Stored, error) {
	if len(raw.Data) > 0 {
		return w.PersistData(ctx, raw.Data, raw.MIME)
	}
	if strings.TrimSpace(raw.RemoteURL) != "" {
		return w.Persist(ctx, raw.RemoteURL)
	}
	return Stored{}, &DownloadError{Err: errors.New("result carries neither url nor data")}
}

// Persist streams remoteURL into the store. The body is spooled to a local
// temp file while hashing, so the store only ever receives complete content;
// a failed or timed-out fetch leaves nothing behind.
func (w *Writer) Persist(ctx context.Context, remoteURL string) (Stored, error) {
	parsed, err := url.Parse(strings.TrimSpace(remoteURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Stored{}, &DownloadError{URL: remoteURL, Err: fmt.Errorf("invalid url")}
	}

	ctx, cancel := context.WithTimeout(ctx, w.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Stored{}, &DownloadError{URL: remoteURL, Err: err}
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Stored{}, &DownloadError{URL: remoteURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return Stored{}, &DownloadError{URL: remoteURL, Status: resp.StatusCode}
	}

	spool, err := os.CreateTemp(w.tempDir, "drisya-download-*")
	if err != nil {
		return Stored{}, &DownloadError{URL: remoteURL, Err: fmt.Errorf("create spool: %w", err)}
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(spool, hasher), io.LimitReader(resp.Body, w.maxBytes+1))
	if err != nil {
		return Stored{}, &DownloadError{URL: remoteURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if n > w.maxBytes {
		return Stored{}, &DownloadError{URL: remoteURL, Err: fmt.Errorf("body exceeds %d bytes", w.maxBytes)}
	}
	if n == 0 {
		return Stored{}, &DownloadError{URL: remoteURL, Err: errors.New("empty body")}
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return Stored{}, &DownloadError{URL: remoteURL, Err: err}
	}
	var head [512]byte
	hn, _ := io.ReadFull(spool, head[:])
	mime := contentType(resp.Header.Get("Content-Type"), head[:hn])
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return Stored{}, &DownloadError{URL: remoteURL, Err: err}
	}

	stored, err := w.put(ctx, spool, n, mime, hex.EncodeToString(hasher.Sum(nil)))
	if err != nil {
		return Stored{}, &DownloadError{URL: remoteURL, Err: err}
	}
	w.logger.Debug().Str("ref", stored.Ref).Int64("size", stored.Size).Bool("reused", stored.Reused).Msg("storage: persisted remote image")
	return stored, nil
}

// PersistData stores inline image bytes.
func (w *Writer) PersistData(ctx context.Context, data []byte, mime string) (Stored, error) {
	if len(data) == 0 {
		return Stored{}, &DownloadError{Err: errors.New("empty image data")}
	}
	sum := sha256.Sum256(data)
	stored, err := w.put(ctx, bytes.NewReader(data), int64(len(data)), contentType(mime, data), hex.EncodeToString(sum[:]))
	if err != nil {
		return Stored{}, &DownloadError{Err: err}
	}
	w.logger.Debug().Str("ref", stored.Ref).Int64("size", stored.Size).Msg("storage: persisted inline image")
	return stored, nil
}

func (w *Writer) put(ctx context.Context, r io.Reader, size int64, mime, digest string) (Stored, error) {
	ext := image.ExtensionForMIME(mime)
	if ext == "" {
		ext = ".bin"
	}
	stored := Stored{Size: size, MIME: mime, SHA256: digest}
	if w.contentAddressed {
		stored.Key = path.Join(w.keyPrefix, "sha256", digest[:2], digest+ext)
		exists, err := w.store.Exists(ctx, stored.Key)
		if err != nil {
			return Stored{}, err
		}
		if exists {
			stored.Ref = w.store.Ref(stored.Key)
			stored.Reused = true
			return stored, nil
		}
	} else {
		stored.Key = w.timestampedKey(ext)
	}
	ref, err := w.store.Put(ctx, stored.Key, r, size, mime)
	if err != nil {
		return Stored{}, err
	}
	stored.Ref = ref
	return stored, nil
}

func (w *Writer) timestampedKey(ext string) string {
	now := w.now().UTC()
	name := fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), ext)
	return path.Join(w.keyPrefix, now.Format("2006/01/02"), name)
}

func contentType(declared string, head []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return http.DetectContentType(head)
}

// redactURL drops the query string, which carries signatures on provider CDNs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
