package enhance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"drisya/internal/infra"
	"drisya/internal/providers/image"
	"drisya/internal/retry"
	"drisya/internal/storage"
)

// ResultWriter makes a provider result durable.
type ResultWriter interface {
	Save(ctx context.Context, raw image.RawResult) (storage.Stored, error)
}

// PromptResolver turns a template ID into a full prompt.
type PromptResolver interface {
	Prompt(templateID, size string) (string, bool)
}

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	Providers []image.Provider
	// Order is the default preference order by provider name. Empty means
	// the order of Providers.
	Order            []string
	Writer           ResultWriter
	Retry            retry.Policy
	GenerationPrefix string
	Templates        PromptResolver
	// MaxImageBytes bounds a source read from SourcePath. Zero uses
	// image.DefaultMaxImageBytes.
	MaxImageBytes int64
	Logger        *infra.Logger
	Now           func() time.Time
}

// Failure codes for requests rejected before any provider is called.
const (
	CodeDuplicateRequest = "duplicate_request"
	CodeMissingPrompt    = "missing_prompt"
	CodeUnreadableSource = "unreadable_source"
	CodeUnknownProvider  = "unknown_provider"
	CodeImageTooLarge    = "image_too_large"
)

var errSourceTooLarge = errors.New("source image is too large")

// Orchestrator turns one Request into one Result by walking providers in
// preference order and trying edit before generate on each.
type Orchestrator struct {
	providers map[string]image.Provider
	order     []string
	writer    ResultWriter
	retry     retry.Policy
	prefix    string
	templates PromptResolver
	maxBytes  int64
	logger    *infra.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewOrchestrator validates the wiring and returns an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if len(opts.Providers) == 0 {
		return nil, errors.New("enhance: at least one provider is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("enhance: result writer is required")
	}
	providers := make(map[string]image.Provider, len(opts.Providers))
	var names []string
	for _, p := range opts.Providers {
		if p == nil {
			continue
		}
		name := strings.ToLower(p.Name())
		if _, dup := providers[name]; dup {
			return nil, fmt.Errorf("enhance: provider %q registered twice", name)
		}
		providers[name] = p
		names = append(names, name)
	}
	order := normalizeOrder(opts.Order)
	if len(order) == 0 {
		order = names
	}
	for _, name := range order {
		if _, ok := providers[name]; !ok {
			return nil, fmt.Errorf("enhance: provider %q in order is not configured", name)
		}
	}
	prefix := opts.GenerationPrefix
	if prefix == "" {
		prefix = DefaultGenerationPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxBytes := opts.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = image.DefaultMaxImageBytes
	}
	policy := opts.Retry
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Orchestrator{
		providers: providers,
		order:     order,
		writer:    opts.Writer,
		retry:     policy,
		prefix:    prefix,
		templates: opts.Templates,
		maxBytes:  maxBytes,
		logger:    logger,
		now:       now,
		inflight:  map[string]struct{}{},
	}, nil
}

// Order returns the default provider preference order.
func (o *Orchestrator) Order() []string {
	return append([]string(nil), o.order...)
}

// Enhance always returns exactly one Result and never panics.
func (o *Orchestrator) Enhance(ctx context.Context, req Request) (res Result) {
	start := o.now()
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	res.RequestID = req.ID
	logger := o.logger.With().Str("request_id", req.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("enhance: recovered from panic")
			res = o.fail(req.ID, start, KindInternal, "", "internal error while enhancing image", 0, nil)
		}
	}()

	if !o.acquire(req.ID) {
		return o.fail(req.ID, start, KindInvalidRequest, CodeDuplicateRequest, "request is already being processed", 0, nil)
	}
	defer o.release(req.ID)

	prompt, ok := o.resolvePrompt(req)
	if !ok {
		return o.fail(req.ID, start, KindInvalidRequest, CodeMissingPrompt, "a prompt or a known template is required", 0, nil)
	}
	source, err := o.loadSource(req)
	switch {
	case errors.Is(err, errSourceTooLarge):
		return o.fail(req.ID, start, KindInvalidImage, CodeImageTooLarge, err.Error(), 0, nil)
	case err != nil:
		return o.fail(req.ID, start, KindInvalidRequest, CodeUnreadableSource, err.Error(), 0, nil)
	}
	order, err := o.resolveOrder(req.Options.Providers)
	if err != nil {
		return o.fail(req.ID, start, KindInvalidRequest, CodeUnknownProvider, err.Error(), 0, nil)
	}

	quality := image.NormalizeQuality(string(req.Options.Quality))
	opts := image.Options{Size: image.NormalizeSize(req.Options.Size), Quality: quality, RequestID: req.ID}
	editPrompt := PreparePrompt(prompt, quality, req.Options.Blurred)
	genPrompt := GenerationPrompt(o.prefix, editPrompt)

	var (
		tried   []Attempt
		lastErr error
		total   int
	)
	for _, name := range order {
		if ctx.Err() != nil {
			return o.failFrom(req.ID, start, KindCanceled, ctx.Err(), total, tried)
		}
		provider := o.providers[name]
		plog := logger.With().Str("provider", name).Logger()

		if len(source) > 0 && provider.SupportsEdit() {
			raw, out, err := retry.Do(ctx, o.retry, func(ctx context.Context, attempt int) (image.RawResult, error) {
				return provider.EditImage(ctx, image.EditInput{Image: source, Filename: req.Filename, Prompt: editPrompt, Options: opts})
			})
			total += out.Attempts
			if err == nil {
				return o.succeed(ctx, req.ID, start, name, MethodEdit, quality, raw, total)
			}
			lastErr = err
			tried = append(tried, attemptRecord(name, MethodEdit, out.Attempts, err))
			plog.Warn().Err(err).Int("attempts", out.Attempts).Msg("enhance: edit failed, falling back to generate")
			if ctx.Err() != nil {
				return o.failFrom(req.ID, start, KindCanceled, ctx.Err(), total, tried)
			}
			if accountLevel(err) {
				continue
			}
		}

		raw, out, err := retry.Do(ctx, o.retry, func(ctx context.Context, attempt int) (image.RawResult, error) {
			return provider.GenerateImage(ctx, image.GenerateInput{Prompt: genPrompt, Options: opts})
		})
		total += out.Attempts
		if err == nil {
			return o.succeed(ctx, req.ID, start, name, MethodGenerate, quality, raw, total)
		}
		lastErr = err
		tried = append(tried, attemptRecord(name, MethodGenerate, out.Attempts, err))
		plog.Warn().Err(err).Int("attempts", out.Attempts).Msg("enhance: generate failed, trying next provider")
		if ctx.Err() != nil {
			return o.failFrom(req.ID, start, KindCanceled, ctx.Err(), total, tried)
		}
	}

	res = o.failFrom(req.ID, start, KindAllProvidersExhausted, lastErr, total, tried)
	logger.Error().Str("cause", string(res.Failure.Cause)).Int("attempts", total).Msg("enhance: all providers exhausted")
	return res
}

func (o *Orchestrator) succeed(ctx context.Context, id string, start time.Time, provider string, method Method, quality image.Quality, raw image.RawResult, attempts int) Result {
	stored, err := o.writer.Save(ctx, raw)
	if err == nil && stored.Ref == "" {
		err = errors.New("store returned an empty reference")
	}
	if err != nil {
		var dl *storage.DownloadError
		if !errors.As(err, &dl) {
			err = &storage.DownloadError{URL: raw.RemoteURL, Err: err}
		}
		o.logger.Error().Err(err).Str("request_id", id).Str("provider", provider).Msg("enhance: persisting result failed")
		return o.failFrom(id, start, KindDownloadFailed, err, attempts, nil)
	}
	s := &Success{
		StoredRef:     stored.Ref,
		Size:          stored.Size,
		MIME:          stored.MIME,
		SHA256:        stored.SHA256,
		Provider:      provider,
		Method:        method,
		CostEstimate:  CostEstimate(provider, method, quality),
		Attempts:      attempts,
		Elapsed:       o.now().Sub(start),
		RevisedPrompt: raw.RevisedPrompt,
	}
	o.logger.Info().
		Str("request_id", id).
		Str("provider", provider).
		Str("method", string(method)).
		Str("ref", s.StoredRef).
		Int64("elapsed_ms", s.ElapsedMillis()).
		Msg("enhance: request succeeded")
	return Result{RequestID: id, Success: s}
}

func (o *Orchestrator) failFrom(id string, start time.Time, kind ErrorKind, err error, attempts int, tried []Attempt) Result {
	cause := Classify(err)
	msg := describe(err)
	if msg == "" {
		msg = string(kind)
	}
	if kind == KindAllProvidersExhausted {
		msg = "all providers failed; last error: " + msg
	}
	res := o.fail(id, start, kind, providerCode(err), msg, attempts, tried)
	if cause != kind {
		res.Failure.Cause = cause
	}
	if kind == KindAllProvidersExhausted {
		res.Failure.Hints = collectHints(tried)
	}
	return res
}

func (o *Orchestrator) fail(id string, start time.Time, kind ErrorKind, code, msg string, attempts int, tried []Attempt) Result {
	return Result{RequestID: id, Failure: &Failure{
		Kind:     kind,
		Message:  msg,
		Hints:    Hints(kind, code),
		Attempts: attempts,
		Elapsed:  o.now().Sub(start),
		Tried:    tried,
	}}
}

func (o *Orchestrator) resolvePrompt(req Request) (string, bool) {
	if p := strings.TrimSpace(req.Prompt); p != "" {
		return p, true
	}
	if req.TemplateID != "" && o.templates != nil {
		return o.templates.Prompt(req.TemplateID, req.Options.Size)
	}
	return "", false
}

func (o *Orchestrator) resolveOrder(preference []string) ([]string, error) {
	pref := normalizeOrder(preference)
	if len(pref) == 0 {
		return o.order, nil
	}
	for _, name := range pref {
		if _, ok := o.providers[name]; !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return pref, nil
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

// loadSource never reads more than maxBytes+1 bytes of a source file.
func (o *Orchestrator) loadSource(req Request) ([]byte, error) {
	if len(req.SourceImage) > 0 {
		return req.SourceImage, nil
	}
	path := strings.TrimSpace(req.SourcePath)
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read source image: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if info, err := f.Stat(); err == nil && info.Size() > o.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", errSourceTooLarge, info.Size(), o.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(f, o.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source image: %w", err)
	}
	if int64(len(data)) > o.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", errSourceTooLarge, o.maxBytes)
	}
	return data, nil
}

// accountLevel errors fail every call to the provider alike, so generation
// on the same provider is skipped.
func accountLevel(err error) bool {
	switch image.KindOf(err) {
	case image.KindQuotaExceeded, image.KindUnauthorized:
		return true
	default:
		return false
	}
}

func attemptRecord(provider string, method Method, attempts int, err error) Attempt {
	return Attempt{Provider: provider, Method: method, Attempts: attempts, Kind: Classify(err), Code: providerCode(err), Message: describe(err)}
}

func collectHints(tried []Attempt) []string {
	seen := map[string]struct{}{}
	var hints []string
	for _, a := range tried {
		if a.Kind == KindUnsupported {
			continue
		}
		for _, h := range Hints(a.Kind, a.Code) {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			hints = append(hints, h)
		}
	}
	return hints
}

func normalizeOrder(in []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, n := range in {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
