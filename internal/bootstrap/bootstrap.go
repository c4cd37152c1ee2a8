// Package bootstrap builds the enhancement pipeline from configuration. The
// worker and the CLI share it so both run the same provider chain.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"drisya/internal/batch"
	"drisya/internal/enhance"
	"drisya/internal/infra"
	"drisya/internal/providers/huggingface"
	"drisya/internal/providers/image"
	"drisya/internal/providers/openai"
	"drisya/internal/providers/replicate"
	"drisya/internal/providers/stability"
	"drisya/internal/retry"
	"drisya/internal/storage"
	"drisya/internal/templates"
)

// Pipeline is everything needed to enhance images and write the results.
type Pipeline struct {
	Store        storage.Store
	Writer       *storage.Writer
	Catalog      *templates.Catalog
	Orchestrator *enhance.Orchestrator
	Runner       *batch.Runner
}

// NewStore returns the configured storage backend. Relative local paths are
// resolved against the working directory.
func NewStore(ctx context.Context, cfg *infra.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		path := strings.TrimSpace(cfg.Storage.Path)
		if path == "" {
			path = "./storage"
		}
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		return storage.NewFileStore(path)
	case "s3":
		return storage.NewS3Store(ctx, cfg.Storage.AWSRegion, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
	default:
		return nil, fmt.Errorf("bootstrap: unknown storage backend %q", cfg.Storage.Backend)
	}
}

// NewProviders constructs the providers named in PROVIDER_ORDER. A provider
// without an API key is skipped with a warning; the returned order lists only
// the providers that were built.
func NewProviders(cfg *infra.Config, httpClient *http.Client, logger *infra.Logger) ([]image.Provider, []string, error) {
	if logger == nil {
		logger = infra.NopLogger()
	}
	var (
		providers []image.Provider
		order     []string
	)
	for _, name := range cfg.ProviderOrder {
		var (
			p   image.Provider
			key string
			err error
		)
		switch name {
		case "openai":
			key = cfg.OpenAI.APIKey
			if strings.TrimSpace(key) != "" {
				p, err = openai.NewClient(openai.Options{
					APIKey:          key,
					BaseURL:         cfg.OpenAI.BaseURL,
					Organization:    cfg.OpenAI.Org,
					EditModel:       cfg.OpenAI.EditModel,
					GenerateModel:   cfg.OpenAI.GenerateModel,
					EditTimeout:     cfg.EditTimeout,
					GenerateTimeout: cfg.GenerateTimeout,
					MaxImageBytes:   cfg.MaxImageBytes,
					HTTPClient:      httpClient,
					Logger:          logger,
				})
			}
		case "stability":
			key = cfg.Stability.APIKey
			if strings.TrimSpace(key) != "" {
				p, err = stability.NewClient(stability.Options{
					APIKey:          key,
					BaseURL:         cfg.Stability.BaseURL,
					Engine:          cfg.Stability.Engine,
					EditTimeout:     cfg.EditTimeout,
					GenerateTimeout: cfg.GenerateTimeout,
					MaxImageBytes:   cfg.MaxImageBytes,
					HTTPClient:      httpClient,
					Logger:          logger,
				})
			}
		case "replicate":
			key = cfg.Replicate.APIToken
			if strings.TrimSpace(key) != "" {
				p, err = replicate.NewClient(replicate.Options{
					APIToken:      key,
					BaseURL:       cfg.Replicate.BaseURL,
					Version:       cfg.Replicate.Version,
					PollInterval:  cfg.Replicate.PollInterval,
					PollTimeout:   cfg.Replicate.PollTimeout,
					MaxImageBytes: cfg.MaxImageBytes,
					HTTPClient:    httpClient,
					Logger:        logger,
				})
			}
		case "huggingface":
			key = cfg.HuggingFace.APIToken
			if strings.TrimSpace(key) != "" {
				p, err = huggingface.NewClient(huggingface.Options{
					APIToken:      key,
					BaseURL:       cfg.HuggingFace.BaseURL,
					Model:         cfg.HuggingFace.Model,
					EditTimeout:   cfg.EditTimeout,
					MaxImageBytes: cfg.MaxImageBytes,
					HTTPClient:    httpClient,
					Logger:        logger,
				})
			}
		default:
			return nil, nil, fmt.Errorf("bootstrap: unknown provider %q", name)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: configure %s: %w", name, err)
		}
		if p == nil {
			logger.Warn().Str("provider", name).Msg("bootstrap: api key missing, provider disabled")
			continue
		}
		providers = append(providers, p)
		order = append(order, name)
	}
	if len(providers) == 0 {
		return nil, nil, fmt.Errorf("bootstrap: no provider has an api key (order %s)", strings.Join(cfg.ProviderOrder, ","))
	}
	return providers, order, nil
}

// RetryPolicy is the per-call retry envelope. Every wait, including a
// server-directed Retry-After, is capped at RETRY_MAX_DELAY.
func RetryPolicy(cfg *infra.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
}

// New wires the full pipeline on top of store.
func New(cfg *infra.Config, store storage.Store, logger *infra.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = infra.NopLogger()
	}
	httpClient := &http.Client{}
	providers, order, err := NewProviders(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}
	writer, err := storage.NewWriter(store, storage.WriterOptions{
		HTTPClient:       httpClient,
		DownloadTimeout:  cfg.DownloadTimeout,
		ContentAddressed: cfg.Storage.ContentAddressed,
		TempDir:          cfg.TempDir,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	catalog := templates.Default()
	orch, err := enhance.NewOrchestrator(enhance.OrchestratorOptions{
		Providers:        providers,
		Order:            order,
		Writer:           writer,
		Retry:            RetryPolicy(cfg),
		GenerationPrefix: cfg.GenerationPrefix,
		Templates:        catalog,
		MaxImageBytes:    cfg.MaxImageBytes,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	runner := batch.NewRunner(orch, batch.Options{
		Window: cfg.BatchWindow,
		Delay:  cfg.BatchDelay,
		Logger: logger,
	})
	logger.Info().Strs("providers", order).Str("storage", cfg.Storage.Backend).Msg("bootstrap: pipeline ready")
	return &Pipeline{
		Store:        store,
		Writer:       writer,
		Catalog:      catalog,
		Orchestrator: orch,
		Runner:       runner,
	}, nil
}
