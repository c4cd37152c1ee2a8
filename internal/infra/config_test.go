package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PROVIDER_ORDER", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("BATCH_WINDOW", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BatchWindow != 3 || cfg.BatchDelay != time.Second {
		t.Fatalf("batch = %d/%s, want 3/1s", cfg.BatchWindow, cfg.BatchDelay)
	}
	if cfg.RetryMaxDelay != 60*time.Second {
		t.Fatalf("RetryMaxDelay = %s, want 60s", cfg.RetryMaxDelay)
	}
	if cfg.DownloadTimeout != 60*time.Second {
		t.Fatalf("DownloadTimeout = %s, want 60s", cfg.DownloadTimeout)
	}
	if cfg.MaxImageBytes != 4<<20 {
		t.Fatalf("MaxImageBytes = %d, want 4MiB", cfg.MaxImageBytes)
	}
	if len(cfg.ProviderOrder) != 2 || cfg.ProviderOrder[0] != "openai" || cfg.ProviderOrder[1] != "stability" {
		t.Fatalf("ProviderOrder = %#v", cfg.ProviderOrder)
	}
	if cfg.OpenAI.GenerateModel != "dall-e-3" {
		t.Fatalf("OpenAI.GenerateModel = %q, want dall-e-3", cfg.OpenAI.GenerateModel)
	}
	if cfg.Replicate.PollTimeout != 60*time.Second || cfg.Replicate.PollInterval != 2*time.Second {
		t.Fatalf("replicate polling = %s/%s, want 2s/60s", cfg.Replicate.PollInterval, cfg.Replicate.PollTimeout)
	}
	if cfg.HuggingFace.Model != "auto" {
		t.Fatalf("HuggingFace.Model = %q, want auto", cfg.HuggingFace.Model)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.Path != "./storage" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestLoadConfigNormalizesProviderOrder(t *testing.T) {
	t.Setenv("PROVIDER_ORDER", " Stability, openai ,stability,, ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"stability", "openai"}
	if len(cfg.ProviderOrder) != len(expected) {
		t.Fatalf("ProviderOrder = %#v, want %#v", cfg.ProviderOrder, expected)
	}
	for i, p := range expected {
		if cfg.ProviderOrder[i] != p {
			t.Fatalf("ProviderOrder[%d] = %q, want %q", i, cfg.ProviderOrder[i], p)
		}
	}
}

func TestLoadConfigRequiresBucketForS3(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("STORAGE_S3_BUCKET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when STORAGE_S3_BUCKET is missing")
	}
}

func TestSanitizeClampsValues(t *testing.T) {
	cfg := &Config{MaxRetries: 0, BatchWindow: -2, BatchDelay: -time.Second, RetryMaxDelay: -time.Second, ProviderOrder: []string{"OpenAI"}}
	cfg.Sanitize()
	if cfg.MaxRetries != 1 || cfg.BatchWindow != 1 || cfg.BatchDelay != 0 {
		t.Fatalf("sanitize = retries %d window %d delay %s", cfg.MaxRetries, cfg.BatchWindow, cfg.BatchDelay)
	}
	if cfg.RetryMaxDelay != 60*time.Second {
		t.Fatalf("RetryMaxDelay = %s, want 60s", cfg.RetryMaxDelay)
	}
	if cfg.ProviderOrder[0] != "openai" {
		t.Fatalf("ProviderOrder[0] = %q, want openai", cfg.ProviderOrder[0])
	}
}

func TestRequireDatabase(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireDatabase(); err == nil {
		t.Fatalf("expected error for empty DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://example"
	if err := cfg.RequireDatabase(); err != nil {
		t.Fatalf("RequireDatabase returned error: %v", err)
	}
}

func TestLoadConfigReadsProviderTokens(t *testing.T) {
	t.Setenv("PROVIDER_ORDER", "replicate,huggingface")
	t.Setenv("REPLICATE_API_TOKEN", "r8-token")
	t.Setenv("REPLICATE_POLL_TIMEOUT", "90s")
	t.Setenv("HF_API_TOKEN", "hf-token")
	t.Setenv("HF_MODEL", "flux-kontext")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Replicate.APIToken != "r8-token" || cfg.Replicate.PollTimeout != 90*time.Second {
		t.Fatalf("replicate = %+v", cfg.Replicate)
	}
	if cfg.HuggingFace.APIToken != "hf-token" || cfg.HuggingFace.Model != "flux-kontext" {
		t.Fatalf("huggingface = %+v", cfg.HuggingFace)
	}
	if len(cfg.ProviderOrder) != 2 || cfg.ProviderOrder[1] != "huggingface" {
		t.Fatalf("ProviderOrder = %#v", cfg.ProviderOrder)
	}
}
