package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`
	Port     string `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	OpenAI      OpenAIConfig      `envPrefix:"OPENAI_"`
	Stability   StabilityConfig   `envPrefix:"STABILITY_"`
	Replicate   ReplicateConfig   `envPrefix:"REPLICATE_"`
	HuggingFace HuggingFaceConfig `envPrefix:"HF_"`

	ProviderOrder    []string      `env:"PROVIDER_ORDER" envSeparator:"," envDefault:"openai,stability"`
	GenerationPrefix string        `env:"GENERATION_PREFIX" envDefault:"Create a luxury jewelry photography image: "`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"60s"`
	EditTimeout      time.Duration `env:"EDIT_TIMEOUT" envDefault:"120s"`
	GenerateTimeout  time.Duration `env:"GENERATE_TIMEOUT" envDefault:"60s"`
	DownloadTimeout  time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"60s"`
	MaxImageBytes    int64         `env:"MAX_IMAGE_BYTES" envDefault:"4194304"`

	BatchWindow int           `env:"BATCH_WINDOW" envDefault:"3"`
	BatchDelay  time.Duration `env:"BATCH_DELAY" envDefault:"1s"`

	Storage StorageConfig `envPrefix:"STORAGE_"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	AllowedOrigins   []string      `env:"HTTP_ALLOWED_ORIGINS" envSeparator:","`
	EventsRateLimit  int           `env:"HTTP_EVENTS_RATE_LIMIT" envDefault:"30"`
	EventsRateWindow time.Duration `env:"HTTP_EVENTS_RATE_WINDOW" envDefault:"1m"`
	SSEHeartbeat     time.Duration `env:"SSE_HEARTBEAT" envDefault:"15s"`
	SSEPollInterval  time.Duration `env:"SSE_POLL_INTERVAL" envDefault:"2s"`
	SnapshotTTL      time.Duration `env:"PROGRESS_SNAPSHOT_TTL" envDefault:"24h"`

	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	WorkerStaleAfter   time.Duration `env:"WORKER_STALE_AFTER" envDefault:"30m"`
	TempDir            string        `env:"TEMP_DIR"`
}

// OpenAIConfig holds credentials and model selection for the OpenAI images API.
type OpenAIConfig struct {
	APIKey        string `env:"API_KEY"`
	BaseURL       string `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	Org           string `env:"ORG"`
	EditModel     string `env:"EDIT_MODEL"`
	GenerateModel string `env:"GENERATE_MODEL" envDefault:"dall-e-3"`
}

// StabilityConfig holds credentials for the Stability AI REST API.
type StabilityConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.stability.ai"`
	Engine  string `env:"ENGINE" envDefault:"stable-diffusion-xl-1024-v1-0"`
}

// ReplicateConfig holds the token and model version for Replicate predictions.
type ReplicateConfig struct {
	APIToken     string        `env:"API_TOKEN"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api.replicate.com"`
	Version      string        `env:"VERSION" envDefault:"39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	PollTimeout  time.Duration `env:"POLL_TIMEOUT" envDefault:"60s"`
}

// HuggingFaceConfig holds the token and edit model for the Inference API.
type HuggingFaceConfig struct {
	APIToken string `env:"API_TOKEN"`
	BaseURL  string `env:"BASE_URL" envDefault:"https://api-inference.huggingface.co/models"`
	Model    string `env:"MODEL" envDefault:"auto"`
}

// StorageConfig selects where enhanced images are written.
type StorageConfig struct {
	Backend          string `env:"BACKEND" envDefault:"local"`
	Path             string `env:"PATH" envDefault:"./storage"`
	S3Bucket         string `env:"S3_BUCKET"`
	S3Prefix         string `env:"S3_PREFIX" envDefault:"drisya"`
	AWSRegion        string `env:"AWS_REGION"`
	ContentAddressed bool   `env:"CONTENT_ADDRESSED" envDefault:"false"`
}

// LoadConfig loads .env (when present), parses the environment and applies guardrails.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize clamps numeric values into usable ranges and normalizes lists.
func (c *Config) Sanitize() {
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 60 * time.Second
	}
	if c.BatchWindow < 1 {
		c.BatchWindow = 1
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.SSEHeartbeat <= 0 {
		c.SSEHeartbeat = 15 * time.Second
	}
	if c.SSEPollInterval <= 0 {
		c.SSEPollInterval = 2 * time.Second
	}
	if c.WorkerPollInterval <= 0 {
		c.WorkerPollInterval = 2 * time.Second
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 4 << 20
	}
	order := make([]string, 0, len(c.ProviderOrder))
	seen := map[string]struct{}{}
	for _, p := range c.ProviderOrder {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		order = append(order, p)
	}
	c.ProviderOrder = order
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	c.Stability.BaseURL = strings.TrimRight(strings.TrimSpace(c.Stability.BaseURL), "/")
	c.Replicate.BaseURL = strings.TrimRight(strings.TrimSpace(c.Replicate.BaseURL), "/")
	c.HuggingFace.BaseURL = strings.TrimRight(strings.TrimSpace(c.HuggingFace.BaseURL), "/")
}

// Validate reports configuration that cannot work at all.
func (c *Config) Validate() error {
	if len(c.ProviderOrder) == 0 {
		return errors.New("PROVIDER_ORDER must name at least one provider")
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if strings.TrimSpace(c.Storage.S3Bucket) == "" {
			return errors.New("STORAGE_S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	return nil
}

// RequireDatabase returns an error when DATABASE_URL is unset. Only the job
// binaries need it; the CLI runs without a database.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}
