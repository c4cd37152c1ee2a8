// Package credentials keeps provider API keys in Postgres so deployments can
// rotate them without touching the environment.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"drisya/internal/infra"
	"drisya/internal/sqlinline"
)

// Providers lists the names a key can be stored for.
var Providers = []string{"openai", "stability", "replicate", "huggingface"}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// APIKey returns the stored key for provider, or "" when none is stored.
func (s *Store) APIKey(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, strings.ToLower(provider))
	var key string
	if err := row.Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// SetAPIKey stores key for provider, replacing any previous key.
func (s *Store) SetAPIKey(ctx context.Context, provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !known(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	return s.upsert(ctx, provider, key, nil)
}

// Fill sets every provider key that is empty in cfg from the store.
// Environment values always win.
func (s *Store) Fill(ctx context.Context, cfg *infra.Config) error {
	targets := map[string]*string{
		"openai":      &cfg.OpenAI.APIKey,
		"stability":   &cfg.Stability.APIKey,
		"replicate":   &cfg.Replicate.APIToken,
		"huggingface": &cfg.HuggingFace.APIToken,
	}
	for _, provider := range Providers {
		dst := targets[provider]
		if strings.TrimSpace(*dst) != "" {
			continue
		}
		key, err := s.APIKey(ctx, provider)
		if err != nil {
			return fmt.Errorf("load %s api key: %w", provider, err)
		}
		*dst = key
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, provider, key string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderCredential, provider, key, raw)
	return err
}

func known(provider string) bool {
	for _, p := range Providers {
		if p == provider {
			return true
		}
	}
	return false
}
