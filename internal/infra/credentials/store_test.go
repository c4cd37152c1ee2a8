package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"drisya/internal/infra"
)

type stubExecutor struct {
	tokens  map[string]string
	err     error
	lookups []string
	exec    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	provider, _ := args[0].(string)
	s.lookups = append(s.lookups, provider)
	if s.err != nil {
		return stubRow{err: s.err}
	}
	token, ok := s.tokens[provider]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{token: token}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{tokens: map[string]string{"openai": " sk-test "}})
	key, err := store.APIKey(context.Background(), "OpenAI")
	if err != nil {
		t.Fatalf("APIKey error: %v", err)
	}
	if key != "sk-test" {
		t.Fatalf("expected sk-test, got %q", key)
	}
}

func TestAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{})
	key, err := store.APIKey(context.Background(), "stability")
	if err != nil {
		t.Fatalf("APIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestSetAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetAPIKey(context.Background(), " Stability ", "secret"); err != nil {
		t.Fatalf("SetAPIKey error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != "stability" {
		t.Fatalf("expected stability provider, got %T %v", exec.exec.args[0], exec.exec.args[0])
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
}

func TestSetAPIKeyRejects(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetAPIKey(context.Background(), "openai", " "); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.SetAPIKey(context.Background(), "gemini", "secret"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFillKeepsEnvironmentKeys(t *testing.T) {
	exec := &stubExecutor{tokens: map[string]string{"openai": "sk-db", "stability": "st-db", "huggingface": "hf-db"}}
	cfg := &infra.Config{}
	cfg.OpenAI.APIKey = "sk-env"
	cfg.Replicate.APIToken = "r8-env"

	if err := NewStore(exec).Fill(context.Background(), cfg); err != nil {
		t.Fatalf("Fill error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-env" {
		t.Fatalf("env key overwritten: %q", cfg.OpenAI.APIKey)
	}
	if cfg.Stability.APIKey != "st-db" {
		t.Fatalf("expected stored stability key, got %q", cfg.Stability.APIKey)
	}
	if cfg.Replicate.APIToken != "r8-env" {
		t.Fatalf("env token overwritten: %q", cfg.Replicate.APIToken)
	}
	if cfg.HuggingFace.APIToken != "hf-db" {
		t.Fatalf("expected stored huggingface token, got %q", cfg.HuggingFace.APIToken)
	}
	if len(exec.lookups) != 2 || exec.lookups[0] != "stability" || exec.lookups[1] != "huggingface" {
		t.Fatalf("unexpected lookups %v", exec.lookups)
	}
}

func TestFillPropagatesErrors(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("db down")})
	if err := store.Fill(context.Background(), &infra.Config{}); err == nil {
		t.Fatal("expected error")
	}
}
