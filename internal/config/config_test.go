package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenNoFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recall.MaxContextTokens != DefaultConfig().Recall.MaxContextTokens {
		t.Fatalf("expected default recall budget, got %d", cfg.Recall.MaxContextTokens)
	}
	want := filepath.Join(home, ".mira", "mira.db")
	if cfg.Store.Path != want {
		t.Fatalf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	globalDir := filepath.Join(home, ".mira")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(globalDir, "config.yaml"), []byte("recall:\n  max_context_tokens: 1000\n"), 0o644)

	projectRoot := t.TempDir()
	projectCfgDir := filepath.Join(projectRoot, ".mira")
	os.MkdirAll(projectCfgDir, 0o755)
	os.WriteFile(filepath.Join(projectCfgDir, "config.yaml"), []byte("recall:\n  max_context_tokens: 2000\n"), 0o644)

	cfg, err := Load(projectRoot)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recall.MaxContextTokens != 2000 {
		t.Fatalf("expected project override to win, got %d", cfg.Recall.MaxContextTokens)
	}
}

func TestApplyEnvOverrides_OpenAIKeyEnablesEmbeddings(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Embedding.Provider != "none" {
		t.Fatalf("expected keyword-only default provider")
	}
	cfg.applyEnvOverrides(map[string]string{"OPENAI_API_KEY": "sk-test"})
	if cfg.Embedding.Provider != "openai" {
		t.Fatalf("expected provider switched to openai")
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Fatalf("expected API key captured")
	}
}

func TestApplyEnvOverrides_BraveKeyGatesExpertSearch(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BraveAPIKey() != "" {
		t.Fatalf("expected no brave key by default")
	}
	cfg.applyEnvOverrides(map[string]string{"BRAVE_API_KEY": "brave-test"})
	if cfg.BraveAPIKey() != "brave-test" {
		t.Fatalf("expected brave key captured")
	}
}
