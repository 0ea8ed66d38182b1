package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Embedding.Dimension != 384 || cfg.Embedding.Provider != "local" {
		t.Fatalf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Fatalf("topK = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Vitals.Defaults.Glucose != 120 || cfg.Vitals.Defaults.BMI != 26.5 || cfg.Vitals.Defaults.DiabetesPedigreeFunction != 0.35 {
		t.Fatalf("unexpected vitals defaults: %+v", cfg.Vitals.Defaults)
	}
	if cfg.Risk.TestSize != 0.2 || cfg.Risk.Seed != 42 {
		t.Fatalf("unexpected risk config: %+v", cfg.Risk)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MEDPROMPT_SERVER_PORT", "9090")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key = %q, want sk-test", cfg.LLM.APIKey)
	}
}

func TestLoadConfigFile(t *testing.T) {
	chdirTemp(t)
	yaml := []byte("retrieval:\n  topK: 5\nembedding:\n  provider: openai\n")
	if err := os.WriteFile(filepath.Join(".", "config.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Embedding.Provider != "openai" {
		t.Fatalf("file values not applied: %+v %+v", cfg.Retrieval, cfg.Embedding)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MEDPROMPT_EMBEDDING_PROVIDER", "faiss")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
