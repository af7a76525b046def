package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `
server:
  port: 9090
database:
  path: "./test.db"
upload:
  max_file_size: 1048576
history:
  attachment_window_minutes: 30
llm:
  model: "gemini-2.5-pro"
  max_rounds: 2
storage:
  bucket: "reddichat-files"
`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("expected db path ./test.db, got %s", cfg.Database.Path)
	}
	if cfg.Upload.MaxFileSize != 1048576 {
		t.Errorf("expected max_file_size 1048576, got %d", cfg.Upload.MaxFileSize)
	}
	if cfg.History.AttachmentWindowMinutes != 30 {
		t.Errorf("expected attachment_window_minutes 30, got %d", cfg.History.AttachmentWindowMinutes)
	}
	if cfg.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("expected model gemini-2.5-pro, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.MaxRounds != 2 {
		t.Errorf("expected max_rounds 2, got %d", cfg.LLM.MaxRounds)
	}
	if cfg.Storage.Bucket != "reddichat-files" {
		t.Errorf("expected bucket reddichat-files, got %s", cfg.Storage.Bucket)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Upload.MaxFileSize != 10<<20 {
		t.Errorf("expected default max_file_size 10MiB, got %d", cfg.Upload.MaxFileSize)
	}
	if cfg.History.AttachmentWindowMinutes != 60 {
		t.Errorf("expected default window 60, got %d", cfg.History.AttachmentWindowMinutes)
	}
	if cfg.LLM.MaxRounds != 4 {
		t.Errorf("expected default max_rounds 4, got %d", cfg.LLM.MaxRounds)
	}
	if cfg.Storage.SignedURLExpiry != 86400 {
		t.Errorf("expected default signed_url_expiry 86400, got %d", cfg.Storage.SignedURLExpiry)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestSecretsFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("SECRET_KEY", "test-secret")

	if cfg.LLMAPIKey() != "test-gemini-key" {
		t.Errorf("expected LLM key from env, got %q", cfg.LLMAPIKey())
	}
	if cfg.JWTSecret() != "test-secret" {
		t.Errorf("expected JWT secret from env, got %q", cfg.JWTSecret())
	}
}
