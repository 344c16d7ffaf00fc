package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"orbridge/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "orbridge", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".local", "share", "orbridge"); cfg.Paths.StateDir != want {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, want)
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.StateDir, "orbridge.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.APIKey() != "env-key" {
		t.Fatalf("expected key from env, got %q", cfg.APIKey())
	}
	if cfg.OpenRouter.BaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("unexpected base url: %q", cfg.OpenRouter.BaseURL)
	}
	if cfg.OpenRouterTimeout() != 60*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.OpenRouterTimeout())
	}
	capacity, rateLimit := cfg.RetryDelays()
	if len(capacity) != 2 || capacity[0] != 5*time.Second || capacity[1] != 10*time.Second {
		t.Fatalf("unexpected capacity delays: %v", capacity)
	}
	if len(rateLimit) != 2 || rateLimit[0] != 10*time.Second || rateLimit[1] != 20*time.Second {
		t.Fatalf("unexpected rate limit delays: %v", rateLimit)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	configPath := filepath.Join(t.TempDir(), "orbridge.toml")

	type payload struct {
		OpenRouter struct {
			APIKey  string `toml:"api_key"`
			BaseURL string `toml:"base_url"`
		} `toml:"openrouter"`
		Dispatch struct {
			StructuredOutput    string `toml:"structured_output"`
			CapacityRetryDelays []int  `toml:"capacity_retry_delays"`
		} `toml:"dispatch"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.OpenRouter.APIKey = "file-key"
	custom.OpenRouter.BaseURL = "http://localhost:9000/api/v1/"
	custom.Dispatch.StructuredOutput = "Instructions"
	custom.Dispatch.CapacityRetryDelays = []int{}
	custom.Logging.Format = "JSON"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.APIKey() != "file-key" {
		t.Fatalf("file key must win over env fallback, got %q", cfg.APIKey())
	}
	if cfg.OpenRouter.BaseURL != "http://localhost:9000/api/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.OpenRouter.BaseURL)
	}
	if cfg.Dispatch.StructuredOutput != "instructions" {
		t.Fatalf("expected normalized mode, got %q", cfg.Dispatch.StructuredOutput)
	}
	if capacity, _ := cfg.RetryDelays(); len(capacity) != 0 {
		t.Fatalf("explicit empty table must disable retries, got %v", capacity)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "orbridge.toml")
	if err := os.WriteFile(configPath, []byte("[openrouter]\napi_kee = \"typo\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "api_kee") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestRequireAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	if _, err := cfg.RequireAPIKey(); err == nil || !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("expected actionable error, got %v", err)
	}
	cfg.OpenRouter.APIKey = " sk-or-v1 "
	key, err := cfg.RequireAPIKey()
	if err != nil || key != "sk-or-v1" {
		t.Fatalf("RequireAPIKey = %q, %v", key, err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_openrouter_api_key_here") {
		t.Fatalf("sample config missing placeholder key: %s", contents)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config must load: %v", err)
	}
	if cfg.Dispatch.StructuredOutput != "response_format" {
		t.Fatalf("unexpected sample mode: %q", cfg.Dispatch.StructuredOutput)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad bind", func(c *config.Config) { c.Paths.APIBind = "localhost" }},
		{"relative base url", func(c *config.Config) { c.OpenRouter.BaseURL = "openrouter.ai" }},
		{"zero timeout", func(c *config.Config) { c.OpenRouter.TimeoutSeconds = 0 }},
		{"unknown mode", func(c *config.Config) { c.Dispatch.StructuredOutput = "tools" }},
		{"negative delay", func(c *config.Config) { c.Dispatch.RateLimitRetryDelays = []int{-1} }},
		{"too many delays", func(c *config.Config) { c.Dispatch.CapacityRetryDelays = []int{1, 1, 1, 1, 1, 1} }},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.OpenRouter.APIKey = "sk-or-v1-abcdefghijkl"
	cfg.Paths.APIToken = "short"
	redacted := cfg.Redacted()
	if redacted.OpenRouter.APIKey != "sk-o****ijkl" || redacted.Paths.APIToken != "****" {
		t.Fatalf("unexpected redaction: %q %q", redacted.OpenRouter.APIKey, redacted.Paths.APIToken)
	}
	if cfg.OpenRouter.APIKey != "sk-or-v1-abcdefghijkl" {
		t.Fatal("Redacted must not modify the receiver")
	}
}
