package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// OpenRouter contains connection settings for the OpenRouter API. APIKey is
// the fallback for config entries created without their own key.
type OpenRouter struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Dispatch tunes request dispatch. Retry delays are in seconds; the number of
// delays bounds the retries for that status.
type Dispatch struct {
	StructuredOutput     string `toml:"structured_output"`
	MaxAttachmentBytes   int64  `toml:"max_attachment_bytes"`
	CapacityRetryDelays  []int  `toml:"capacity_retry_delays"`
	RateLimitRetryDelays []int  `toml:"rate_limit_retry_delays"`
}

// Conversation bounds the in-memory chat logs kept by conversation entities.
type Conversation struct {
	MaxTurns    int `toml:"max_turns"`
	IdleMinutes int `toml:"idle_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for orbridge.
//
// Configuration sections:
//   - Paths: state directory, log directory, and API bind address
//   - OpenRouter: API connection settings
//   - Dispatch: structured output mode, attachment limits, retry delays
//   - Conversation: chat log retention for conversation entities
//   - Logging: log format, level, and retention
type Config struct {
	Paths        Paths        `toml:"paths"`
	OpenRouter   OpenRouter   `toml:"openrouter"`
	Dispatch     Dispatch     `toml:"dispatch"`
	Conversation Conversation `toml:"conversation"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strictErr *toml.StrictMissingError
			if errors.As(err, &strictErr) {
				return nil, "", false, fmt.Errorf("parse config: %s", strictErr.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("orbridge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the config entry store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "orbridge.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "orbridge.lock")
}

// APIKey returns the global OpenRouter key, which may be empty.
func (c *Config) APIKey() string {
	return strings.TrimSpace(c.OpenRouter.APIKey)
}

// RequireAPIKey returns the global OpenRouter key or an actionable error.
func (c *Config) RequireAPIKey() (string, error) {
	if key := c.APIKey(); key != "" {
		return key, nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return "", fmt.Errorf("openrouter.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'orbridge config init')", defaultPath)
}

// OpenRouterTimeout returns the per-request HTTP timeout.
func (c *Config) OpenRouterTimeout() time.Duration {
	return time.Duration(c.OpenRouter.TimeoutSeconds) * time.Second
}

// RetryDelays returns the capacity (503) and rate limit (429) retry tables.
func (c *Config) RetryDelays() (capacity, rateLimit []time.Duration) {
	return secondsToDurations(c.Dispatch.CapacityRetryDelays), secondsToDurations(c.Dispatch.RateLimitRetryDelays)
}

// ConversationIdleTimeout returns how long an unused chat log is kept.
func (c *Config) ConversationIdleTimeout() time.Duration {
	return time.Duration(c.Conversation.IdleMinutes) * time.Minute
}

func secondsToDurations(values []int) []time.Duration {
	out := make([]time.Duration, 0, len(values))
	for _, value := range values {
		out = append(out, time.Duration(value)*time.Second)
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.OpenRouter.APIKey = Redact(c.OpenRouter.APIKey)
	c.Paths.APIToken = Redact(c.Paths.APIToken)
	c.Dispatch.CapacityRetryDelays = append([]int(nil), c.Dispatch.CapacityRetryDelays...)
	c.Dispatch.RateLimitRetryDelays = append([]int(nil), c.Dispatch.RateLimitRetryDelays...)
	return c
}

// Redact masks a secret for display, keeping the first and last four characters.
func Redact(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
