package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOpenRouter()
	c.normalizeDispatch()
	c.normalizeConversation()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("ORBRIDGE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeOpenRouter() {
	c.OpenRouter.APIKey = strings.TrimSpace(c.OpenRouter.APIKey)
	if c.OpenRouter.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.OpenRouter.APIKey = strings.TrimSpace(value)
		}
	}
	c.OpenRouter.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenRouter.BaseURL), "/")
	if c.OpenRouter.BaseURL == "" {
		c.OpenRouter.BaseURL = defaultOpenRouterBaseURL
	}
	c.OpenRouter.Referer = strings.TrimSpace(c.OpenRouter.Referer)
	if c.OpenRouter.Referer == "" {
		c.OpenRouter.Referer = defaultOpenRouterReferer
	}
	c.OpenRouter.Title = strings.TrimSpace(c.OpenRouter.Title)
	if c.OpenRouter.Title == "" {
		c.OpenRouter.Title = defaultOpenRouterTitle
	}
	if c.OpenRouter.TimeoutSeconds <= 0 {
		c.OpenRouter.TimeoutSeconds = defaultOpenRouterTimeout
	}
}

func (c *Config) normalizeDispatch() {
	c.Dispatch.StructuredOutput = strings.ToLower(strings.TrimSpace(c.Dispatch.StructuredOutput))
	if c.Dispatch.StructuredOutput == "" {
		c.Dispatch.StructuredOutput = defaultStructuredOutput
	}
	if c.Dispatch.MaxAttachmentBytes <= 0 {
		c.Dispatch.MaxAttachmentBytes = defaultMaxAttachmentBytes
	}
	// A nil table means the key was absent; an explicit empty list disables retries.
	if c.Dispatch.CapacityRetryDelays == nil {
		c.Dispatch.CapacityRetryDelays = []int{5, 10}
	}
	if c.Dispatch.RateLimitRetryDelays == nil {
		c.Dispatch.RateLimitRetryDelays = []int{10, 20}
	}
}

func (c *Config) normalizeConversation() {
	if c.Conversation.MaxTurns <= 0 {
		c.Conversation.MaxTurns = defaultConversationTurns
	}
	if c.Conversation.IdleMinutes <= 0 {
		c.Conversation.IdleMinutes = defaultConversationIdleMin
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
