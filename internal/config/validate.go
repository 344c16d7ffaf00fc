package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const maxRetryDelaySeconds = 300

// Validate ensures the configuration is usable. The OpenRouter key is not
// required here because config entries may carry their own; commands that
// need the global key call RequireAPIKey.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateOpenRouter(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateOpenRouter() error {
	parsed, err := url.Parse(c.OpenRouter.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("openrouter.base_url must be an absolute URL, got %q", c.OpenRouter.BaseURL)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("openrouter.base_url must use http or https, got %q", parsed.Scheme)
	}
	if c.OpenRouter.TimeoutSeconds <= 0 {
		return errors.New("openrouter.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	switch c.Dispatch.StructuredOutput {
	case "response_format", "instructions":
	default:
		return fmt.Errorf("dispatch.structured_output must be response_format or instructions, got %q", c.Dispatch.StructuredOutput)
	}
	if c.Dispatch.MaxAttachmentBytes <= 0 {
		return errors.New("dispatch.max_attachment_bytes must be positive")
	}
	if err := validateDelays("dispatch.capacity_retry_delays", c.Dispatch.CapacityRetryDelays); err != nil {
		return err
	}
	return validateDelays("dispatch.rate_limit_retry_delays", c.Dispatch.RateLimitRetryDelays)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
}

func validateDelays(key string, delays []int) error {
	if len(delays) > 5 {
		return fmt.Errorf("%s allows at most 5 entries", key)
	}
	for _, delay := range delays {
		if delay < 0 || delay > maxRetryDelaySeconds {
			return fmt.Errorf("%s entries must be between 0 and %d seconds", key, maxRetryDelaySeconds)
		}
	}
	return nil
}
