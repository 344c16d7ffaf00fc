package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"orbridge/internal/config"
	"orbridge/internal/entry"
	"orbridge/internal/logging"
	"orbridge/internal/services/openrouter"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore() (*entry.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return entry.Open(cfg.DatabasePath())
}

func (c *commandContext) withStore(fn func(*entry.Store) error) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// newClient builds an OpenRouter client; an empty apiKey falls back to the
// configured default key.
func (c *commandContext) newClient(apiKey string) (*openrouter.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(apiKey) == "" {
		apiKey = cfg.APIKey()
	}
	return openrouter.NewClient(openrouter.Config{
		APIKey:         apiKey,
		BaseURL:        cfg.OpenRouter.BaseURL,
		Referer:        cfg.OpenRouter.Referer,
		Title:          cfg.OpenRouter.Title,
		TimeoutSeconds: cfg.OpenRouter.TimeoutSeconds,
	}), nil
}

// logger writes command diagnostics to stderr so stdout stays parseable.
func (c *commandContext) logger(cmd *cobra.Command, verbose bool) (*slog.Logger, io.Closer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logCfg := *cfg
	if !verbose && logCfg.Logging.Level != "debug" {
		logCfg.Logging.Level = "warn"
	}
	return logging.NewFromConfig(&logCfg, cmd.ErrOrStderr(), "")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
