package entity

import (
	"log/slog"

	"orbridge/internal/config"
	"orbridge/internal/dispatch"
	"orbridge/internal/services/openrouter"
)

// ClientFactoryFromConfig builds OpenRouter clients that share the configured
// endpoint, attribution headers and timeout.
func ClientFactoryFromConfig(cfg *config.Config) ClientFactory {
	return func(apiKey string) dispatch.Completer {
		return openrouter.NewClient(openrouter.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.OpenRouter.BaseURL,
			Referer:        cfg.OpenRouter.Referer,
			Title:          cfg.OpenRouter.Title,
			TimeoutSeconds: cfg.OpenRouter.TimeoutSeconds,
		})
	}
}

// SettingsFromConfig maps the dispatch and conversation sections onto
// registry settings.
func SettingsFromConfig(cfg *config.Config, logger *slog.Logger) Settings {
	mode, _ := dispatch.ParseSchemaMode(cfg.Dispatch.StructuredOutput)
	capacity, rateLimit := cfg.RetryDelays()
	return Settings{
		NewClient:          ClientFactoryFromConfig(cfg),
		SchemaMode:         mode,
		Policy:             &dispatch.Policy{CapacityDelays: capacity, RateLimitDelays: rateLimit},
		MaxAttachmentBytes: cfg.Dispatch.MaxAttachmentBytes,
		MaxTurns:           cfg.Conversation.MaxTurns,
		IdleTimeout:        cfg.ConversationIdleTimeout(),
		Logger:             logger,
	}
}
