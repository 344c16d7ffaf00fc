package config

const (
	defaultConfigPath          = "~/.config/orbridge/config.toml"
	defaultStateDir            = "~/.local/share/orbridge"
	defaultLogDir              = "~/.local/share/orbridge/logs"
	defaultAPIBind             = "127.0.0.1:7490"
	defaultOpenRouterBaseURL   = "https://openrouter.ai/api/v1"
	defaultOpenRouterReferer   = "https://www.home-assistant.io/integrations/open_router"
	defaultOpenRouterTitle     = "Home Assistant"
	defaultOpenRouterTimeout   = 60
	defaultStructuredOutput    = "response_format"
	defaultMaxAttachmentBytes  = 20 << 20
	defaultConversationTurns   = 20
	defaultConversationIdleMin = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		OpenRouter: OpenRouter{
			BaseURL:        defaultOpenRouterBaseURL,
			Referer:        defaultOpenRouterReferer,
			Title:          defaultOpenRouterTitle,
			TimeoutSeconds: defaultOpenRouterTimeout,
		},
		Dispatch: Dispatch{
			StructuredOutput:     defaultStructuredOutput,
			MaxAttachmentBytes:   defaultMaxAttachmentBytes,
			CapacityRetryDelays:  []int{5, 10},
			RateLimitRetryDelays: []int{10, 20},
		},
		Conversation: Conversation{
			MaxTurns:    defaultConversationTurns,
			IdleMinutes: defaultConversationIdleMin,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
