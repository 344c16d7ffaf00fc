package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"orbridge/internal/config"
	"orbridge/internal/daemon"
	"orbridge/internal/entity"
	"orbridge/internal/entry"
	"orbridge/internal/logging"
)

const sessionName = "orbridge"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// Development forces debug logging with source locations.
	Development bool
}

// Run starts the orbridge daemon and blocks until the context is canceled or
// the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		logCfg.Logging.Level = level
	}
	if opts.Development {
		logCfg.Logging.Level = "debug"
	}
	logPath := logging.SessionLogPath(cfg.Paths.LogDir, sessionName, time.Now())
	logger, closer, err := logging.NewFromConfig(&logCfg, nil, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()

	logConfigSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update orbridge.log link: %v\n", err)
	}
	logging.PruneSessionLogs(logger, cfg.Paths.LogDir, sessionName, cfg.Logging.RetentionDays, logPath)

	pidPath := filepath.Join(cfg.Paths.StateDir, "orbridge.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := entry.Open(cfg.DatabasePath())
	if err != nil {
		logger.Error("open entry store", logging.Error(err))
		return err
	}

	registry := entity.NewRegistry(entity.SettingsFromConfig(cfg, logger))
	d, err := daemon.New(cfg, store, registry, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api_bind, the lock file and entry database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("orbridge daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "orbridge.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	capacity, rateLimit := cfg.RetryDelays()
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("base_url", cfg.OpenRouter.BaseURL),
		logging.Int("timeout_seconds", cfg.OpenRouter.TimeoutSeconds),
		logging.String("structured_output", cfg.Dispatch.StructuredOutput),
		logging.Any("capacity_retry_delays", capacity),
		logging.Any("rate_limit_retry_delays", rateLimit),
		logging.Int64("max_attachment_bytes", cfg.Dispatch.MaxAttachmentBytes),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Bool("default_api_key_set", cfg.APIKey() != ""),
	)
}
