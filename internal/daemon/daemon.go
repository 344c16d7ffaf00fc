package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"orbridge/internal/config"
	"orbridge/internal/entity"
	"orbridge/internal/entry"
	"orbridge/internal/logging"
)

// Daemon serves the entity registry over HTTP and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *entry.Store
	registry *entity.Registry
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	started time.Time
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	DatabasePath string
	LockFilePath string
	APIAddress   string
	Entries      int
	Entities     int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *entry.Store, registry *entity.Registry, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || registry == nil {
		return nil, errors.New("daemon requires config, store, and registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		registry: registry,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, loads entities and starts the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another orbridge daemon instance is already running")
	}

	if err := d.registry.Load(ctx, d.store); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("load entities: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.mu.Lock()
	d.cancel = cancel
	d.started = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("orbridge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
		logging.Int("entities", len(d.registry.Entities())),
	)
	return nil
}

// Stop shuts down the HTTP API and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report another instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("orbridge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Reload rebuilds the entity registry from the entry store. Conversation
// history is discarded.
func (d *Daemon) Reload(ctx context.Context) error {
	if err := d.registry.Load(ctx, d.store); err != nil {
		return fmt.Errorf("reload entities: %w", err)
	}
	return nil
}

// Registry exposes the loaded entities.
func (d *Daemon) Registry() *entity.Registry {
	return d.registry
}

// APIAddress returns the address the HTTP API listens on, or empty when stopped.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Entities:     len(d.registry.Entities()),
	}
	if status.Running {
		status.StartedAt = started
	}
	if entries, err := d.store.ListEntries(ctx); err == nil {
		status.Entries = len(entries)
	} else {
		d.logger.Debug("entry count unavailable", logging.Error(err))
	}
	return status
}
