package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"stillcast/internal/config"
	"stillcast/internal/logging"
	"stillcast/internal/supervisor"
	"stillcast/internal/tasks"
)

// Daemon ties the supervisor and the HTTP control surface together and
// enforces single-instance execution with a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *tasks.Store
	sup    *supervisor.Supervisor
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *tasks.Store, sup *supervisor.Supervisor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || sup == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, supervisor, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "stillcastd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		sup:      sup,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, sup, d.logger)
	return d, nil
}

// Start acquires the instance lock, restores and resumes persisted tasks,
// and brings up the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stillcast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.sup.Init(runCtx); err != nil {
		d.releaseLock()
		cancel()
		return fmt.Errorf("init supervisor: %w", err)
	}
	if err := d.sup.Run(runCtx); err != nil {
		d.releaseLock()
		cancel()
		return fmt.Errorf("start monitor: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.sup.Shutdown()
		d.releaseLock()
		cancel()
		return err
	}

	d.running.Store(true)
	d.logger.Info("stillcast daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.Addr()))
	return nil
}

// Stop shuts down the API server and every running encoder and releases the
// instance lock. Safe to call more than once.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.sup.Shutdown()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("stillcast daemon stopped")
}

// Close stops the daemon and closes the backing store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the bound API address, empty before Start.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// LockFilePath returns the path of the single-instance lock file.
func (d *Daemon) LockFilePath() string {
	return d.lockPath
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
