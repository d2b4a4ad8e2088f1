package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"stillcast/internal/config"
	"stillcast/internal/encoder"
	"stillcast/internal/logging"
	"stillcast/internal/sequence"
	"stillcast/internal/tasks"
)

// Supervisor owns the fleet of streaming tasks. All mutations flow through
// it: the per-task lock serializes lifecycle operations against the health
// monitor, and the outer map lock only guards membership.
type Supervisor struct {
	cfg    *config.Config
	store  *tasks.Store
	logger *slog.Logger
	encCfg encoder.Config

	mu     sync.RWMutex
	states map[string]*taskState

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// taskState couples a task record with its live runtime pieces. The handle is
// nil while the task is stopped; it is replaced wholesale on every restart,
// so recovery bookkeeping lives here rather than on the handle.
type taskState struct {
	mu     sync.Mutex
	task   *tasks.Task
	seq    *sequence.Sequence
	handle *encoder.Handle

	health       tasks.Health
	restarts     int
	failures     int
	nextRetry    time.Time
	suspectSince time.Time
	startedAt    time.Time
}

// New constructs a supervisor bound to the given store.
func New(cfg *config.Config, store *tasks.Store, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "supervisor"),
		encCfg: encoder.FromConfig(cfg),
		states: make(map[string]*taskState),
	}
}

// Init loads persisted tasks and relaunches the ones marked should_run.
// A task that fails to relaunch is left to the health monitor instead of
// aborting startup, so one broken task cannot take the fleet down.
func (s *Supervisor) Init(ctx context.Context) error {
	persisted, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	s.mu.Lock()
	for _, task := range persisted {
		st := &taskState{
			task:   task,
			seq:    sequence.Restore(s.cfg.TaskImagesDir(task.ID), task.Width, task.Height, task.Images, task.Cursor),
			health: tasks.HealthHealthy,
		}
		s.states[task.ID] = st
	}
	s.mu.Unlock()

	for _, task := range persisted {
		if !task.ShouldRun {
			continue
		}
		st := s.lookup(task.ID)
		if st == nil {
			continue
		}
		st.mu.Lock()
		err := s.launchLocked(ctx, st)
		st.mu.Unlock()
		if err != nil {
			s.logger.Warn("auto-start failed, leaving to monitor",
				logging.String("task", task.Name),
				logging.Error(err))
		}
	}

	s.logger.Info("supervisor initialized", logging.Int("tasks", len(persisted)))
	return nil
}

// Run starts the health monitor. It returns immediately; Shutdown stops it.
func (s *Supervisor) Run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return fmt.Errorf("supervisor already running")
	}
	monCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.monitorLoop(monCtx)
	return nil
}

// Shutdown stops the monitor and every running encoder. Task records keep
// their should_run flag so the next daemon start resumes them.
func (s *Supervisor) Shutdown() {
	s.runMu.Lock()
	if s.running {
		s.cancel()
		s.running = false
	}
	s.runMu.Unlock()
	s.wg.Wait()

	for _, st := range s.snapshotStates() {
		st.mu.Lock()
		if st.handle != nil {
			st.handle.Stop()
			st.handle = nil
		}
		st.mu.Unlock()
	}
	s.logger.Info("supervisor shut down")
}

// Create registers a new task with an empty image sequence.
func (s *Supervisor) Create(ctx context.Context, name, streamURL string) (*tasks.Task, error) {
	name = strings.TrimSpace(name)
	streamURL = strings.TrimSpace(streamURL)
	if name == "" {
		return nil, fmt.Errorf("%w: task name required", tasks.ErrInvalidArgument)
	}
	if !strings.HasPrefix(streamURL, "rtsp://") {
		return nil, fmt.Errorf("%w: stream url %q must use the rtsp:// scheme", tasks.ErrInvalidArgument, streamURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.task.Name == name {
			return nil, fmt.Errorf("%w: %s", tasks.ErrDuplicateName, name)
		}
	}

	task := tasks.NewTask(name, streamURL)
	if err := s.store.Save(ctx, task); err != nil {
		return nil, err
	}
	s.states[task.ID] = &taskState{
		task:   task,
		seq:    sequence.New(s.cfg.TaskImagesDir(task.ID)),
		health: tasks.HealthHealthy,
	}
	s.logger.Info("task created",
		logging.String("task", name),
		logging.String("id", task.ID),
		logging.String("url", streamURL))
	return task.Clone(), nil
}

// Delete stops a task if needed and removes its record and image directory.
func (s *Supervisor) Delete(ctx context.Context, ref string) error {
	st, err := s.resolve(ref)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if st.handle != nil {
		st.handle.Stop()
		st.handle = nil
	}
	// The monitor may still hold this pointer from a snapshot taken before
	// the map removal below. Clearing the run intent here makes a late
	// checkTask a no-op instead of a relaunch of a deleted task.
	st.task.ShouldRun = false
	id := st.task.ID
	name := st.task.Name
	st.mu.Unlock()

	if _, err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()

	if err := os.RemoveAll(s.cfg.TaskImagesDir(id)); err != nil {
		s.logger.Warn("remove image directory failed",
			logging.String("task", name),
			logging.Error(err))
	}
	s.logger.Info("task deleted", logging.String("task", name))
	return nil
}

// Start launches the encoder for a task. Starting a running task fails with
// ErrAlreadyRunning; starting with no images fails with ErrEmptySequence.
func (s *Supervisor) Start(ctx context.Context, ref string) error {
	st, err := s.resolve(ref)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.handle != nil {
		if st.handle.Alive() {
			return fmt.Errorf("%w: %s", tasks.ErrAlreadyRunning, st.task.Name)
		}
		// Dead handle left behind by a crash the monitor has not seen yet.
		// Stop releases its process resources before we replace it.
		st.handle.Stop()
		st.handle = nil
	}
	if err := s.launchLocked(ctx, st); err != nil {
		return err
	}
	st.task.ShouldRun = true
	st.failures = 0
	st.nextRetry = time.Time{}
	return s.persistLocked(ctx, st)
}

// Stop terminates the encoder and clears should_run. Stopping a stopped task
// is a no-op.
func (s *Supervisor) Stop(ctx context.Context, ref string) error {
	st, err := s.resolve(ref)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.handle != nil {
		st.handle.Stop()
		st.handle = nil
		s.logger.Info("task stopped", logging.String("task", st.task.Name))
	}
	st.health = tasks.HealthHealthy
	st.failures = 0
	if !st.task.ShouldRun {
		return nil
	}
	st.task.ShouldRun = false
	return s.persistLocked(ctx, st)
}

// Restart stops and relaunches the encoder, resetting the recovery state. It
// is the manual escape hatch for tasks the monitor has marked failed.
func (s *Supervisor) Restart(ctx context.Context, ref string) error {
	st, err := s.resolve(ref)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.handle != nil {
		st.handle.Stop()
		st.handle = nil
	}
	st.failures = 0
	st.nextRetry = time.Time{}
	if err := s.launchLocked(ctx, st); err != nil {
		return err
	}
	st.task.ShouldRun = true
	return s.persistLocked(ctx, st)
}

// launchLocked spawns the encoder process for st. Caller holds st.mu.
func (s *Supervisor) launchLocked(ctx context.Context, st *taskState) error {
	if st.seq.Len() == 0 {
		return fmt.Errorf("%w: task %s has no images", tasks.ErrEmptySequence, st.task.Name)
	}
	width, height := st.seq.Resolution()

	handle := encoder.NewHandle(s.encCfg, st.seq, width, height, s.logger)
	if err := handle.Start(st.task.StreamURL, width, height); err != nil {
		return err
	}
	st.handle = handle
	st.health = tasks.HealthHealthy
	st.suspectSince = time.Time{}
	st.startedAt = time.Now()
	s.logger.Info("task started",
		logging.String("task", st.task.Name),
		logging.Int("pid", handle.Pid()))
	return nil
}

// persistLocked writes the current sequence snapshot through to the store.
// Caller holds st.mu. In-memory state is authoritative; a persistence error
// is returned but never rolls the memory image back.
func (s *Supervisor) persistLocked(ctx context.Context, st *taskState) error {
	images, cursor, width, height := st.seq.Snapshot()
	st.task.Images = images
	st.task.Cursor = cursor
	st.task.Width = width
	st.task.Height = height
	st.task.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, st.task); err != nil {
		s.logger.Error("persist task failed",
			logging.String("task", st.task.Name),
			logging.Error(err))
		return err
	}
	return nil
}

// resolve finds a task state by id or by name.
func (s *Supervisor) resolve(ref string) (*taskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[ref]; ok {
		return st, nil
	}
	for _, st := range s.states {
		if st.task.Name == ref {
			return st, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", tasks.ErrNotFound, ref)
}

func (s *Supervisor) lookup(id string) *taskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[id]
}

func (s *Supervisor) snapshotStates() []*taskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*taskState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out
}
