package supervisor

import (
	"context"
	"time"

	"stillcast/internal/logging"
	"stillcast/internal/tasks"
)

// monitorLoop polls every task on a fixed cadence and drives crashed or
// stalled encoders through restart with exponential backoff. Tasks whose
// encoder cannot be revived within the retry bound are marked failed and
// demoted to should_run=false so they stay down across daemon restarts.
func (s *Supervisor) monitorLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Monitor.PollInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("health monitor started", logging.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, st := range s.snapshotStates() {
			s.checkTask(ctx, st)
		}
	}
}

func (s *Supervisor) checkTask(ctx context.Context, st *taskState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.task.ShouldRun || st.health == tasks.HealthFailed {
		return
	}

	now := time.Now()
	stallThreshold := time.Duration(s.cfg.Monitor.StallThreshold) * time.Second

	if st.handle != nil && st.handle.Alive() {
		stalled := now.Sub(st.handle.LastFrame())
		if stalled <= stallThreshold {
			if st.health != tasks.HealthHealthy {
				s.logger.Info("task recovered", logging.String("task", st.task.Name))
			}
			st.health = tasks.HealthHealthy
			st.failures = 0
			st.suspectSince = time.Time{}
			return
		}
		if st.health != tasks.HealthSuspect {
			st.health = tasks.HealthSuspect
			st.suspectSince = now
			s.logger.Warn("task stalled",
				logging.String("task", st.task.Name),
				logging.Duration("since_last_frame", stalled))
			return
		}
		if now.Sub(st.suspectSince) < stallThreshold {
			return
		}
		s.logger.Warn("stalled encoder unresponsive, replacing",
			logging.String("task", st.task.Name))
		st.handle.Stop()
		st.handle = nil
	} else if st.handle != nil {
		s.logger.Warn("encoder exited unexpectedly",
			logging.String("task", st.task.Name),
			logging.Error(st.handle.ExitErr()))
		st.handle.Stop()
		st.handle = nil
	}

	st.health = tasks.HealthRestarting
	if now.Before(st.nextRetry) {
		return
	}

	if err := s.launchLocked(ctx, st); err != nil {
		st.failures++
		st.health = tasks.HealthRestarting
		if st.failures >= s.cfg.Monitor.MaxRestartAttempts {
			st.health = tasks.HealthFailed
			st.task.ShouldRun = false
			s.logger.Error("task failed after exhausting restart attempts",
				logging.String("task", st.task.Name),
				logging.Int("attempts", st.failures),
				logging.Error(err))
			if perr := s.persistLocked(ctx, st); perr != nil {
				s.logger.Error("persist failed task state",
					logging.String("task", st.task.Name),
					logging.Error(perr))
			}
			return
		}
		st.nextRetry = now.Add(s.backoffFor(st.failures))
		s.logger.Warn("restart attempt failed",
			logging.String("task", st.task.Name),
			logging.Int("attempt", st.failures),
			logging.Duration("next_retry_in", st.nextRetry.Sub(now)),
			logging.Error(err))
		return
	}

	st.restarts++
	st.failures = 0
	st.nextRetry = time.Time{}
	s.logger.Info("task restarted",
		logging.String("task", st.task.Name),
		logging.Int("restarts", st.restarts))
}

// backoffFor doubles the base backoff per consecutive failure, capped at the
// configured maximum.
func (s *Supervisor) backoffFor(failures int) time.Duration {
	base := time.Duration(s.cfg.Monitor.RestartBackoff) * time.Second
	max := time.Duration(s.cfg.Monitor.MaxRestartBackoff) * time.Second
	backoff := base
	for i := 1; i < failures; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if max > 0 && backoff > max {
		return max
	}
	return backoff
}
