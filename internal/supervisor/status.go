package supervisor

import (
	"sort"

	"stillcast/internal/tasks"
)

// Status returns a caller-facing snapshot of one task.
func (s *Supervisor) Status(ref string) (tasks.Status, error) {
	st, err := s.resolve(ref)
	if err != nil {
		return tasks.Status{}, err
	}
	return s.statusOf(st), nil
}

// List returns snapshots of every task ordered by name.
func (s *Supervisor) List() []tasks.Status {
	states := s.snapshotStates()
	out := make([]tasks.Status, 0, len(states))
	for _, st := range states {
		out = append(out, s.statusOf(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) statusOf(st *taskState) tasks.Status {
	st.mu.Lock()
	defer st.mu.Unlock()

	images, cursor, width, height := st.seq.Snapshot()
	current := ""
	if len(images) > 0 {
		current = images[cursor]
	}
	status := tasks.Status{
		ID:           st.task.ID,
		Name:         st.task.Name,
		StreamURL:    st.task.StreamURL,
		Width:        width,
		Height:       height,
		Running:      st.handle != nil && st.handle.Alive(),
		ShouldRun:    st.task.ShouldRun,
		Health:       st.health,
		Cursor:       cursor,
		CurrentImage: current,
		ImageCount:   len(images),
		Restarts:     st.restarts,
		CreatedAt:    st.task.CreatedAt,
		UpdatedAt:    st.task.UpdatedAt,
	}
	if status.Running {
		status.StartedAt = st.startedAt
	}
	return status
}
