package supervisor

import (
	"context"

	"stillcast/internal/logging"
	"stillcast/internal/sequence"
)

// AddImage validates, stores, and appends an image to a task's sequence. The
// first image fixes the task resolution. A running encoder picks the image up
// as soon as the cursor reaches it; no restart happens.
func (s *Supervisor) AddImage(ctx context.Context, ref string, data []byte, filename string) error {
	st, err := s.resolve(ref)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, _, err := st.seq.Add(data, filename); err != nil {
		return err
	}
	s.logger.Info("image added",
		logging.String("task", st.task.Name),
		logging.String("image", filename),
		logging.Int("count", st.seq.Len()))
	return s.persistLocked(ctx, st)
}

// RemoveImage deletes an image from the sequence and from disk. Removing the
// last image of a running task fails with ErrLastImage.
func (s *Supervisor) RemoveImage(ctx context.Context, ref string, filename string) error {
	st, err := s.resolve(ref)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	running := st.handle != nil && st.handle.Alive()
	if err := st.seq.Remove(filename, running); err != nil {
		return err
	}
	s.logger.Info("image removed",
		logging.String("task", st.task.Name),
		logging.String("image", filename))
	return s.persistLocked(ctx, st)
}

// Next advances the cursor one step forward with wraparound and returns the
// new index. The running encoder streams the new image from its next frame
// tick.
func (s *Supervisor) Next(ctx context.Context, ref string) (int, error) {
	return s.advance(ctx, ref, sequence.Next)
}

// Prev moves the cursor one step backward with wraparound.
func (s *Supervisor) Prev(ctx context.Context, ref string) (int, error) {
	return s.advance(ctx, ref, sequence.Prev)
}

func (s *Supervisor) advance(ctx context.Context, ref string, dir sequence.Direction) (int, error) {
	st, err := s.resolve(ref)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	idx, err := st.seq.Advance(dir)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("cursor moved",
		logging.String("task", st.task.Name),
		logging.String("direction", dir.String()),
		logging.Int("cursor", idx))
	return idx, s.persistLocked(ctx, st)
}

// Goto jumps the cursor to an explicit index and returns the image filename.
func (s *Supervisor) Goto(ctx context.Context, ref string, index int) (string, error) {
	st, err := s.resolve(ref)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	name, err := st.seq.JumpIndex(index)
	if err != nil {
		return "", err
	}
	s.logger.Debug("cursor jumped",
		logging.String("task", st.task.Name),
		logging.Int("cursor", index),
		logging.String("image", name))
	return name, s.persistLocked(ctx, st)
}

// GotoName jumps the cursor to the named image and returns its index.
func (s *Supervisor) GotoName(ctx context.Context, ref string, filename string) (int, error) {
	st, err := s.resolve(ref)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	idx, err := st.seq.JumpName(filename)
	if err != nil {
		return 0, err
	}
	return idx, s.persistLocked(ctx, st)
}

// Images returns the ordered image filenames of a task.
func (s *Supervisor) Images(ref string) ([]string, int, error) {
	st, err := s.resolve(ref)
	if err != nil {
		return nil, 0, err
	}
	images, cursor, _, _ := st.seq.Snapshot()
	return images, cursor, nil
}

// ImagePath returns the on-disk path of a named image in a task's sequence.
func (s *Supervisor) ImagePath(ref, filename string) (string, error) {
	st, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	return st.seq.ImagePath(filename)
}
