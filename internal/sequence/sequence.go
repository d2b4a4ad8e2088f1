// Package sequence implements the ordered image list and cursor backing one
// streaming task.
//
// The sequence owns the task's image directory: Add decodes and validates
// incoming bytes before writing the file, Remove deletes it. All cursor
// movement wraps around, and the zero cursor invariant (0 <= cursor < len)
// holds whenever the sequence is non-empty. Methods are safe for concurrent
// use; the encoder's feed loop reads the current path under a read lock so a
// concurrent switch can never produce a torn read.
package sequence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stillcast/internal/tasks"
)

// Direction selects the cursor movement for Advance.
type Direction int

const (
	Next Direction = iota
	Prev
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// Sequence is an ordered view over a task's image directory plus a cursor.
// Width and height are zero until the first accepted image fixes them.
type Sequence struct {
	mu     sync.RWMutex
	dir    string
	width  int
	height int
	images []string
	cursor int
}

// New returns an empty sequence rooted at dir.
func New(dir string) *Sequence {
	return &Sequence{dir: dir}
}

// Restore rebuilds a sequence from a persisted task record. The cursor is
// clamped into range so a hand-edited or stale record cannot violate the
// cursor invariant.
func Restore(dir string, width, height int, images []string, cursor int) *Sequence {
	s := &Sequence{
		dir:    dir,
		width:  width,
		height: height,
		images: append([]string(nil), images...),
	}
	if len(s.images) > 0 {
		if cursor < 0 || cursor >= len(s.images) {
			cursor = 0
		}
		s.cursor = cursor
	}
	return s
}

// Add validates and appends an image. The first accepted image fixes the
// sequence resolution; later images must match it exactly. Re-adding an
// existing filename overwrites the file and keeps its position.
func (s *Sequence) Add(data []byte, filename string) (int, int, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return 0, 0, fmt.Errorf("%w: invalid filename %q", tasks.ErrUnsupportedFormat, filename)
	}

	width, height, err := probeImage(data, filename)
	if err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.width > 0 && (width != s.width || height != s.height) {
		return 0, 0, fmt.Errorf("%w: got %dx%d, sequence is %dx%d",
			tasks.ErrResolutionMismatch, width, height, s.width, s.height)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("create image directory: %w", err)
	}
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, 0, fmt.Errorf("write image %s: %w", filename, err)
	}

	if s.width == 0 {
		s.width = width
		s.height = height
	}
	if s.indexOfLocked(filename) == -1 {
		s.images = append(s.images, filename)
	}
	return s.width, s.height, nil
}

// Remove deletes an image from the list and from disk. A running task must
// always have something to stream, so removing the only image fails with
// ErrLastImage while running is true. When the removed entry sits at or
// before the cursor, the cursor is clamped back into range.
func (s *Sequence) Remove(filename string, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfLocked(filename)
	if idx == -1 {
		return fmt.Errorf("%w: %s", tasks.ErrImageNotFound, filename)
	}
	if running && len(s.images) == 1 {
		return tasks.ErrLastImage
	}

	s.images = append(s.images[:idx], s.images[idx+1:]...)
	switch {
	case len(s.images) == 0:
		s.cursor = 0
	case idx < s.cursor:
		s.cursor--
	case s.cursor >= len(s.images):
		s.cursor = len(s.images) - 1
	}

	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image %s: %w", filename, err)
	}
	return nil
}

// Current returns the filename under the cursor.
func (s *Sequence) Current() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.images) == 0 {
		return "", tasks.ErrEmptySequence
	}
	return s.images[s.cursor], nil
}

// CurrentImagePath returns the absolute path of the image under the cursor.
// The encoder's feed loop calls this every frame tick.
func (s *Sequence) CurrentImagePath() (string, error) {
	current, err := s.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, current), nil
}

// ImagePath returns the absolute path of a named sequence member.
func (s *Sequence) ImagePath(filename string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.indexOfLocked(filename) == -1 {
		return "", fmt.Errorf("%w: %s", tasks.ErrImageNotFound, filename)
	}
	return filepath.Join(s.dir, filename), nil
}

// Advance moves the cursor one step with wraparound and returns the new
// index. For sequences of length <= 1 it reports success with the cursor
// unchanged, matching idempotent switch semantics.
func (s *Sequence) Advance(d Direction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.images) == 0 {
		return 0, tasks.ErrEmptySequence
	}
	if len(s.images) == 1 {
		return s.cursor, nil
	}
	if d == Prev {
		s.cursor = (s.cursor - 1 + len(s.images)) % len(s.images)
	} else {
		s.cursor = (s.cursor + 1) % len(s.images)
	}
	return s.cursor, nil
}

// JumpIndex moves the cursor to an explicit index.
func (s *Sequence) JumpIndex(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.images) == 0 {
		return "", tasks.ErrEmptySequence
	}
	if index < 0 || index >= len(s.images) {
		return "", fmt.Errorf("%w: index %d, sequence has %d images", tasks.ErrOutOfRange, index, len(s.images))
	}
	s.cursor = index
	return s.images[index], nil
}

// JumpName moves the cursor to the named image and returns its index.
func (s *Sequence) JumpName(filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOfLocked(filename)
	if idx == -1 {
		return 0, fmt.Errorf("%w: %s", tasks.ErrImageNotFound, filename)
	}
	s.cursor = idx
	return idx, nil
}

// Len returns the number of images.
func (s *Sequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Cursor returns the current cursor position.
func (s *Sequence) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Resolution returns the fixed width and height, zero before the first image.
func (s *Sequence) Resolution() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Dir returns the image directory backing the sequence.
func (s *Sequence) Dir() string {
	return s.dir
}

// Snapshot captures list, cursor, and resolution under one lock acquisition
// for persistence.
func (s *Sequence) Snapshot() (images []string, cursor, width, height int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.images...), s.cursor, s.width, s.height
}

func (s *Sequence) indexOfLocked(filename string) int {
	for i, name := range s.images {
		if name == filename {
			return i
		}
	}
	return -1
}
