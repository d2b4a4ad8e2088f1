package tasks

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is the durable projection of a streaming task. Images holds filenames
// in insertion order; Cursor indexes the image currently fed to the encoder.
// Width and Height are zero until the first image fixes the resolution.
type Task struct {
	ID        string
	Name      string
	StreamURL string
	Width     int
	Height    int
	Images    []string
	Cursor    int
	ShouldRun bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTask constructs a task record with a generated id.
func NewTask(name, streamURL string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		StreamURL: strings.TrimSpace(streamURL),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to hand to callers outside the lock domain.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Images = append([]string(nil), t.Images...)
	return &cp
}

// HasResolution reports whether the first accepted image has fixed the resolution.
func (t *Task) HasResolution() bool {
	return t.Width > 0 && t.Height > 0
}

// CurrentImage returns the filename under the cursor, or "" for an empty sequence.
func (t *Task) CurrentImage() string {
	if len(t.Images) == 0 || t.Cursor < 0 || t.Cursor >= len(t.Images) {
		return ""
	}
	return t.Images[t.Cursor]
}

// Health describes the monitor's view of one running task.
type Health string

const (
	HealthHealthy    Health = "healthy"
	HealthSuspect    Health = "suspect"
	HealthRestarting Health = "restarting"
	HealthFailed     Health = "failed"
)

// Status is the caller-facing snapshot of a task returned by status and list
// operations.
type Status struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StreamURL    string    `json:"stream_url"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Running      bool      `json:"running"`
	ShouldRun    bool      `json:"should_run"`
	Health       Health    `json:"health"`
	Cursor       int       `json:"cursor"`
	CurrentImage string    `json:"current_image"`
	ImageCount   int       `json:"image_count"`
	Restarts     int       `json:"restarts"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
