package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stillcast/internal/config"
)

// Store manages task persistence backed by SQLite. Every mutating supervisor
// operation writes through Save so a restart reconstructs the full fleet.
type Store struct {
	db   *sql.DB
	path string
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the task database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "tasks.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Save upserts a task record. The write is transactional, so a crash
// mid-write cannot corrupt the previously persisted record.
func (s *Store) Save(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrPersistence)
	}
	imagesJSON, err := json.Marshal(task.Images)
	if err != nil {
		return fmt.Errorf("%w: marshal images: %w", ErrPersistence, err)
	}
	task.UpdatedAt = time.Now().UTC()

	err = s.execWithRetry(ctx,
		`INSERT INTO tasks (id, name, stream_url, width, height, images_json, cursor, should_run, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name, stream_url = excluded.stream_url,
             width = excluded.width, height = excluded.height,
             images_json = excluded.images_json, cursor = excluded.cursor,
             should_run = excluded.should_run, updated_at = excluded.updated_at`,
		task.ID,
		task.Name,
		task.StreamURL,
		task.Width,
		task.Height,
		string(imagesJSON),
		task.Cursor,
		boolToInt(task.ShouldRun),
		task.CreatedAt.Format(time.RFC3339Nano),
		task.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save task %s: %w", ErrPersistence, task.ID, err)
	}
	return nil
}

// Get fetches a task record by id. Returns nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get task: %w", ErrPersistence, err)
	}
	return task, nil
}

// GetByName fetches a task record by its unique name. Returns nil when absent.
func (s *Store) GetByName(ctx context.Context, name string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE name = ?`, strings.TrimSpace(name))
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get task by name: %w", ErrPersistence, err)
	}
	return task, nil
}

// List returns every task record ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %w", ErrPersistence, err)
	}
	defer rows.Close()

	var items []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %w", ErrPersistence, err)
		}
		items = append(items, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tasks: %w", ErrPersistence, err)
	}
	return items, nil
}

// Delete removes a task record. Reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("%w: delete task: %w", ErrPersistence, err)
	}
	return affected > 0, nil
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

const taskColumns = "id, name, stream_url, width, height, images_json, cursor, should_run, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id         string
		name       string
		streamURL  string
		width      int
		height     int
		imagesJSON sql.NullString
		cursor     int
		shouldRun  int
		createdRaw string
		updatedRaw string
	)

	if err := scanner.Scan(&id, &name, &streamURL, &width, &height, &imagesJSON, &cursor, &shouldRun, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	task := &Task{
		ID:        id,
		Name:      name,
		StreamURL: streamURL,
		Width:     width,
		Height:    height,
		Cursor:    cursor,
		ShouldRun: shouldRun != 0,
	}
	if imagesJSON.Valid && imagesJSON.String != "" {
		if err := json.Unmarshal([]byte(imagesJSON.String), &task.Images); err != nil {
			return nil, fmt.Errorf("decode images for task %s: %w", id, err)
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
