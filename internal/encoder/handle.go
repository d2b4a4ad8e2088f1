package encoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"stillcast/internal/logging"
	"stillcast/internal/tasks"
)

var commandContext = exec.CommandContext

// ImageSource yields the path of the image the feed loop should stream. It is
// consulted on every frame tick, so a cursor switch takes effect on the next
// tick without restarting the process.
type ImageSource interface {
	CurrentImagePath() (string, error)
}

// Handle owns one running ffmpeg process and the goroutines feeding it raw
// frames. A Handle is single-use: Start launches the process, Stop tears it
// down, and a new Handle must be created for a restart.
type Handle struct {
	cfg      Config
	source   ImageSource
	logger   *slog.Logger
	renderer *frameRenderer

	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser

	stopOnce sync.Once
	stopCh   chan struct{}
	feedDone chan struct{}
	procDone chan struct{}

	started   bool
	startedAt time.Time
	lastFrame atomic.Int64

	exitMu  sync.Mutex
	exitErr error
}

// NewHandle prepares a handle for one encode session at the given resolution.
func NewHandle(cfg Config, source ImageSource, width, height int, logger *slog.Logger) *Handle {
	return &Handle{
		cfg:      cfg,
		source:   source,
		logger:   logging.NewComponentLogger(logger, "encoder"),
		renderer: newFrameRenderer(width, height),
		stopCh:   make(chan struct{}),
		feedDone: make(chan struct{}),
		procDone: make(chan struct{}),
	}
}

// Start launches the ffmpeg process and the frame feed loop. Launch failures
// are wrapped in ErrSpawn so the health monitor can classify them.
func (h *Handle) Start(streamURL string, width, height int) error {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	args := BuildArgs(streamURL, width, height, h.cfg)
	cmd := commandContext(ctx, h.cfg.Binary, args...) //nolint:gosec
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = h.cfg.StopTimeout
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: stdin pipe: %v", tasks.ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %v", tasks.ErrSpawn, err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.started = true
	h.startedAt = time.Now()
	h.lastFrame.Store(h.startedAt.UnixNano())
	h.logger.Info("encoder started",
		logging.String("url", streamURL),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("resolution", fmt.Sprintf("%dx%d", width, height)))

	go h.waitProcess()
	go h.feedLoop()
	return nil
}

func (h *Handle) waitProcess() {
	err := h.cmd.Wait()
	h.exitMu.Lock()
	h.exitErr = err
	h.exitMu.Unlock()
	close(h.procDone)
	if err != nil {
		h.logger.Debug("encoder exited", logging.Error(err))
	}
}

// feedLoop writes one raw BGR24 frame per tick until stopped or the process
// goes away. Frame errors (unreadable or mismatched image under the cursor)
// skip the tick rather than kill the stream.
func (h *Handle) feedLoop() {
	defer close(h.feedDone)

	ticker := time.NewTicker(h.cfg.FrameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-h.procDone:
			return
		case <-ticker.C:
		}

		path, err := h.source.CurrentImagePath()
		if err != nil {
			h.logger.Warn("no current image", logging.Error(err))
			continue
		}
		frame, err := h.renderer.render(path)
		if err != nil {
			h.logger.Warn("frame render failed", logging.Error(err))
			continue
		}
		if _, err := h.stdin.Write(frame); err != nil {
			h.logger.Debug("frame write failed", logging.Error(err))
			return
		}
		h.lastFrame.Store(time.Now().UnixNano())
	}
}

// Stop shuts the process down in two phases. It first stops the feed loop and
// closes stdin so ffmpeg can drain and exit on EOF; if the process is still
// alive after the stop timeout it is cancelled, which escalates SIGTERM then
// kill. Stop is idempotent and safe to call on an already-dead handle.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		if !h.started {
			return
		}
		close(h.stopCh)
		// Closing stdin before waiting on the feed loop matters for
		// stalled processes: a write blocked against a full pipe only
		// returns once the file is closed.
		if h.stdin != nil {
			_ = h.stdin.Close()
		}
		<-h.feedDone

		select {
		case <-h.procDone:
		case <-time.After(h.cfg.StopTimeout):
			h.logger.Warn("encoder did not exit on EOF, terminating")
			h.cancel()
			<-h.procDone
		}

		if h.cancel != nil {
			h.cancel()
		}
		h.logger.Info("encoder stopped", logging.Duration("uptime", time.Since(h.startedAt)))
	})
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.procDone:
		return false
	default:
		return h.cmd != nil
	}
}

// LastFrame returns the time the feed loop last wrote a frame successfully.
func (h *Handle) LastFrame() time.Time {
	return time.Unix(0, h.lastFrame.Load())
}

// StartedAt returns the process launch time.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// ExitErr returns the process exit error once it has terminated, nil while
// running or after a clean exit.
func (h *Handle) ExitErr() error {
	h.exitMu.Lock()
	defer h.exitMu.Unlock()
	return h.exitErr
}

// Done exposes process termination for callers that want to block on it.
func (h *Handle) Done() <-chan struct{} {
	return h.procDone
}

// Pid returns the launched process id, zero before Start.
func (h *Handle) Pid() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}
