package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"stillcast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and short monitor intervals so recovery tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Monitor.PollInterval = 1
	cfgVal.Monitor.StallThreshold = 1
	cfgVal.Monitor.RestartBackoff = 1
	cfgVal.Monitor.StopTimeout = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithFFmpegBinary overrides the encoder binary on the test config.
func WithFFmpegBinary(binary string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stream.FFmpegBinary = binary
	}
}

// WithMaxRestartAttempts overrides the monitor's retry bound.
func WithMaxRestartAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.MaxRestartAttempts = n
	}
}

// WithStubbedFFmpeg writes a stub encoder binary that consumes stdin until
// it is closed, and points the config at it. The stub behaves like a healthy
// ffmpeg process from the supervisor's point of view.
func WithStubbedFFmpeg() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stream.FFmpegBinary = StubBinary(b.t, b.baseDir, "#!/bin/sh\nexec cat > /dev/null\n")
	}
}

// WithStalledFFmpeg writes a stub encoder binary that stays alive but never
// reads stdin, so the feed pipe fills and the last-frame clock freezes.
func WithStalledFFmpeg() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stream.FFmpegBinary = StubBinary(b.t, b.baseDir, "#!/bin/sh\nexec sleep 60\n")
	}
}

// StubBinary writes an executable shell script under baseDir and returns its path.
func StubBinary(t testing.TB, baseDir, script string) string {
	t.Helper()

	binDir := filepath.Join(baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub binary: %v", err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
