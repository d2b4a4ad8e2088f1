package encoder

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stillcast/internal/logging"
	"stillcast/internal/tasks"
	"stillcast/internal/testsupport"
)

type staticSource string

func (s staticSource) CurrentImagePath() (string, error) {
	return string(s), nil
}

func stubHandleConfig(t *testing.T) (Config, string) {
	t.Helper()

	base := t.TempDir()
	cfg := testEncoderConfig()
	cfg.Binary = testsupport.StubBinary(t, base, "#!/bin/sh\nexec cat > /dev/null\n")
	cfg.FPS = 50
	cfg.StopTimeout = 2 * time.Second

	imgPath := filepath.Join(base, "frame.png")
	testsupport.WritePNG(t, imgPath, 64, 48)
	return cfg, imgPath
}

func TestHandleStartFeedStop(t *testing.T) {
	cfg, imgPath := stubHandleConfig(t)

	h := NewHandle(cfg, staticSource(imgPath), 64, 48, logging.NewNop())
	if err := h.Start("rtsp://localhost:8554/test", 64, 48); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !h.Alive() {
		t.Fatal("expected process alive after start")
	}

	before := h.LastFrame()
	deadline := time.Now().Add(3 * time.Second)
	for h.LastFrame().Equal(before) {
		if time.Now().After(deadline) {
			t.Fatal("feed loop never wrote a frame")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Stop()
	if h.Alive() {
		t.Fatal("expected process dead after stop")
	}
}

func TestHandleStopIdempotent(t *testing.T) {
	cfg, imgPath := stubHandleConfig(t)

	h := NewHandle(cfg, staticSource(imgPath), 64, 48, logging.NewNop())
	if err := h.Start("rtsp://localhost:8554/test", 64, 48); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.Stop()
	h.Stop()
	if h.Alive() {
		t.Fatal("expected process dead after repeated stops")
	}
}

func TestHandleSpawnFailure(t *testing.T) {
	cfg := testEncoderConfig()
	cfg.Binary = filepath.Join(t.TempDir(), "missing-ffmpeg")

	h := NewHandle(cfg, staticSource(""), 64, 48, logging.NewNop())
	err := h.Start("rtsp://localhost:8554/test", 64, 48)
	if !errors.Is(err, tasks.ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	h.Stop()
}

func TestHandleDetectsProcessDeath(t *testing.T) {
	base := t.TempDir()
	cfg := testEncoderConfig()
	cfg.Binary = testsupport.StubBinary(t, base, "#!/bin/sh\nexit 1\n")
	imgPath := filepath.Join(base, "frame.png")
	testsupport.WritePNG(t, imgPath, 64, 48)

	h := NewHandle(cfg, staticSource(imgPath), 64, 48, logging.NewNop())
	if err := h.Start("rtsp://localhost:8554/test", 64, 48); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process death not observed")
	}
	if h.Alive() {
		t.Fatal("expected Alive to report false after exit")
	}
	if h.ExitErr() == nil {
		t.Fatal("expected non-nil exit error for status 1")
	}
	h.Stop()
}

func TestFrameRenderer(t *testing.T) {
	base := t.TempDir()
	native := filepath.Join(base, "native.png")
	small := filepath.Join(base, "small.png")
	testsupport.WritePNG(t, native, 64, 48)
	testsupport.WritePNG(t, small, 32, 24)

	r := newFrameRenderer(64, 48)

	frame, err := r.render(native)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(frame) != 64*48*3 {
		t.Fatalf("expected %d bytes, got %d", 64*48*3, len(frame))
	}

	again, err := r.render(native)
	if err != nil {
		t.Fatalf("render cached: %v", err)
	}
	if &again[0] != &frame[0] {
		t.Fatal("expected cached frame to be reused")
	}

	resized, err := r.render(small)
	if err != nil {
		t.Fatalf("render resized: %v", err)
	}
	if len(resized) != 64*48*3 {
		t.Fatalf("resized frame wrong size: %d", len(resized))
	}

	if _, err := r.render(filepath.Join(base, "missing.png")); err == nil {
		t.Fatal("expected error for missing image")
	}
}

func TestHandleStopWithStalledProcess(t *testing.T) {
	base := t.TempDir()
	cfg := testEncoderConfig()
	cfg.Binary = testsupport.StubBinary(t, base, "#!/bin/sh\nexec sleep 60\n")
	cfg.FPS = 50
	cfg.StopTimeout = time.Second

	imgPath := filepath.Join(base, "frame.png")
	testsupport.WritePNG(t, imgPath, 64, 48)

	h := NewHandle(cfg, staticSource(imgPath), 64, 48, logging.NewNop())
	if err := h.Start("rtsp://localhost:8554/test", 64, 48); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The stub never reads stdin, so the feed loop ends up blocked on a
	// full pipe. Stop must still terminate the process and return.
	time.Sleep(500 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop hung against a process that stopped consuming frames")
	}
	if h.Alive() {
		t.Fatal("expected process dead after stop")
	}
}

func TestFrameRendererPicksUpOverwrite(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "frame.png")
	testsupport.WritePNG(t, path, 64, 48)

	r := newFrameRenderer(64, 48)
	frame, err := r.render(path)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if frame[2] == 0xff {
		t.Fatalf("unexpected red channel in seed image: %#x", frame[2])
	}

	red := testsupport.PNGBytesColor(t, 64, 48, color.NRGBA{R: 0xff, A: 0xff})
	if err := os.WriteFile(path, red, 0o644); err != nil {
		t.Fatalf("overwrite image: %v", err)
	}
	// Force a distinct timestamp in case the writes share an mtime tick.
	bump := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, bump, bump); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fresh, err := r.render(path)
	if err != nil {
		t.Fatalf("render after overwrite: %v", err)
	}
	if fresh[0] != 0x00 || fresh[1] != 0x00 || fresh[2] != 0xff {
		t.Fatalf("stale frame served after overwrite: BGR %#x %#x %#x", fresh[0], fresh[1], fresh[2])
	}
}
