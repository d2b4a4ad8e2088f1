package encoder

import (
	"strings"
	"testing"
	"time"
)

func testEncoderConfig() Config {
	return Config{
		Binary:         "ffmpeg",
		FPS:            25,
		GOPSize:        25,
		Bitrate:        "2M",
		Preset:         "ultrafast",
		Tune:           "fastdecode",
		StopTimeout:    2 * time.Second,
		StallThreshold: 2 * time.Second,
	}
}

func TestBuildArgsShape(t *testing.T) {
	args := BuildArgs("rtsp://localhost:8554/cam1", 1280, 720, testEncoderConfig())

	if args[len(args)-1] != "rtsp://localhost:8554/cam1" {
		t.Fatalf("expected stream URL last, got %q", args[len(args)-1])
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-pix_fmt bgr24",
		"-s 1280x720",
		"-r 25",
		"-i -",
		"-c:v libx264",
		"-b:v 2M",
		"-maxrate 2M",
		"-bufsize 4M",
		"-g 25",
		"-keyint_min 12",
		"-preset ultrafast",
		"-tune fastdecode",
		"-f rtsp",
		"-rtsp_transport tcp",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q in %q", want, joined)
		}
	}
}

func TestBuildArgsKeyintFloor(t *testing.T) {
	cfg := testEncoderConfig()
	cfg.GOPSize = 10
	joined := strings.Join(BuildArgs("rtsp://x/y", 640, 480, cfg), " ")
	if !strings.Contains(joined, "-keyint_min 10") {
		t.Fatalf("expected keyint_min floor of 10, got %q", joined)
	}
}

func TestDoubleBitrate(t *testing.T) {
	cases := map[string]string{
		"2M":    "4M",
		"500k":  "1000K",
		"1M":    "2M",
		"bogus": "bogus",
		"":      "",
	}
	for in, want := range cases {
		if got := doubleBitrate(in); got != want {
			t.Errorf("doubleBitrate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFrameInterval(t *testing.T) {
	cfg := testEncoderConfig()
	if got := cfg.FrameInterval(); got != 40*time.Millisecond {
		t.Fatalf("expected 40ms at 25fps, got %v", got)
	}
	cfg.FPS = 0
	if got := cfg.FrameInterval(); got != 40*time.Millisecond {
		t.Fatalf("expected fallback cadence, got %v", got)
	}
}
