package encoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"stillcast/internal/config"
)

// Config carries the encoder invocation settings shared by every task.
type Config struct {
	Binary         string
	FPS            int
	GOPSize        int
	Bitrate        string
	Preset         string
	Tune           string
	StopTimeout    time.Duration
	StallThreshold time.Duration
}

// FromConfig derives encoder settings from the application configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Binary:         cfg.Stream.FFmpegBinary,
		FPS:            cfg.Stream.FPS,
		GOPSize:        cfg.Stream.GOPSize,
		Bitrate:        cfg.Stream.Bitrate,
		Preset:         cfg.Stream.Preset,
		Tune:           cfg.Stream.Tune,
		StopTimeout:    time.Duration(cfg.Monitor.StopTimeout) * time.Second,
		StallThreshold: time.Duration(cfg.Monitor.StallThreshold) * time.Second,
	}
}

// FrameInterval returns the cadence of the feed loop.
func (c Config) FrameInterval() time.Duration {
	fps := c.FPS
	if fps <= 0 {
		fps = 25
	}
	return time.Second / time.Duration(fps)
}

// BuildArgs constructs the ffmpeg argument list deterministically from task
// configuration: raw BGR24 frames on stdin at the configured frame rate,
// H.264 out with one keyframe per GOP, pushed over RTSP/TCP. TCP is chosen
// over UDP so image switches can never corrupt the bitstream mid-GOP.
func BuildArgs(streamURL string, width, height int, cfg Config) []string {
	return []string{
		"-y",
		"-f", "rawvideo",
		"-vcodec", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(cfg.FPS),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-b:v", cfg.Bitrate,
		"-maxrate", cfg.Bitrate,
		"-bufsize", doubleBitrate(cfg.Bitrate),
		"-g", strconv.Itoa(cfg.GOPSize),
		"-keyint_min", strconv.Itoa(maxInt(10, cfg.GOPSize/2)),
		"-preset", cfg.Preset,
		"-tune", cfg.Tune,
		"-profile:v", "high",
		"-level:v", "4.1",
		"-x264-params", "repeat_headers=1",
		"-flags", "+global_header",
		"-bsf:v", "h264_mp4toannexb",
		"-f", "rtsp",
		"-rtsp_transport", "tcp",
		streamURL,
	}
}

// doubleBitrate derives the VBV buffer size from the target bitrate,
// e.g. "2M" becomes "4M". Unparseable values are returned unchanged.
func doubleBitrate(bitrate string) string {
	if len(bitrate) < 2 {
		return bitrate
	}
	suffix := bitrate[len(bitrate)-1:]
	value, err := strconv.Atoi(bitrate[:len(bitrate)-1])
	if err != nil {
		return bitrate
	}
	return strconv.Itoa(value*2) + strings.ToUpper(suffix)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
