package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Stream.FFmpegBinary = strings.TrimSpace(c.Stream.FFmpegBinary)
	c.Stream.Bitrate = strings.TrimSpace(c.Stream.Bitrate)
	c.Stream.Preset = strings.TrimSpace(c.Stream.Preset)
	c.Stream.Tune = strings.TrimSpace(c.Stream.Tune)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Stream.FFmpegBinary == "" {
		c.Stream.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Stream.FPS <= 0 {
		c.Stream.FPS = defaultFPS
	}
	if c.Stream.GOPSize <= 0 {
		c.Stream.GOPSize = c.Stream.FPS
	}
	if c.Stream.Bitrate == "" {
		c.Stream.Bitrate = defaultBitrate
	}
	if c.Stream.MaxUploadMiB <= 0 {
		c.Stream.MaxUploadMiB = defaultMaxUploadMiB
	}
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = defaultPollInterval
	}
	if c.Monitor.StallThreshold <= 0 {
		c.Monitor.StallThreshold = defaultStallThreshold
	}
	if c.Monitor.MaxRestartAttempts <= 0 {
		c.Monitor.MaxRestartAttempts = defaultMaxRestartAttempts
	}
	if c.Monitor.RestartBackoff <= 0 {
		c.Monitor.RestartBackoff = defaultRestartBackoff
	}
	if c.Monitor.MaxRestartBackoff < c.Monitor.RestartBackoff {
		c.Monitor.MaxRestartBackoff = defaultMaxRestartBackoff
	}
	if c.Monitor.StopTimeout <= 0 {
		c.Monitor.StopTimeout = defaultStopTimeout
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}
