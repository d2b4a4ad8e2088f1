package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.FPS > 60 {
		return fmt.Errorf("stream.fps %d exceeds the supported maximum of 60", c.Stream.FPS)
	}
	if !validBitrate(c.Stream.Bitrate) {
		return fmt.Errorf("stream.bitrate %q must be digits followed by K or M", c.Stream.Bitrate)
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.StallThreshold < c.Monitor.PollInterval {
		return errors.New("monitor.stall_threshold must be at least monitor.poll_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}

func validBitrate(value string) bool {
	if len(value) < 2 {
		return false
	}
	suffix := value[len(value)-1]
	if suffix != 'K' && suffix != 'M' && suffix != 'k' && suffix != 'm' {
		return false
	}
	for _, r := range value[:len(value)-1] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
