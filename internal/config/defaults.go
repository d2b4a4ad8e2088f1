package config

const (
	defaultDataDir            = "~/.local/share/stillcast"
	defaultLogDir             = "~/.local/share/stillcast/logs"
	defaultAPIBind            = "127.0.0.1:8083"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFPS                = 25
	defaultGOPSize            = 25
	defaultBitrate            = "2M"
	defaultPreset             = "ultrafast"
	defaultTune               = "fastdecode"
	defaultMaxUploadMiB       = 16
	defaultPollInterval       = 3
	defaultStallThreshold     = 10
	defaultMaxRestartAttempts = 3
	defaultRestartBackoff     = 2
	defaultMaxRestartBackoff  = 60
	defaultStopTimeout        = 5
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Stream: Stream{
			FFmpegBinary: defaultFFmpegBinary,
			FPS:          defaultFPS,
			GOPSize:      defaultGOPSize,
			Bitrate:      defaultBitrate,
			Preset:       defaultPreset,
			Tune:         defaultTune,
			MaxUploadMiB: defaultMaxUploadMiB,
		},
		Monitor: Monitor{
			PollInterval:       defaultPollInterval,
			StallThreshold:     defaultStallThreshold,
			MaxRestartAttempts: defaultMaxRestartAttempts,
			RestartBackoff:     defaultRestartBackoff,
			MaxRestartBackoff:  defaultMaxRestartBackoff,
			StopTimeout:        defaultStopTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
