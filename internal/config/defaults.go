package config

const (
	defaultRetention      = RetentionDelayed
	defaultGraceHours     = 24
	defaultFFmpeg         = "ffmpeg"
	defaultFFprobe        = "ffprobe"
	defaultJPEGQuality    = 80
	defaultStreamingLevel = "standard"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir(),
		},
		Cache: Cache{
			Retention:  defaultRetention,
			GraceHours: defaultGraceHours,
		},
		Tools: Tools{
			FFmpeg:         defaultFFmpeg,
			FFprobe:        defaultFFprobe,
			ValidateOutput: true,
		},
		Images: Images{
			JPEGQuality: defaultJPEGQuality,
		},
		Site: Site{
			StreamingQuality: defaultStreamingLevel,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
