package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// RetentionPolicy governs what happens to cache entries a build did not use.
type RetentionPolicy string

const (
	// RetentionDelayed purges unused entries once they have been stale for
	// longer than the grace window.
	RetentionDelayed RetentionPolicy = "delayed"
	// RetentionImmediate purges unused entries at the end of the build that
	// found them unused.
	RetentionImmediate RetentionPolicy = "immediate"
	// RetentionWipe clears the whole cache after every build.
	RetentionWipe RetentionPolicy = "wipe"
	// RetentionManual only reports unused entries.
	RetentionManual RetentionPolicy = "manual"
)

// ParseRetentionPolicy normalizes a policy name. "default" is accepted as an
// alias for delayed.
func ParseRetentionPolicy(value string) (RetentionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default", string(RetentionDelayed):
		return RetentionDelayed, nil
	case string(RetentionImmediate):
		return RetentionImmediate, nil
	case string(RetentionWipe):
		return RetentionWipe, nil
	case string(RetentionManual):
		return RetentionManual, nil
	default:
		return "", fmt.Errorf("unknown retention policy %q (want delayed, immediate, wipe or manual)", value)
	}
}

// Paths contains directory configuration.
type Paths struct {
	CacheDir string `toml:"cache_dir"`
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
}

// Cache contains build cache behaviour.
type Cache struct {
	Retention       RetentionPolicy `toml:"retention"`
	GraceHours      int             `toml:"grace_hours"`
	Workers         int             `toml:"workers"`
	ContinueOnError bool            `toml:"continue_on_error"`
	// TrustFileStat lets unchanged (path, size, mtime) triples reuse their
	// previous fingerprint instead of rehashing the file.
	TrustFileStat bool `toml:"trust_file_stat"`
}

// Tools contains external codec tool settings.
type Tools struct {
	FFmpeg         string `toml:"ffmpeg"`
	FFprobe        string `toml:"ffprobe"`
	ValidateOutput bool   `toml:"validate_output"`
}

// Images contains image variant settings.
type Images struct {
	JPEGQuality int `toml:"jpeg_quality"`
}

// Site contains settings that shape published artifact names.
type Site struct {
	// URLSalt freezes download URLs; changing it rotates every URL.
	URLSalt string `toml:"url_salt"`
	// RotateDownloadURLs draws a fresh salt on every build.
	RotateDownloadURLs bool   `toml:"rotate_download_urls"`
	StreamingQuality   string `toml:"streaming_quality"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sleeve.
//
// Configuration sections by subsystem:
//   - Paths: cache, scratch and log directories
//   - Cache: retention policy, grace window, worker pool and error handling
//   - Tools: ffmpeg/ffprobe binaries and output validation
//   - Images: JPEG quality for image variants
//   - Site: download URL salt and streaming quality
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Cache   Cache   `toml:"cache"`
	Tools   Tools   `toml:"tools"`
	Images  Images  `toml:"images"`
	Site    Site    `toml:"site"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sleeve/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sleeve.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache, scratch and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.WorkDirectory(), c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WorkDirectory returns the scratch directory producers write into. It
// defaults to a directory inside the cache so finished payloads can be
// renamed into place without crossing filesystems.
func (c *Config) WorkDirectory() string {
	if dir := strings.TrimSpace(c.Paths.WorkDir); dir != "" {
		return dir
	}
	if c.Paths.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.CacheDir, "tmp")
}

// Grace returns the delayed-retention grace window.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Cache.GraceHours) * time.Hour
}

// WorkerCount returns the producer pool size, defaulting to the CPU count.
func (c *Config) WorkerCount() int {
	if c.Cache.Workers > 0 {
		return c.Cache.Workers
	}
	return runtime.NumCPU()
}

// FFmpegBinary returns the ffmpeg executable used for transcodes.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFmpeg); bin != "" {
		return bin
	}
	return defaultFFmpeg
}

// FFprobeBinary returns the ffprobe executable used for output validation.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFprobe); bin != "" {
		return bin
	}
	return defaultFFprobe
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "sleeve")
	}
	return "~/.cache/sleeve"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
