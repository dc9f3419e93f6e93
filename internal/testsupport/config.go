package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"sleeve/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Cache.Workers = 4
	cfgVal.Logging.Level = "debug"

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

// WithRetention sets the retention policy on the test config.
func WithRetention(policy config.RetentionPolicy) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Retention = policy
	}
}

// WithContinueOnError toggles whether builds keep going after a failure.
func WithContinueOnError(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.ContinueOnError = enabled
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := b.binDir()
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// ffmpegStub copies the input after an "encoded:" prefix into the last
// argument and logs each invocation. Inputs whose name contains "corrupt"
// fail the way ffmpeg does on undecodable data; inputs containing "crash"
// fail with a generic error.
const ffmpegStub = `#!/bin/sh
in=""
prev=""
last=""
for arg; do
  if [ "$prev" = "-i" ] && [ -z "$in" ]; then in="$arg"; fi
  prev="$arg"
  last="$arg"
done
echo "$in" >> "%s"
case "$in" in
  *corrupt*) echo "$in: Invalid data found when processing input" >&2; exit 1;;
  *crash*) echo "Segmentation fault" >&2; exit 139;;
esac
{ printf 'encoded:'; cat "$in"; } > "$last"
`

const ffprobeStub = `#!/bin/sh
cat <<'JSON'
{"streams":[{"index":0,"codec_type":"audio","codec_name":"stub","channels":2,"sample_rate":"48000"}],"format":{"duration":"1.500000","format_name":"stub"}}
JSON
`

// WithCodecStubs installs scripted ffmpeg and ffprobe binaries and points the
// config at them. Use FFmpegInvocations to count transcodes.
func WithCodecStubs() ConfigOption {
	return func(b *configBuilder) {
		binDir := b.binDir()
		ffmpeg := filepath.Join(binDir, "ffmpeg")
		ffprobe := filepath.Join(binDir, "ffprobe")
		logPath := filepath.Join(binDir, "ffmpeg.log")
		if err := os.WriteFile(ffmpeg, []byte(fmt.Sprintf(ffmpegStub, logPath)), 0o755); err != nil {
			b.t.Fatalf("write ffmpeg stub: %v", err)
		}
		if err := os.WriteFile(ffprobe, []byte(ffprobeStub), 0o755); err != nil {
			b.t.Fatalf("write ffprobe stub: %v", err)
		}
		b.cfg.Tools.FFmpeg = ffmpeg
		b.cfg.Tools.FFprobe = ffprobe
	}
}

func (b *configBuilder) binDir() string {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	return binDir
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CacheDir)
}
