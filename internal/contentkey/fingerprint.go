package contentkey

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sleeve/internal/artifact"
	"sleeve/internal/logging"
	"sleeve/internal/services"
)

// FingerprintFile hashes the content of the file at path.
func FingerprintFile(path string) (artifact.Fingerprint, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return artifact.Fingerprint{}, 0, services.Wrap(services.ErrInput, "fingerprint", "open", path, err)
	}
	defer file.Close()

	hasher := newKeyed(sourceDomain)
	size, err := io.Copy(hasher, file)
	if err != nil {
		return artifact.Fingerprint{}, 0, services.Wrap(services.ErrInput, "fingerprint", "read", path, err)
	}
	var fp artifact.Fingerprint
	copy(fp[:], hasher.Sum(nil))
	return fp, size, nil
}

// Memo remembers fingerprints by (path, size, mtime).
type Memo interface {
	LookupFingerprint(ctx context.Context, path string, size int64, modTime time.Time) (artifact.Fingerprint, bool, error)
	RecordFingerprint(ctx context.Context, path string, size int64, modTime time.Time, fp artifact.Fingerprint) error
}

// Fingerprinter turns source paths into fingerprinted artifact sources.
type Fingerprinter struct {
	memo   Memo
	logger *slog.Logger
}

// NewFingerprinter builds a fingerprinter. A nil memo hashes every file on
// every call.
func NewFingerprinter(memo Memo, logger *slog.Logger) *Fingerprinter {
	return &Fingerprinter{memo: memo, logger: logging.NewComponentLogger(logger, "fingerprint")}
}

// Source fingerprints the file at path.
func (f *Fingerprinter) Source(ctx context.Context, path string) (artifact.Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return artifact.Source{}, services.Wrap(services.ErrInput, "fingerprint", "resolve", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return artifact.Source{}, services.Wrap(services.ErrInput, "fingerprint", "stat", abs, err)
	}
	if !info.Mode().IsRegular() {
		return artifact.Source{}, services.Wrap(services.ErrInput, "fingerprint", "stat", abs+" is not a regular file", nil)
	}

	if f.memo != nil {
		fp, ok, err := f.memo.LookupFingerprint(ctx, abs, info.Size(), info.ModTime())
		if err != nil {
			logging.WarnWithContext(ctx, f.logger, "fingerprint memo lookup failed; rehashing", "fingerprint_memo_error",
				logging.String(logging.FieldSource, abs),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file is hashed again"),
			)
		} else if ok {
			return artifact.Source{Path: abs, Fingerprint: fp, Size: info.Size()}, nil
		}
	}

	fp, size, err := FingerprintFile(abs)
	if err != nil {
		return artifact.Source{}, err
	}
	if size != info.Size() {
		// The file changed while we read it; do not remember a fingerprint that
		// may not match the recorded size and mtime.
		return artifact.Source{Path: abs, Fingerprint: fp, Size: size}, nil
	}
	if f.memo != nil {
		if err := f.memo.RecordFingerprint(ctx, abs, info.Size(), info.ModTime(), fp); err != nil {
			f.logger.DebugContext(ctx, "fingerprint memo write failed",
				logging.String(logging.FieldSource, abs),
				logging.Error(err),
			)
		}
	}
	return artifact.Source{Path: abs, Fingerprint: fp, Size: size}, nil
}

// Sources fingerprints each path in order.
func (f *Fingerprinter) Sources(ctx context.Context, paths ...string) ([]artifact.Source, error) {
	out := make([]artifact.Source, 0, len(paths))
	for _, path := range paths {
		src, err := f.Source(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", path, err)
		}
		out = append(out, src)
	}
	return out, nil
}
