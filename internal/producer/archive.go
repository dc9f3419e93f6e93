package producer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"sleeve/internal/artifact"
	"sleeve/internal/services"
)

// archiveEpoch stamps every member so identical inputs give identical bytes.
var archiveEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type archiver struct{}

type archiveMember struct {
	name  string
	path  string
	store bool
}

func (a *archiver) produce(ctx context.Context, req *artifact.Request, deps []string, workDir string) (Output, error) {
	params := *req.Archive
	members := make([]archiveMember, 0, len(deps)+len(req.Sources))
	for i, path := range deps {
		// Lossy audio does not shrink under deflate.
		members = append(members, archiveMember{name: params.TrackNames[i], path: path, store: !params.Format.Lossless()})
	}
	for i, src := range req.Sources {
		members = append(members, archiveMember{name: params.ExtraNames[i], path: src.Path})
	}

	var total int64
	path, err := writeOutput(workDir, ".zip", func(f *os.File) error {
		buf := bufio.NewWriterSize(f, 1<<20)
		zw := zip.NewWriter(buf)
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.BestCompression)
		})
		for _, m := range members {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := addMember(zw, m)
			if err != nil {
				return err
			}
			total += n
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("finish zip: %w", err)
		}
		return buf.Flush()
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Path: path, Detail: fmt.Sprintf("%d files, %d bytes uncompressed", len(members), total)}, nil
}

func addMember(zw *zip.Writer, m archiveMember) (int64, error) {
	in, err := os.Open(m.path)
	if err != nil {
		return 0, services.Wrap(services.ErrInput, "archive", "open member", m.path, err)
	}
	defer in.Close()

	header := &zip.FileHeader{
		Name:     m.name,
		Method:   zip.Deflate,
		Modified: archiveEpoch,
	}
	if m.store {
		header.Method = zip.Store
	}
	header.SetMode(0o644)
	w, err := zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("add %s: %w", m.name, err)
	}
	n, err := io.Copy(w, in)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", m.name, err)
	}
	return n, nil
}
