// Package ingest reads per-stream recordings (newline-delimited JSON,
// optionally gzip-compressed) and feeds them into a pkg/merge.Merger
// through a single serialized dispatcher goroutine, fanning in readers
// that run concurrently per stream.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/pgzip"

	"github.com/sensorfusion/mergeplay/pkg/item"
)

// OpenRecording opens path for reading, transparently decompressing it
// if the name ends in .gz.
func OpenRecording(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %q: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	gz, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ingest: gzip reader for %q: %w", path, err)
	}
	return &gzipReadCloser{gz: gz, f: f}, nil
}

type gzipReadCloser struct {
	gz *pgzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

// ReadRecords decodes r as newline-delimited JSON item.Records and
// invokes emit for each, in file order, stopping early if ctx is done.
func ReadRecords(ctx context.Context, r io.Reader, emit func(item.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec item.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("ingest: decode line %d: %w", line, err)
		}
		if err := emit(rec); err != nil {
			return fmt.Errorf("ingest: emit line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ingest: scan: %w", err)
	}
	return nil
}
