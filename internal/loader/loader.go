// Package loader fetches raw batch bytes from external sources. Loaders are
// the transport collaborators in front of the ingestion engine, which itself
// never performs I/O: the scheduling layer picks a loader, fetches the
// bytes, and hands them to engine.Ingest.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultMaxBytes caps a fetched batch at 100MB unless configured otherwise.
const DefaultMaxBytes = 100 * 1024 * 1024

// Loader fetches one batch of raw bytes.
type Loader interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FileLoader reads a batch from the local filesystem.
type FileLoader struct {
	Path     string
	MaxBytes int64
}

// Fetch reads the file, enforcing the size cap before reading.
func (l *FileLoader) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxBytes := l.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	info, err := os.Stat(l.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", l.Path, err)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("file %s is %d bytes, limit is %d", l.Path, info.Size(), maxBytes)
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.Path, err)
	}
	slog.DebugContext(ctx, "batch fetched", "source", "file", "path", l.Path, "bytes", len(data))
	return data, nil
}

// HTTPLoader fetches a batch over HTTP(S).
type HTTPLoader struct {
	URL      string
	Client   *http.Client
	MaxBytes int64
}

// Fetch downloads the URL, enforcing the size cap while reading.
func (l *HTTPLoader) Fetch(ctx context.Context) ([]byte, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	maxBytes := l.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", l.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", l.URL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", l.URL, maxBytes)
	}
	slog.DebugContext(ctx, "batch fetched", "source", "http", "url", l.URL, "bytes", len(data))
	return data, nil
}
