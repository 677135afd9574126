// Package modelfetch downloads inference checkpoints that are not yet present
// locally. Artifacts are fetched once at bootstrap and kept for the process
// (and host) lifetime; an existing file is never re-downloaded.
package modelfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/anshultibby/pocket-fashion/internal/infrastructure/resilience"
)

type Fetcher struct {
	client   *http.Client
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(executor *resilience.Executor, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 10 * time.Minute},
		executor: executor,
		logger:   logger,
	}
}

// Ensure makes sure the checkpoint at url exists at path. Downloads go to a
// temp file first so a partial transfer never masquerades as a checkpoint.
func (f *Fetcher) Ensure(ctx context.Context, url, path string) error {
	if _, err := os.Stat(path); err == nil {
		f.logger.Info("checkpoint already present", "path", path)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat checkpoint: %w", err)
	}
	if url == "" {
		return fmt.Errorf("checkpoint %s missing and no download url configured", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	f.logger.Info("downloading checkpoint", "url", url, "path", path)
	download := func(ctx context.Context) error {
		return f.download(ctx, url, path)
	}
	var err error
	if f.executor != nil {
		err = f.executor.Execute(ctx, "modelfetch.download", download, classifyFetchError)
	} else {
		err = download(ctx)
	}
	if err != nil {
		return fmt.Errorf("fetch checkpoint %s: %w", url, err)
	}
	f.logger.Info("checkpoint downloaded", "path", path)
	return nil
}

func (f *Fetcher) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("place checkpoint: %w", err)
	}
	return nil
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// classifyFetchError retries transport failures and server-side errors; a 4xx
// will not change on retry and trips nothing.
func classifyFetchError(err error) resilience.ErrorClassification {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.status >= 500 || statusErr.status == http.StatusTooManyRequests
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
