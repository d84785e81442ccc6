package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxRetryElapsed bounds the total time spent retrying a remote pull
const DefaultMaxRetryElapsed = 30 * time.Second

// StatusError is a non-200 response from a remote source
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "non-200 status code: " + http.StatusText(e.StatusCode)
}

// Retry runs op with exponential backoff until it succeeds, returns a
// backoff.Permanent error, maxElapsed passes or ctx is done.
func Retry(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if maxElapsed <= 0 {
		maxElapsed = DefaultMaxRetryElapsed
	}
	b.MaxElapsedTime = maxElapsed
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// Download fetches url into dst, retrying transport errors and 5xx responses.
// 4xx responses fail immediately. The file is replaced atomically.
func Download(ctx context.Context, client *http.Client, url, dst string, maxElapsed time.Duration) error {
	if client == nil {
		client = http.DefaultClient
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			serr := &StatusError{StatusCode: resp.StatusCode}
			if resp.StatusCode < 500 {
				return backoff.Permanent(serr)
			}
			return serr
		}
		return writeAtomic(dst, resp.Body)
	}

	if err := Retry(ctx, maxElapsed, op); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return nil
}

func writeAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
