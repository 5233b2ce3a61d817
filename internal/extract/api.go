package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"salesetl/internal/config"
	"salesetl/internal/logger"
	"salesetl/internal/table"
	"salesetl/pkg/utils"
)

// maxBodyBytes caps the size of an API response.
const maxBodyBytes = 10 * 1024 * 1024

// APIExtractor fetches JSON records over HTTP GET with retries.
type APIExtractor struct {
	client  *http.Client
	headers http.Header
	log     *logger.Logger
	retry   config.RetryPolicy
	name    string
	url     string
}

// NewAPIExtractor creates a new API extractor. headers are added to the defaults.
func NewAPIExtractor(name, url string, headers map[string]string, retry config.RetryPolicy, log *logger.Logger) (*APIExtractor, error) {
	helper := utils.NewHTTPHelper()
	if !helper.IsValidURL(url) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}

	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	return &APIExtractor{
		client:  &http.Client{Timeout: retry.GetTimeout()},
		headers: helper.BuildHeaders(headers),
		log:     log,
		retry:   retry,
		name:    name,
		url:     url,
	}, nil
}

// Extract fetches the document and decodes it like a JSON file.
func (e *APIExtractor) Extract(ctx context.Context) (*table.Batch, error) {
	e.log.Info("extracting data from API", "url", e.url)

	body, err := e.fetch(ctx)
	if err != nil {
		return nil, err
	}

	b, err := ReadJSON(ctx, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	return finish(e.log, e.name, b), nil
}

func (e *APIExtractor) fetch(ctx context.Context) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, e.retry.GetRetryDelay(attempt)); err != nil {
				return nil, err
			}
		}

		body, retryable, err := e.get(ctx)
		if err == nil {
			return body, nil
		}

		lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt, e.retry.MaxAttempts, err)
		e.log.Warn("API request failed", "attempt", attempt, "error", err)

		if !retryable {
			break
		}
	}

	return nil, lastErr
}

// get performs one request and reports whether a failure may be retried.
func (e *APIExtractor) get(ctx context.Context) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, http.NoBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = e.headers.Clone()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, isRetryableStatus(resp.StatusCode), fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, false, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}
