package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPChecker polls HTTP endpoints until they answer.
type HTTPChecker struct {
	client   *http.Client
	path     string
	interval time.Duration
	logger   *slog.Logger
}

// NewHTTPChecker creates a checker that requests path every interval.
func NewHTTPChecker(path string, interval time.Duration, logger *slog.Logger) *HTTPChecker {
	if path == "" {
		path = "/"
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &HTTPChecker{
		client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		path:     path,
		interval: interval,
		logger:   logger.With("component", "health"),
	}
}

// Check performs one request. Any status below 500 means the server is up.
func (c *HTTPChecker) Check(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+c.path, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health check %s returned %d", req.URL, resp.StatusCode)
	}
	c.logger.Debug("check passed", "url", req.URL.String(), "status", resp.StatusCode, "duration", time.Since(start))
	return nil
}

// WaitHealthy polls baseURL until Check passes or ctx is done.
func (c *HTTPChecker) WaitHealthy(ctx context.Context, baseURL string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		err := c.Check(ctx, baseURL)
		if err == nil {
			return nil
		}
		// A check cut short by ctx says nothing about the endpoint.
		if ctx.Err() == nil || lastErr == nil {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not healthy: %w (last error: %v)", baseURL, ctx.Err(), lastErr)
		case <-ticker.C:
			if ctx.Err() != nil {
				return fmt.Errorf("%s not healthy: %w (last error: %v)", baseURL, ctx.Err(), lastErr)
			}
		}
	}
}
