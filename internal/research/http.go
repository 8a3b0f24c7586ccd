// Package research provides clients for the external academic-data and web
// search services used by the source discovery step.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Shared request settings for all API clients.
const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 2 // 3 total attempts
	userAgent      = "ResearchGPT/1.0 (https://github.com/researchgpt/researchgpt)"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// getJSON issues a GET with retry handling for 429s, 5xx responses, and
// transient network errors, then decodes the body into out. Rate-limited
// responses honor Retry-After. Non-retryable HTTP errors and exhausted
// retries return an error; callers typically degrade to partial results.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < maxRetries {
				if err := sleepCtx(ctx, time.Duration(attempt+1)*time.Second); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("request failed: %w", lastErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := 2 * time.Second
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.ParseFloat(ra, 64); err == nil {
					wait = time.Duration(secs * float64(time.Second))
				}
			}
			drain(resp)
			if attempt < maxRetries {
				if err := sleepCtx(ctx, wait); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("rate limited: %s", url)

		case resp.StatusCode >= 500:
			drain(resp)
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, url)
			if attempt < maxRetries {
				if err := sleepCtx(ctx, time.Duration(attempt+1)*time.Second); err != nil {
					return err
				}
				continue
			}
			return lastErr

		case resp.StatusCode >= 400:
			drain(resp)
			return fmt.Errorf("http %d: %s", resp.StatusCode, url)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		drain(resp)
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
