// Package httpretry wraps an HTTP client with bounded retries and
// exponential backoff with full jitter.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/campaign-core/internal/pkg/logger"
)

// HTTPDoer is satisfied by *http.Client and *RetryClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultRetries   = 3
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 30 * time.Second
)

// retryableStatus lists the responses worth another attempt. Any other
// status, including every other 4xx, is returned to the caller at once.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryClient retries transient failures of an inner HTTPDoer.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithBackoff sets the base and maximum backoff delays. Non-positive
// values keep the defaults.
func WithBackoff(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		if base > 0 {
			rc.baseDelay = base
		}
		if max > 0 {
			rc.maxDelay = max
		}
	}
}

// NewRetryClient wraps client, or a 30s-timeout http.Client when client is
// nil. maxRetries counts attempts after the first; non-positive means 3.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = defaultRetries
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do sends req, retrying network errors and retryable statuses. The last
// response is returned as-is when retries run out so the caller can read
// it. Cancelling the request context stops retrying.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			delay := rc.calculateDelay(attempt)
			logger.Warn("httpretry: retrying",
				"attempt", attempt, "max_retries", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
				"delay", delay, "last_error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return nil, firstErr(lastErr, err)
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := rc.client.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		case !retryableStatus[resp.StatusCode] || attempt == rc.maxRetries:
			return resp, nil
		default:
			// Drain so the connection can be reused.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
		}
	}
	return nil, lastErr
}

// rewind restores the request body before a retry.
func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: reset request body: %w", err)
	}
	req.Body = body
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// calculateDelay returns a full-jitter delay in [base/10, min(max, base*2^(attempt-1))].
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	ceiling := rc.baseDelay
	for i := 1; i < attempt && ceiling < rc.maxDelay; i++ {
		ceiling *= 2
	}
	if ceiling > rc.maxDelay {
		ceiling = rc.maxDelay
	}
	d := time.Duration(rand.Int63n(int64(ceiling) + 1))
	if floor := rc.baseDelay / 10; d < floor {
		d = floor
	}
	return d
}
