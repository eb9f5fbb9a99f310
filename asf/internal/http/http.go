// Package http holds the retrying request helper shared by ASF search and downloads.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/go-sarslide/internal/log"
)

// RetryPolicy controls retry behaviour for HTTP requests.
type RetryPolicy interface {
	NextDelay(attempt int, resp *http.Response, err error) (time.Duration, bool)
}

type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	statuses    map[int]struct{}
}

// DefaultRetryPolicy retries transport errors, 429 and 5xx gateway statuses three times with
// exponential backoff from 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(3, 500*time.Millisecond)
}

// NewRetryPolicy builds the default policy with a custom attempt budget and base delay.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	return &retryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		statuses: map[int]struct{}{
			http.StatusTooManyRequests:     {},
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
			http.StatusGatewayTimeout:      {},
		},
	}
}

// NoRetryPolicy disables retries.
type NoRetryPolicy struct{}

// NextDelay implements RetryPolicy.
func (NoRetryPolicy) NextDelay(int, *http.Response, error) (time.Duration, bool) {
	return 0, false
}

func (p *retryPolicy) NextDelay(attempt int, resp *http.Response, err error) (time.Duration, bool) {
	if attempt >= p.maxAttempts {
		return 0, false
	}
	if err != nil {
		return backoff(p.baseDelay, attempt), true
	}
	if resp != nil {
		if _, ok := p.statuses[resp.StatusCode]; ok {
			if d, ok := retryAfter(resp); ok {
				return d, true
			}
			return backoff(p.baseDelay, attempt), true
		}
	}
	return 0, false
}

func backoff(base time.Duration, attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	return base * time.Duration(1<<uint(shift))
}

// retryAfter honours a Retry-After header given in seconds, capped at one minute.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > time.Minute {
		d = time.Minute
	}
	return d, true
}

// Do issues the HTTP request honouring the provided retry policy.
func Do(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	attempt := 1
	for {
		attemptReq, err := cloneRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(attemptReq)
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		delay, retry := policy.NextDelay(attempt, resp, err)
		if !retry {
			if err != nil {
				return nil, err
			}
			return resp, nil
		}

		fields := []zap.Field{zap.String("url", req.URL.Redacted()), zap.Int("attempt", attempt), zap.Duration("delay", delay)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode))
			resp.Body.Close()
		}
		log.Logger(ctx).Debug("retrying request", fields...)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		attempt++
	}
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// StatusError is returned for non-successful responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

// HTTPError reads up to 4 KiB of the body into a *StatusError.
func HTTPError(resp *http.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(data)}
}

// DecodeJSON decodes a JSON payload from r into v.
func DecodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
