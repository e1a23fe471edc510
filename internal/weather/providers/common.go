package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings shared by
// every adapter.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
	// BreakerFailures is the number of consecutive failures that opens a
	// provider's circuit. Zero uses the default of 10.
	BreakerFailures uint32
}

// DefaultHTTPClientConfig returns a config without retries; a failed source
// simply waits for the next scheduled cycle.
func DefaultHTTPClientConfig(client *http.Client) HTTPClientConfig {
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      0,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		BreakerFailures: 10,
	}
}

const maxBodyBytes = 20 << 20

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errNotImage      = errors.New("response is not an image")
	errBadSourceID   = errors.New("invalid source identifier")
)

// newBreaker creates the per-provider circuit breaker.
func newBreaker(name string, failures uint32) *gobreaker.CircuitBreaker {
	if failures == 0 {
		failures = 10
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: upstreamHealthy,
	})
}

// upstreamHealthy reports whether err leaves the provider itself healthy.
// A 4xx answers for one source only and never counts towards tripping the
// shared breaker; transport errors, 5xx and 429 do.
func upstreamHealthy(err error) bool {
	return err == nil || errors.Is(err, errUnexpected) || errors.Is(err, context.Canceled)
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// requester is the HTTP plumbing every adapter embeds: one breaker per
// provider type.
type requester struct {
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func newRequester(name string, cfg HTTPClientConfig) requester {
	return requester{
		httpCfg: cfg,
		circuit: newBreaker(name, cfg.BreakerFailures),
	}
}

func (r requester) do(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	return doRequestWithResilience(ctx, r.httpCfg, r.circuit, buildRequest)
}

// get fetches url and returns the body and response headers.
func (r requester) get(ctx context.Context, url string, header http.Header) ([]byte, http.Header, error) {
	resp, err := r.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		return req, nil
	})
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Header, nil
}

// getJSON fetches url and decodes the JSON body into out.
func (r requester) getJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, _, err := r.get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// getImage fetches url and checks the payload really is an image of one of
// the wanted types (any image when none are given).
func (r requester) getImage(ctx context.Context, url string, wanted ...string) ([]byte, error) {
	body, _, err := r.get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if err := checkImage(body, wanted...); err != nil {
		return nil, err
	}
	return body, nil
}

func checkImage(data []byte, wanted ...string) error {
	mt := mimetype.Detect(data)
	if len(wanted) == 0 {
		for m := mt; m != nil; m = m.Parent() {
			if strings.HasPrefix(m.String(), "image/") {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", errNotImage, mt.String())
	}
	if !mimetype.EqualsAny(mt.String(), wanted...) {
		return fmt.Errorf("%w: %s", errNotImage, mt.String())
	}
	return nil
}

// flexString accepts a JSON string or number. Providers are inconsistent
// about quoting identifiers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
