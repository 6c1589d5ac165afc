// Package external holds the gateways to the remote data sources SiteScore
// depends on: the NASA POWER climate API, the Overpass geographic-feature API,
// Google Earth Engine and the Gemini text-generation API. Every outbound call
// goes through BaseClient, which applies circuit breaking, optional retries,
// trace propagation and error mapping.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"sitescore/internal/types"

	"github.com/sony/gobreaker/v2"
)

// Upstream outcomes reported to the OutcomeFunc.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeBreakerOpen = "breaker_open"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4096

// RetryPolicy configures the retry behavior for the BaseClient. MaxRetries of
// zero means a single attempt.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// NoRetryPolicy performs exactly one attempt.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
}

// RetryPolicyWithRetries returns the standard backoff window with the given
// number of retries.
func RetryPolicyWithRetries(n int) RetryPolicy {
	p := NoRetryPolicy()
	p.MaxRetries = max(n, 0)
	return p
}

// OutcomeFunc observes the result of each logical upstream call.
type OutcomeFunc func(ctx context.Context, source, outcome string)

// ClientOptions identifies one upstream and how its failures are reported.
type ClientOptions struct {
	// Source names the upstream; it is the breaker name and the metric label.
	Source string
	// ErrCode is used for non-success responses and transport failures.
	ErrCode   types.ErrorCode
	Retry     RetryPolicy
	UserAgent string
}

// BaseClient wraps an *http.Client and a circuit breaker. Gateways embed it
// rather than calling http.Client directly.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	opts      ClientOptions
	sleepFn   func(time.Duration)
	onOutcome OutcomeFunc
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep used between retries.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// WithOutcomeFunc registers an observer for call outcomes.
func WithOutcomeFunc(fn OutcomeFunc) BaseClientOption {
	return func(c *BaseClient) {
		c.onOutcome = fn
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) {
		c.breaker = cb
	}
}

// NewBaseClient creates a BaseClient. The breaker trips after five
// consecutive failures and half-opens after 30 seconds.
func NewBaseClient(httpClient *http.Client, opts ClientOptions, options ...BaseClientOption) *BaseClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.ErrCode == "" {
		opts.ErrCode = types.ErrCodeUpstreamUnavailable
	}

	bc := &BaseClient{
		client:  httpClient,
		breaker: newBreaker(opts.Source),
		opts:    opts,
		sleepFn: time.Sleep,
	}
	for _, opt := range options {
		opt(bc)
	}
	return bc
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// Source returns the upstream name.
func (c *BaseClient) Source() string {
	return c.opts.Source
}

// Do executes the request with trace and User-Agent headers, inside the
// circuit breaker, retrying 429 and 5xx responses per the RetryPolicy.
//
// Responses other than 429/5xx are returned as-is and the caller closes the
// body. Exhausted retries, transport failures and an open breaker come back
// as *types.AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	// Buffer the body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read request body", err)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + c.opts.Retry.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("%s returned %d", c.opts.Source, r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < attempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}
		if attempt < attempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	status := 0
	if lastResp != nil {
		status = lastResp.StatusCode
		lastResp.Body.Close()
	}
	return nil, c.mapError(status, lastErr)
}

// computeBackoff honors Retry-After (seconds or HTTP-date) and otherwise
// uses exponential backoff with jitter clamped to [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	p := c.opts.Retry
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, p.MaxWait)
			}
			if t, err := http.ParseTime(ra); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return p.MinWait
				}
				return min(wait, p.MaxWait)
			}
		}
	}

	ceiling := math.Min(float64(p.MinWait)*math.Pow(2, float64(attempt)), float64(p.MaxWait))
	floor := float64(p.MinWait)
	if ceiling <= floor {
		return p.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

func (c *BaseClient) mapError(status int, err error) *types.AppError {
	src := c.opts.Source
	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s circuit breaker is open", src), err, map[string]any{"source": src})
	case status == http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s rate limit exceeded", src), err, map[string]any{"source": src})
	case status >= 500:
		return types.NewAppErrorWithDetails(c.opts.ErrCode,
			fmt.Sprintf("%s returned %d", src, status), err, map[string]any{"source": src, "status": status})
	default:
		return types.NewAppErrorWithDetails(c.opts.ErrCode,
			fmt.Sprintf("%s request failed", src), err, map[string]any{"source": src})
	}
}

// doJSON sends req and decodes a 200 response into out. Any other status is
// an AppError carrying the upstream's status and a prefix of its body.
func (c *BaseClient) doJSON(req *http.Request, out any) error {
	ctx := req.Context()
	resp, err := c.Do(req)
	if err != nil {
		c.report(ctx, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		appErr := types.NewAppErrorWithDetails(c.opts.ErrCode,
			fmt.Sprintf("%s returned %d", c.opts.Source, resp.StatusCode),
			fmt.Errorf("response body: %s", bytes.TrimSpace(body)),
			map[string]any{"source": c.opts.Source, "status": resp.StatusCode})
		c.report(ctx, appErr)
		return appErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		appErr := types.NewAppError(c.opts.ErrCode,
			fmt.Sprintf("failed to decode %s response", c.opts.Source), err)
		c.report(ctx, appErr)
		return appErr
	}
	c.report(ctx, nil)
	return nil
}

func (c *BaseClient) report(ctx context.Context, err error) {
	if c.onOutcome == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			switch {
			case appErr.Code == types.ErrCodeUpstreamRateLimited:
				outcome = OutcomeRateLimited
			case errors.Is(appErr.Err, gobreaker.ErrOpenState), errors.Is(appErr.Err, gobreaker.ErrTooManyRequests):
				outcome = OutcomeBreakerOpen
			}
		}
	}
	c.onOutcome(ctx, c.opts.Source, outcome)
}
