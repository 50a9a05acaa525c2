// Package remote executes calls against the content API with a bounded,
// fixed-interval retry policy.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lherron/labelsync/internal/metrics"
)

// ConflictMarker is the response text that makes a failure non-retryable.
const ConflictMarker = "A page with this title already exists"

const (
	DefaultMaxAttempts   = 300
	DefaultRetryInterval = time.Minute
	DefaultTimeout       = time.Minute
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Request describes one logical remote call.
type Request struct {
	Method string
	// Path is relative to the host, e.g. "rest/api/content".
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// Options configures an Executor.
type Options struct {
	Host          string
	Username      string
	Password      string
	HTTPClient    *http.Client
	MaxAttempts   int
	RetryInterval time.Duration
	Timeout       time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Recorder
	Sleep         SleepFunc
}

// Executor performs remote calls. It is not safe for concurrent use; a run
// issues one request at a time.
type Executor struct {
	host          string
	username      string
	password      string
	httpClient    *http.Client
	maxAttempts   int
	retryInterval time.Duration
	log           zerolog.Logger
	metrics       *metrics.Recorder
	sleep         SleepFunc
}

// NewExecutor builds an Executor. Without an explicit HTTPClient it creates
// one that skips TLS certificate verification: the target deployments run
// behind internal or self-signed certificates.
func NewExecutor(opts Options) *Executor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed deployments
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := opts.RetryInterval
	if interval < 0 {
		interval = DefaultRetryInterval
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Executor{
		host:          NormalizeHost(opts.Host),
		username:      opts.Username,
		password:      opts.Password,
		httpClient:    httpClient,
		maxAttempts:   maxAttempts,
		retryInterval: interval,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		sleep:         sleep,
	}
}

// NormalizeHost trims whitespace and guarantees a trailing slash.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" || strings.HasSuffix(host, "/") {
		return host
	}
	return host + "/"
}

// Host returns the normalized host the executor targets.
func (e *Executor) Host() string {
	return e.host
}

// Execute performs req and decodes a non-empty 2xx body into out (which may
// be nil). A 204 or empty body leaves out untouched.
//
// Failures other than a title conflict are logged and retried up to the
// attempt bound, sleeping the fixed retry interval before each retry. When
// the bound is reached Execute returns a KindRetriesExhausted error; callers
// are expected to end the run and rely on the visited cache to resume.
func (e *Executor) Execute(ctx context.Context, req Request, out any) error {
	target := e.buildURL(req)

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body for %s %s: %w", req.Method, target, err)
		}
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			e.log.Info().
				Dur("interval", e.retryInterval).
				Int("attempt", attempt+1).
				Int("max_attempts", e.maxAttempts).
				Msgf("Retrying request in %s, attempt %d out of %d.", e.retryInterval, attempt+1, e.maxAttempts)
			e.metrics.ObserveRetry()
			if err := e.sleep(ctx, e.retryInterval); err != nil {
				return err
			}
		}

		status, err := e.attempt(ctx, req.Method, target, req.Headers, body, out)
		if err == nil {
			e.metrics.ObserveRequest(req.Method, metrics.OutcomeSuccess)
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && strings.Contains(statusErr.Body, ConflictMarker) {
			e.metrics.ObserveRequest(req.Method, metrics.OutcomeConflict)
			return &Error{
				Kind:       KindConflict,
				Method:     req.Method,
				URL:        target,
				StatusCode: status,
				Attempts:   attempt + 1,
				Err:        err,
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		e.metrics.ObserveRequest(req.Method, metrics.OutcomeTransient)
		e.log.Error().
			Err(err).
			Str("method", req.Method).
			Str("url", target).
			Int("attempt", attempt+1).
			Msg("Request failed")
		lastErr = err
		lastStatus = status
	}

	e.log.Error().
		Str("method", req.Method).
		Str("url", target).
		Int("attempts", e.maxAttempts).
		Msg("Max retries reached, in the next run the system will try to run from this point on. exiting...")

	return &Error{
		Kind:       KindRetriesExhausted,
		Method:     req.Method,
		URL:        target,
		StatusCode: lastStatus,
		Attempts:   e.maxAttempts,
		Err:        lastErr,
	}
}

// attempt performs a single HTTP exchange. It returns the status code (0 when
// no response arrived) and a non-nil error for anything that is not a usable
// 2xx response.
func (e *Executor) attempt(ctx context.Context, method, target string, headers map[string]string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, err
	}
	httpReq.SetBasicAuth(e.username, e.password)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return 0, err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response body: %w", err)
	}
	return resp.StatusCode, nil
}

func (e *Executor) buildURL(req Request) string {
	target := e.host + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		if strings.Contains(target, "?") {
			target += "&" + req.Query.Encode()
		} else {
			target += "?" + req.Query.Encode()
		}
	}
	return target
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
