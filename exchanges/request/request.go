package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 3
)

var (
	errRequesterNameUnset = errors.New("requester name unset")
	// ErrRetryExhausted wraps the last failure after every attempt was spent.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// Response is the raw outcome of an upstream call, kept byte-exact so public
// endpoints can be passed through untouched.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Requester is a named HTTP client for one upstream venue. Failed attempts
// against retryable failures (network errors, 429, 5xx) are retried with
// exponential backoff; an optional limiter paces outbound calls.
type Requester struct {
	name        string
	client      *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     func(attempt int) time.Duration
	verbose     bool
	log         *zap.Logger
}

// Option configures a Requester
type Option func(*Requester)

// WithTimeout overrides the client timeout
func WithTimeout(d time.Duration) Option {
	return func(r *Requester) { r.client.Timeout = d }
}

// WithLimiter paces outbound requests
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Requester) { r.limiter = l }
}

// WithVerbose dumps every outbound request and inbound response to the log
func WithVerbose() Option {
	return func(r *Requester) { r.verbose = true }
}

// WithMaxAttempts overrides the retry budget
func WithMaxAttempts(n int) Option {
	return func(r *Requester) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// New returns a Requester for one upstream service
func New(name string, log *zap.Logger, opts ...Option) (*Requester, error) {
	if name == "" {
		return nil, errRequesterNameUnset
	}
	r := &Requester{
		name:        name,
		client:      &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		log:         log,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(100*(1<<uint(attempt))) * time.Millisecond
}

// Get performs a GET against rawURL with params appended to its query
// string, retrying retryable failures. The returned response carries the
// upstream status and body verbatim.
func (r *Requester) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s requester: %w", r.name, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt - 1)
			r.log.Warn("upstream retry",
				zap.String("service", r.name),
				zap.String("url", u.String()),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := r.do(ctx, u.String())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("%s requester: upstream status %d", r.name, resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}

// GetJSON performs Get and unmarshals a 2xx body into result
func (r *Requester) GetJSON(ctx context.Context, rawURL string, params url.Values, result any) error {
	resp, err := r.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s requester: unexpected status %d", r.name, resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("%s requester: %w", r.name, err)
	}
	return nil
}

func (r *Requester) do(ctx context.Context, fullURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if r.verbose {
		if dump, dumpErr := httputil.DumpRequestOut(req, false); dumpErr == nil {
			r.log.Debug("outbound request",
				zap.String("service", r.name),
				zap.ByteString("dump", dump))
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if r.verbose {
		r.log.Debug("inbound response",
			zap.String("service", r.name),
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(body)))
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
