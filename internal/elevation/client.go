// Package elevation looks up terrain elevation for Fresnel zone midpoints.
//
// Client speaks the Open-Elevation lookup API:
//
//	GET {base}/api/v1/lookup?locations=lat,lng
//	{"results":[{"latitude":39.305,"longitude":-76.595,"elevation":87.0}]}
//
// Any transport error, non-2xx status, malformed body or missing elevation
// field is reported as an error; callers treat every error as "elevation
// unavailable".
package elevation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"
	"github.com/signalsfoundry/linkplanner/internal/logging"
	"github.com/signalsfoundry/linkplanner/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnavailable means the service answered but had no elevation for the
// requested point.
var ErrUnavailable = errors.New("elevation unavailable")

const (
	DefaultBaseURL    = "https://api.open-elevation.com"
	DefaultCacheTTL   = time.Hour
	DefaultMaxRetries = 2

	defaultCleanupInterval = time.Minute

	lookupPath = "/api/v1/lookup"

	// Coordinates are rounded to 1e-5 degrees (about a metre) for caching.
	cacheKeyFormat = "%.5f,%.5f"

	maxBodyBytes = 1 << 20
)

// Recorder counts lookup outcomes; *observability.Collector implements it.
type Recorder interface {
	ObserveElevationLookup(outcome string)
}

// Client is an Open-Elevation HTTP client with a TTL cache and retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *ttlcache.Cache[string, float64]
	maxRetries uint
	retryDelay time.Duration
	log        logging.Logger
	recorder   Recorder

	cleanupInterval time.Duration

	// mu guards the expiry loop lifecycle.
	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	exited  chan struct{}
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCacheTTL sets how long successful lookups are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cache = newCache(ttl)
		}
	}
}

// WithCleanupInterval sets how often Start's loop purges expired entries.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n uint) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryDelay sets the initial backoff interval between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder attaches a metrics recorder for lookup outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient builds a Client for baseURL, or DefaultBaseURL when empty.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		cache:      newCache(DefaultCacheTTL),
		maxRetries: DefaultMaxRetries,
		retryDelay: 200 * time.Millisecond,
		log:        logging.Noop(),

		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func newCache(ttl time.Duration) *ttlcache.Cache[string, float64] {
	return ttlcache.New[string, float64](
		ttlcache.WithTTL[string, float64](ttl),
		ttlcache.WithDisableTouchOnHit[string, float64](),
	)
}

// Start launches a loop that purges expired cache entries. It is optional:
// expired entries are never served either way, Start only reclaims their
// memory. Start after Close does nothing.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	c.exited = make(chan struct{})
	go c.expiryLoop(c.exited)
}

func (c *Client) expiryLoop(exited chan<- struct{}) {
	defer close(exited)
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cache.DeleteExpired()
		}
	}
}

// Close stops the loop started by Start and waits for it to exit.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	exited := c.exited
	c.mu.Unlock()

	if exited != nil {
		<-exited
	}
}

// Lookup returns the elevation in metres at (lat, lng).
func (c *Client) Lookup(ctx context.Context, lat, lng float64) (float64, error) {
	key := fmt.Sprintf(cacheKeyFormat, lat, lng)
	ctx, span := observability.StartSpan(ctx, "elevation.Lookup", "", "",
		attribute.String("elevation.location", key))
	defer span.End()

	if item := c.cache.Get(key); item != nil {
		c.observe(observability.ElevationCacheHit)
		span.SetAttributes(attribute.Bool("elevation.cache_hit", true))
		return item.Value(), nil
	}

	attempt := 0
	op := func() (float64, error) {
		attempt++
		elev, err := c.fetch(ctx, key)
		if err != nil && !isRetryable(err) {
			return 0, backoff.Permanent(err)
		}
		return elev, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	elev, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxRetries+1),
	)
	span.SetAttributes(attribute.Int("elevation.attempts", attempt))
	if err != nil {
		outcome := observability.ElevationError
		if errors.Is(err, ErrUnavailable) {
			outcome = observability.ElevationUnavailable
		}
		c.observe(outcome)
		observability.FailSpan(span, err)
		c.log.Debug(ctx, "elevation lookup failed",
			logging.String("location", key),
			logging.Int("attempts", attempt),
			logging.Err(err),
		)
		return 0, err
	}

	c.cache.Set(key, elev, ttlcache.DefaultTTL)
	c.observe(observability.ElevationOK)
	return elev, nil
}

type lookupResponse struct {
	Results []struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// statusError carries a non-2xx HTTP status.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("elevation service returned HTTP %d", e.code)
}

func (c *Client) fetch(ctx context.Context, location string) (float64, error) {
	u := c.baseURL + lookupPath + "?" + url.Values{"locations": {location}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build elevation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("elevation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return 0, &statusError{code: resp.StatusCode}
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(body.Results) == 0 || body.Results[0].Elevation == nil {
		return 0, fmt.Errorf("%w: no result for %s", ErrUnavailable, location)
	}
	return *body.Results[0].Elevation, nil
}

// isRetryable reports whether a failed fetch is worth repeating: transport
// errors, 429 and 5xx are; malformed or empty answers and other 4xx are not.
func isRetryable(err error) bool {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

func (c *Client) observe(outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveElevationLookup(outcome)
	}
}

// Static is a Provider with a fixed answer, for offline runs and tests.
type Static struct {
	Meters float64
	Err    error
}

// Lookup returns s.Meters, or s.Err when set.
func (s Static) Lookup(ctx context.Context, _, _ float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Meters, nil
}

// Disabled returns a provider that always reports ErrUnavailable.
func Disabled() Static {
	return Static{Err: ErrUnavailable}
}
