// Package gateway provides the per-provider client that combines caching,
// throttling, retries and circuit breaking behind one normalized contract.
package gateway

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/health-intel/internal/cache"
	"github.com/sells-group/health-intel/internal/metrics"
	"github.com/sells-group/health-intel/internal/ratelimit"
	"github.com/sells-group/health-intel/internal/resilience"
)

// Response is the normalized success shape for every provider.
type Response struct {
	Provider   string         `json:"provider"`
	Operation  string         `json:"operation"`
	Data       map[string]any `json:"data"`
	StatusCode int            `json:"status_code"`
	Cached     bool           `json:"cached"`
	FetchedAt  time.Time      `json:"fetched_at"`
}

// Transport performs one raw upstream request. Errors that carry a status
// code should implement StatusCoder.
type Transport interface {
	Call(ctx context.Context, operation string, params map[string]string) (map[string]any, error)
}

// Caller is the contract the orchestrator depends on.
type Caller interface {
	Call(ctx context.Context, operation string, params map[string]string) (*Response, error)
}

const (
	defaultTimeout = 10 * time.Second
	defaultTTL     = time.Hour
)

// Client is a ProviderGatewayClient for a single provider.
type Client struct {
	name      string
	transport Transport
	cache     *cache.Store[Response]
	limiter   *ratelimit.Limiter
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	timeout   time.Duration
	ttl       time.Duration
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithCache shares a response store between clients. Keys include the
// provider name, so one store can serve every provider.
func WithCache(s *cache.Store[Response]) Option {
	return func(c *Client) { c.cache = s }
}

// WithLimiter sets the provider's throttle queue.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBreaker guards the provider with a circuit breaker.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithRetry overrides the retry policy. ShouldRetry is always replaced.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithTimeout bounds each transport attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTTL sets how long successful responses stay cached.
func WithTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithNow overrides the clock used for FetchedAt.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a gateway for the named provider. Without WithLimiter
// the provider is throttled to one call per second; without WithCache it
// gets a private store.
func NewClient(name string, transport Transport, opts ...Option) *Client {
	c := &Client{
		name:      name,
		transport: transport,
		retry:     resilience.DefaultRetryConfig(),
		timeout:   defaultTimeout,
		ttl:       defaultTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.New[Response](cache.Options{})
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(name, 1)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// Call returns the provider's normalized response for operation and params.
// Identical calls within the TTL are served from cache, and concurrent
// identical calls share one upstream request. Every error is an *Error.
func (c *Client) Call(ctx context.Context, operation string, params map[string]string) (*Response, error) {
	key := cache.Key(c.name, operation, params)

	resp, src, err := c.cache.GetOrFetch(ctx, key, c.ttl, func(ctx context.Context) (Response, error) {
		return c.fetch(ctx, operation, params)
	})
	if err != nil {
		ge := Normalize(c.name, operation, err)
		metrics.ObserveGatewayCall(c.name, metrics.OutcomeError, string(src))
		metrics.ObserveGatewayError(c.name, string(ge.Kind))
		return nil, ge
	}

	metrics.ObserveGatewayCall(c.name, metrics.OutcomeSuccess, string(src))
	resp.Cached = src.Cached()
	return &resp, nil
}

// fetch runs the retry loop. Each attempt passes the breaker, waits its turn
// in the limiter and then calls the transport under the attempt timeout.
func (c *Client) fetch(ctx context.Context, operation string, params map[string]string) (Response, error) {
	cfg := c.retry
	cfg.ShouldRetry = shouldRetry
	cfg.OnRetry = resilience.RetryLogger(c.name, operation)

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (Response, error) {
		if c.breaker == nil {
			return c.attempt(ctx, operation, params)
		}
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (Response, error) {
			return c.attempt(ctx, operation, params)
		})
	})
	if err != nil {
		ge := Normalize(c.name, operation, err)
		zap.L().Debug("gateway: call failed",
			zap.String("provider", c.name),
			zap.String("operation", operation),
			zap.String("kind", string(ge.Kind)),
			zap.Error(err),
		)
		return Response{}, ge
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, operation string, params map[string]string) (Response, error) {
	return ratelimit.DoVal(ctx, c.limiter, func(ctx context.Context) (Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		data, err := c.transport.Call(callCtx, operation, params)
		if err != nil {
			return Response{}, Normalize(c.name, operation, err)
		}
		if data == nil {
			data = map[string]any{}
		}
		return Response{
			Provider:   c.name,
			Operation:  operation,
			Data:       data,
			StatusCode: http.StatusOK,
			FetchedAt:  c.now(),
		}, nil
	})
}
