package dispatch

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// WithConfig replaces the whole initial configuration snapshot
func WithConfig(s Snapshot) Option {
	return func(c *Client) {
		s = s.clone()
		c.config.Store(&s)
	}
}

// WithBaseURL sets the base URL relative request paths are resolved against
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		s := c.Config()
		s.BaseURL = baseURL
		c.config.Store(&s)
	}
}

// WithTimeout sets the default per-request timeout (0 disables it)
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		s := c.Config()
		s.Timeout = d
		c.config.Store(&s)
	}
}

// WithDefaultHeaders merges headers into the configured defaults
func WithDefaultHeaders(headers map[string]string) Option {
	return func(c *Client) {
		s := c.Config()
		s.DefaultHeaders = mergeHeaders(s.DefaultHeaders, headers)
		c.config.Store(&s)
	}
}

// WithHTTPClient sets a custom HTTP client used as the transport
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if client != nil {
			c.transport = client
		}
	}
}

// WithTransport installs a custom transport. HTTPClient then returns nil.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
		if hc, ok := t.(*http.Client); ok {
			c.httpClient = hc
		} else {
			c.httpClient = nil
		}
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithRateLimit paces outgoing requests to r per second with the given burst
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, RateLimitMiddleware(rate.NewLimiter(r, burst)))
	}
}

// WithTokenStore sets the source of the bearer token
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.tokens = store
	}
}

// WithSink sets the observability sink
func WithSink(sink Sink) Option {
	return func(c *Client) {
		c.sink = sink
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration. nil keeps the default.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		if config != nil {
			c.debug = config
		}
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.debug.RequestIDGen = gen
	}
}

// WithClock overrides the time source used for nonces and durations
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateSnapshot()...)
	problems = append(problems, c.validateTransportConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateMiddlewareConfig()...)
	problems = append(problems, c.validateExtremeValues()...)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

func (c *Client) validateSnapshot() []string {
	var problems []string
	s := c.Config()

	if s.Timeout < 0 {
		problems = append(problems, "timeout must be non-negative")
	}
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil {
			problems = append(problems, fmt.Sprintf("base URL %q is invalid: %v", s.BaseURL, err))
		} else if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
			problems = append(problems, fmt.Sprintf("base URL scheme %q is not http(s)", u.Scheme))
		}
	}

	return problems
}

func (c *Client) validateTransportConfig() []string {
	var problems []string

	if c.transport == nil {
		problems = append(problems, "transport cannot be nil")
	}
	if c.registry == nil {
		problems = append(problems, "pending registry cannot be nil")
	}
	if c.sink == nil {
		problems = append(problems, "sink cannot be nil")
	}

	return problems
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	return problems
}

// validateMiddlewareConfig validates middleware configuration
func (c *Client) validateMiddlewareConfig() []string {
	var problems []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return problems
}

func (c *Client) validateExtremeValues() []string {
	var problems []string

	if c.Config().Timeout > 10*time.Minute {
		problems = append(problems, "timeout > 10m may cause requests to hang for too long")
	}

	return problems
}
