package server

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tsarna/reverser/pkg/reverser/dispatch"
	"github.com/tsarna/reverser/pkg/reverser/o11y"
	"go.uber.org/zap"
)

// ListenerConfig holds the configuration for creating a WebSocket Listener.
// Use NewListenerConfig() to create a new configuration and chain methods
// to set the required parameters before calling Build().
type ListenerConfig struct {
	router          *dispatch.Router
	logger          *zap.Logger
	queueSize       int
	pingInterval    time.Duration
	writeTimeout    time.Duration
	readLimit       int64
	allowedOrigins  []string
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
}

const (
	// DefaultQueueSize is the number of replies buffered per connection
	// before the reader waits for the sender to catch up.
	DefaultQueueSize = 64

	// DefaultPingInterval is the default interval for sending WebSocket ping frames.
	DefaultPingInterval = 30 * time.Second

	// DefaultWriteTimeout bounds each write and each ping round trip.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultReadLimit is the largest frame accepted from a client, in bytes.
	DefaultReadLimit = 32768
)

// NewListenerConfig creates a new ListenerConfig for building a WebSocket Listener.
//
// Example:
//
//	listener, err := server.NewListenerConfig().
//	    WithRouter(router).
//	    WithLogger(logger).
//	    WithAllowedOrigins("https://example.com").
//	    WithPingInterval(45 * time.Second).
//	    Build()
func NewListenerConfig() *ListenerConfig {
	return &ListenerConfig{
		queueSize:    DefaultQueueSize,
		pingInterval: DefaultPingInterval,
		writeTimeout: DefaultWriteTimeout,
		readLimit:    DefaultReadLimit,
	}
}

// WithRouter sets the event dispatch table. Required.
func (c *ListenerConfig) WithRouter(router *dispatch.Router) *ListenerConfig {
	c.router = router
	return c
}

// WithLogger sets the Logger for the Listener and its connections. Required.
func (c *ListenerConfig) WithLogger(logger *zap.Logger) *ListenerConfig {
	c.logger = logger
	return c
}

// WithQueueSize sets how many replies may wait per connection. Non-positive
// values are ignored.
//
// Default: 64
func (c *ListenerConfig) WithQueueSize(size int) *ListenerConfig {
	if size > 0 {
		c.queueSize = size
	}
	return c
}

// WithPingInterval sets the interval for sending WebSocket ping frames.
// Set to 0 to disable pings. Negative values are ignored.
//
// Default: 30 seconds
func (c *ListenerConfig) WithPingInterval(interval time.Duration) *ListenerConfig {
	if interval >= 0 {
		c.pingInterval = interval
	}
	return c
}

// WithWriteTimeout sets the timeout for writes and ping round trips.
//
// Default: 10 seconds
func (c *ListenerConfig) WithWriteTimeout(timeout time.Duration) *ListenerConfig {
	if timeout > 0 {
		c.writeTimeout = timeout
	}
	return c
}

// WithReadLimit sets the maximum frame size accepted from clients. Larger
// frames close the connection with StatusMessageTooBig.
//
// Default: 32768 bytes
func (c *ListenerConfig) WithReadLimit(limit int64) *ListenerConfig {
	if limit > 0 {
		c.readLimit = limit
	}
	return c
}

// WithAllowedOrigins sets which browser origins may open a connection, in
// addition to the page's own origin. "*" allows any origin. Entries may be
// full origins ("https://example.com") or host patterns ("*.example.com").
//
// Default: same origin only
func (c *ListenerConfig) WithAllowedOrigins(origins ...string) *ListenerConfig {
	c.allowedOrigins = append([]string(nil), origins...)
	return c
}

// WithMetrics sets the metrics provider. Nil disables metrics.
func (c *ListenerConfig) WithMetrics(provider o11y.MetricsProvider) *ListenerConfig {
	c.metricsProvider = provider
	return c
}

// WithTracing sets the tracing provider. Nil disables tracing.
func (c *ListenerConfig) WithTracing(provider o11y.TracingProvider) *ListenerConfig {
	c.tracingProvider = provider
	return c
}

// IsValid checks if the configuration has all required parameters set.
// Returns nil if the configuration is valid, or an error describing what's missing.
func (c *ListenerConfig) IsValid() error {
	var missing []string
	if c.router == nil {
		missing = append(missing, "Router")
	}
	if c.logger == nil {
		missing = append(missing, "Logger")
	}

	if len(missing) > 0 {
		return fmt.Errorf("invalid listener configuration, missing: %v", missing)
	}

	for _, origin := range c.allowedOrigins {
		if _, err := originPattern(origin); err != nil {
			return err
		}
	}

	return nil
}

// Build creates a new WebSocket Listener from the configuration.
func (c *ListenerConfig) Build() (*Listener, error) {
	if err := c.IsValid(); err != nil {
		return nil, err
	}

	return newListener(c), nil
}

// originPattern converts a configured origin into the host pattern the
// websocket library matches against the Origin header.
func originPattern(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", fmt.Errorf("invalid allowed origin: empty")
	}
	if !strings.Contains(origin, "://") {
		return origin, nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid allowed origin %q: %w", origin, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid allowed origin %q: missing host", origin)
	}
	return u.Host, nil
}

// originPolicy returns the host patterns to allow, or allowAll when "*" is
// configured.
func (c *ListenerConfig) originPolicy() (patterns []string, allowAll bool) {
	for _, origin := range c.allowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			return nil, true
		}
		if pattern, err := originPattern(origin); err == nil {
			patterns = append(patterns, pattern)
		}
	}
	return patterns, false
}
