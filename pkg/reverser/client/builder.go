package client

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tsarna/reverser/pkg/reverser/reverse"
	"github.com/tsarna/reverser/pkg/reverser/wire"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds the WebSocket handshake when the builder sets no timeout.
const DefaultDialTimeout = 30 * time.Second

// ClientBuilder provides a fluent interface for building reverser clients.
type ClientBuilder struct {
	url         string
	logger      *zap.Logger
	dialTimeout time.Duration
	event       string
	headers     http.Header
}

// NewClient creates a new client builder. Without WithUnit the server's
// default unit is used.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		logger:      zap.NewNop(),
		dialTimeout: DefaultDialTimeout,
		event:       wire.EventReverseInput,
	}
}

// WithURL sets the WebSocket URL to connect to, e.g. ws://localhost:5000/ws.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder {
	b.url = url
	return b
}

func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *ClientBuilder) WithDialTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithUnit asks the server to reverse by the given unit instead of its
// configured default.
func (b *ClientBuilder) WithUnit(unit reverse.Unit) *ClientBuilder {
	b.event = wire.EventReverseInput + "/" + unit.String()
	return b
}

// WithHeader sets a single HTTP header for the WebSocket handshake, for
// example Origin when talking to a server with an origin allow-list.
func (b *ClientBuilder) WithHeader(key, value string) *ClientBuilder {
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	b.headers.Set(key, value)
	return b
}

// Build creates and returns a new client with the configured options. The
// client is not connected until Dial is called.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Client{
		url:         b.url,
		logger:      b.logger,
		dialTimeout: b.dialTimeout,
		event:       b.event,
		headers:     b.headers.Clone(),
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.url == "" {
		return fmt.Errorf("URL is required")
	}

	u, err := url.Parse(b.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("invalid URL %q: scheme must be ws or wss", b.url)
	}

	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: host is required", b.url)
	}

	return nil
}
