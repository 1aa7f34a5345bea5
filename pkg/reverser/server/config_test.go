package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/reverser/pkg/reverser/dispatch"
	"go.uber.org/zap"
)

func TestListenerConfig_BuilderPattern(t *testing.T) {
	logger := zap.NewNop()
	router := dispatch.NewRouter()

	t.Run("successful build with all parameters", func(t *testing.T) {
		listener, err := NewListenerConfig().
			WithRouter(router).
			WithLogger(logger).
			Build()

		require.NoError(t, err)
		assert.NotNil(t, listener)
		assert.Same(t, router, listener.config.router)
		assert.Equal(t, logger, listener.logger)
		assert.Nil(t, listener.metrics)
		assert.Equal(t, 0, listener.ConnectionCount())
	})

	t.Run("fluent interface returns same config", func(t *testing.T) {
		config := NewListenerConfig()
		result1 := config.WithRouter(router)
		result2 := result1.WithLogger(logger)

		assert.Same(t, config, result1)
		assert.Same(t, config, result2)
	})

	t.Run("isValid returns error when missing parameters", func(t *testing.T) {
		err := NewListenerConfig().IsValid()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Router")
		assert.Contains(t, err.Error(), "Logger")

		err = NewListenerConfig().WithRouter(router).IsValid()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Logger")
		assert.NotContains(t, err.Error(), "Router")

		err = NewListenerConfig().WithLogger(logger).IsValid()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Router")
		assert.NotContains(t, err.Error(), "Logger")
	})

	t.Run("build fails with missing parameters", func(t *testing.T) {
		listener, err := NewListenerConfig().WithLogger(logger).Build()
		assert.Error(t, err)
		assert.Nil(t, listener)
	})
}

func TestListenerConfig_Defaults(t *testing.T) {
	config := NewListenerConfig()

	assert.Equal(t, DefaultQueueSize, config.queueSize)
	assert.Equal(t, DefaultPingInterval, config.pingInterval)
	assert.Equal(t, DefaultWriteTimeout, config.writeTimeout)
	assert.Equal(t, int64(DefaultReadLimit), config.readLimit)
	assert.Empty(t, config.allowedOrigins)
}

func TestListenerConfig_Setters(t *testing.T) {
	config := NewListenerConfig().
		WithQueueSize(8).
		WithPingInterval(5 * time.Second).
		WithWriteTimeout(2 * time.Second).
		WithReadLimit(1024)

	assert.Equal(t, 8, config.queueSize)
	assert.Equal(t, 5*time.Second, config.pingInterval)
	assert.Equal(t, 2*time.Second, config.writeTimeout)
	assert.Equal(t, int64(1024), config.readLimit)

	t.Run("invalid values are ignored", func(t *testing.T) {
		config.WithQueueSize(0).
			WithPingInterval(-time.Second).
			WithWriteTimeout(0).
			WithReadLimit(-1)

		assert.Equal(t, 8, config.queueSize)
		assert.Equal(t, 5*time.Second, config.pingInterval)
		assert.Equal(t, 2*time.Second, config.writeTimeout)
		assert.Equal(t, int64(1024), config.readLimit)
	})

	t.Run("zero ping interval disables pings", func(t *testing.T) {
		config.WithPingInterval(0)
		assert.Equal(t, time.Duration(0), config.pingInterval)
	})

	t.Run("metrics and tracing providers", func(t *testing.T) {
		provider := newTestMetricsProvider()
		listener, err := NewListenerConfig().
			WithRouter(dispatch.NewRouter()).
			WithLogger(zap.NewNop()).
			WithMetrics(provider).
			Build()

		require.NoError(t, err)
		assert.NotNil(t, listener.metrics)
	})
}

func TestListenerConfig_Origins(t *testing.T) {
	tests := []struct {
		name     string
		origins  []string
		patterns []string
		allowAll bool
		wantErr  bool
	}{
		{name: "none", origins: nil},
		{name: "wildcard", origins: []string{"*"}, allowAll: true},
		{name: "wildcard among others", origins: []string{"https://a.example", "*"}, allowAll: true},
		{name: "full origins", origins: []string{"https://a.example", "http://localhost:3000"}, patterns: []string{"a.example", "localhost:3000"}},
		{name: "host patterns", origins: []string{"*.example.com"}, patterns: []string{"*.example.com"}},
		{name: "empty entry", origins: []string{" "}, wantErr: true},
		{name: "scheme without host", origins: []string{"https://"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewListenerConfig().
				WithRouter(dispatch.NewRouter()).
				WithLogger(zap.NewNop()).
				WithAllowedOrigins(tt.origins...)

			err := config.IsValid()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			patterns, allowAll := config.originPolicy()
			assert.Equal(t, tt.allowAll, allowAll)
			assert.Equal(t, tt.patterns, patterns)
		})
	}

	t.Run("input slice is copied", func(t *testing.T) {
		origins := []string{"https://a.example"}
		config := NewListenerConfig().WithAllowedOrigins(origins...)
		origins[0] = "https://b.example"
		assert.Equal(t, []string{"https://a.example"}, config.allowedOrigins)
	})
}
