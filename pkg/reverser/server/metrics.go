package server

import (
	"context"
	"time"

	"github.com/tsarna/reverser/pkg/reverser/o11y"
)

// WebSocketMetrics holds the instruments recorded by the Listener and its
// connections. A nil *WebSocketMetrics is valid and records nothing.
type WebSocketMetrics struct {
	// Connection metrics
	activeConnections  o11y.Gauge     // Current number of active WebSocket connections
	totalConnections   o11y.Counter   // Total number of connections established
	connectionDuration o11y.Histogram // Duration of WebSocket connections
	connectionErrors   o11y.Counter   // Upgrade failures, rejected origins, etc.

	// Message metrics
	messagesReceived o11y.Counter   // Frames received from clients
	messagesSent     o11y.Counter   // Frames sent to clients
	messageErrors    o11y.Counter   // Frames that were dropped or could not be sent
	messageSize      o11y.Histogram // Frame size distribution (bytes)

	// Event metrics
	requestsTotal   o11y.Counter   // Dispatched events by route
	requestDuration o11y.Histogram // Handler duration
	requestErrors   o11y.Counter   // Handler failures by route and error type

	// Health metrics
	pingsSent     o11y.Counter
	pongTimeouts  o11y.Counter
	writeTimeouts o11y.Counter
}

// NewWebSocketMetrics creates the instruments from provider. A nil provider
// returns nil, which disables metrics.
func NewWebSocketMetrics(provider o11y.MetricsProvider) *WebSocketMetrics {
	if provider == nil {
		return nil
	}

	return &WebSocketMetrics{
		activeConnections:  provider.Gauge("websocket_active_connections"),
		totalConnections:   provider.Counter("websocket_connections_total"),
		connectionDuration: provider.Histogram("websocket_connection_duration_seconds"),
		connectionErrors:   provider.Counter("websocket_connection_errors_total"),

		messagesReceived: provider.Counter("websocket_messages_received_total"),
		messagesSent:     provider.Counter("websocket_messages_sent_total"),
		messageErrors:    provider.Counter("websocket_message_errors_total"),
		messageSize:      provider.Histogram("websocket_message_size_bytes"),

		requestsTotal:   provider.Counter("reverser_events_total"),
		requestDuration: provider.Histogram("reverser_event_duration_seconds"),
		requestErrors:   provider.Counter("reverser_event_errors_total"),

		pingsSent:     provider.Counter("websocket_pings_sent_total"),
		pongTimeouts:  provider.Counter("websocket_pong_timeouts_total"),
		writeTimeouts: provider.Counter("websocket_write_timeouts_total"),
	}
}

// RecordConnectionStart records a newly established connection.
func (m *WebSocketMetrics) RecordConnectionStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.totalConnections.Add(ctx, 1)
}

// RecordConnectionActive updates the active connection count.
func (m *WebSocketMetrics) RecordConnectionActive(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(ctx, float64(count))
}

// RecordConnectionEnd records how long a finished connection lasted.
func (m *WebSocketMetrics) RecordConnectionEnd(ctx context.Context, duration time.Duration) {
	if m == nil {
		return
	}
	m.connectionDuration.Record(ctx, duration.Seconds())
}

// RecordConnectionError records connection-level errors.
func (m *WebSocketMetrics) RecordConnectionError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.connectionErrors.Add(ctx, 1, o11y.Label{Key: "error_type", Value: errorType})
}

// RecordMessageReceived records a frame read from a client.
func (m *WebSocketMetrics) RecordMessageReceived(ctx context.Context, sizeBytes int) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1)
	m.messageSize.Record(ctx, float64(sizeBytes), o11y.Label{Key: "direction", Value: "received"})
}

// RecordMessageSent records a frame written to a client.
func (m *WebSocketMetrics) RecordMessageSent(ctx context.Context, sizeBytes int, event string) {
	if m == nil {
		return
	}
	m.messagesSent.Add(ctx, 1, o11y.Label{Key: "event", Value: event})
	m.messageSize.Record(ctx, float64(sizeBytes), o11y.Label{Key: "direction", Value: "sent"})
}

// RecordMessageError records a frame that produced no reply or failed to send.
func (m *WebSocketMetrics) RecordMessageError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.messageErrors.Add(ctx, 1, o11y.Label{Key: "error_type", Value: errorType})
}

// RecordRequest records the start of an event dispatch and returns a function
// that records its completion. Pass "" for success or an error type.
//
//	done := metrics.RecordRequest(ctx, "reverse_input")
//	defer done(errorType)
func (m *WebSocketMetrics) RecordRequest(ctx context.Context, route string) func(errorType string) {
	if m == nil {
		return func(string) {}
	}

	startTime := time.Now()
	m.requestsTotal.Add(ctx, 1, o11y.Label{Key: "route", Value: route})

	return func(errorType string) {
		m.requestDuration.Record(ctx, time.Since(startTime).Seconds(), o11y.Label{Key: "route", Value: route})

		if errorType != "" {
			m.requestErrors.Add(ctx, 1,
				o11y.Label{Key: "route", Value: route},
				o11y.Label{Key: "error_type", Value: errorType},
			)
		}
	}
}

// RecordPingSent records a ping frame that got its pong in time.
func (m *WebSocketMetrics) RecordPingSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.pingsSent.Add(ctx, 1)
}

// RecordPongTimeout records a ping whose pong did not arrive in time.
func (m *WebSocketMetrics) RecordPongTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.pongTimeouts.Add(ctx, 1)
}

// RecordWriteTimeout records a write that hit the write timeout.
func (m *WebSocketMetrics) RecordWriteTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.writeTimeouts.Add(ctx, 1)
}
