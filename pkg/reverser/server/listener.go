package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Listener accepts WebSocket connections and runs each one against the
// configured event router. It implements http.Handler.
type Listener struct {
	logger        *zap.Logger
	config        *ListenerConfig
	metrics       *WebSocketMetrics
	acceptOptions *websocket.AcceptOptions

	// Connection tracking for graceful shutdown
	connections  map[*Connection]struct{}
	connMutex    sync.RWMutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// newListener creates a Listener from a validated config. Use
// NewListenerConfig().Build() instead of calling this directly.
func newListener(config *ListenerConfig) *Listener {
	patterns, allowAll := config.originPolicy()

	return &Listener{
		logger:  config.logger,
		config:  config,
		metrics: NewWebSocketMetrics(config.metricsProvider),
		acceptOptions: &websocket.AcceptOptions{
			CompressionMode:    websocket.CompressionContextTakeover,
			OriginPatterns:     patterns,
			InsecureSkipVerify: allowAll,
		},
		connections: make(map[*Connection]struct{}),
		shutdown:    make(chan struct{}),
	}
}

// ServeHTTP makes Listener usable as an http.Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.ServeWebsocket(w, r)
}

// ServeWebsocket upgrades the request to a WebSocket and serves it until the
// connection ends. Requests from origins that are not allowed are refused
// with 403 before the upgrade.
//
//	http.HandleFunc("/ws", listener.ServeWebsocket)
func (l *Listener) ServeWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, l.acceptOptions)
	if err != nil {
		l.logger.Warn("Failed to accept WebSocket connection",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.String("user_agent", r.UserAgent()),
		)
		l.metrics.RecordConnectionError(r.Context(), "accept_error")
		return
	}

	logger := l.logger.With(zap.String("remote_addr", r.RemoteAddr))

	// Checked under the lock so Shutdown's snapshot cannot miss this connection.
	l.connMutex.Lock()
	select {
	case <-l.shutdown:
		l.connMutex.Unlock()
		logger.Debug("Rejecting new connection due to shutdown")
		conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	default:
	}
	connection := newConnection(r.Context(), conn, l.config, l.metrics, logger)
	l.connections[connection] = struct{}{}
	connCount := len(l.connections)
	l.connMutex.Unlock()

	logger.Debug("WebSocket connection established",
		zap.String("user_agent", r.UserAgent()),
	)

	l.metrics.RecordConnectionStart(r.Context())
	l.metrics.RecordConnectionActive(r.Context(), connCount)
	logger.Debug("WebSocket connection tracked", zap.Int("active_connections", connCount))

	connection.Start()

	l.connMutex.Lock()
	delete(l.connections, connection)
	connCount = len(l.connections)
	l.connMutex.Unlock()

	l.metrics.RecordConnectionActive(r.Context(), connCount)
	logger.Debug("WebSocket connection removed from tracking", zap.Int("active_connections", connCount))
}

// Shutdown stops accepting connections, closes live ones with StatusGoingAway
// and waits for them to finish or for ctx to expire. Connections that arrive
// afterwards are closed with StatusServiceRestart.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.logger.Info("Starting graceful WebSocket shutdown")

		l.connMutex.Lock()
		close(l.shutdown)
		connections := make([]*Connection, 0, len(l.connections))
		for conn := range l.connections {
			connections = append(connections, conn)
		}
		l.connMutex.Unlock()

		if len(connections) == 0 {
			l.logger.Info("No active connections to close")
			return
		}

		l.logger.Info("Closing active WebSocket connections",
			zap.Int("connection_count", len(connections)),
		)

		for _, conn := range connections {
			go conn.shutdownClose(websocket.StatusGoingAway, "Server shutting down")
		}
	})

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		remaining := l.ConnectionCount()
		if remaining == 0 {
			l.logger.Info("All WebSocket connections closed")
			return nil
		}

		select {
		case <-ctx.Done():
			l.logger.Warn("Shutdown timeout reached with active connections",
				zap.Int("remaining_connections", remaining),
			)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ConnectionCount returns the number of live connections.
func (l *Listener) ConnectionCount() int {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()
	return len(l.connections)
}
