package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/reverser/pkg/reverser/dispatch"
	"github.com/tsarna/reverser/pkg/reverser/o11y"
	"github.com/tsarna/reverser/pkg/reverser/wire"
	"go.uber.org/zap"
)

// unknownRoute labels metrics for events no handler is registered for.
const unknownRoute = "unknown"

// Connection is one client's WebSocket session. Events read from the client
// are dispatched in arrival order and their replies go back to this client
// only, through a per-connection outbox.
type Connection struct {
	ctx       context.Context
	cancel    context.CancelFunc
	conn      *websocket.Conn
	router    *dispatch.Router
	logger    *zap.Logger
	config    *ListenerConfig
	metrics   *WebSocketMetrics
	tracing   o11y.TracingProvider
	outbox    *outbox
	startTime time.Time

	cleanupOnce sync.Once
}

func newConnection(ctx context.Context, conn *websocket.Conn, config *ListenerConfig, metrics *WebSocketMetrics, logger *zap.Logger) *Connection {
	ctx, cancel := context.WithCancel(ctx)

	c := &Connection{
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		router:    config.router,
		logger:    logger,
		config:    config,
		metrics:   metrics,
		tracing:   config.tracingProvider,
		startTime: time.Now(),
	}

	c.outbox = newOutbox(c, config.queueSize).withTicker(config.pingInterval).start(ctx)

	return c
}

// Start runs the connection until the client goes away, a write fails, or the
// listener shuts it down. It blocks; the reader runs in the calling goroutine.
func (c *Connection) Start() {
	c.logger.Debug("Starting WebSocket connection handler")

	c.messageReader()

	c.logger.Debug("WebSocket connection handler stopping")
	c.cleanup()
}

func (c *Connection) messageReader() {
	defer c.logger.Debug("Message reader stopped")

	c.conn.SetReadLimit(c.config.readLimit)

	for {
		if c.ctx.Err() != nil {
			return
		}

		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			switch {
			case closeStatus != -1:
				c.logger.Debug("WebSocket connection closed by client",
					zap.Int("close_status", int(closeStatus)),
				)
			case c.ctx.Err() != nil:
				c.logger.Debug("WebSocket connection closed due to context cancellation", zap.Error(err))
			default:
				c.logger.Warn("Failed to read WebSocket message", zap.Error(err))
				c.metrics.RecordConnectionError(c.ctx, "read_error")
			}
			return
		}

		if len(data) == 0 {
			c.logger.Debug("Received empty WebSocket message, ignoring")
			continue
		}

		c.metrics.RecordMessageReceived(c.ctx, len(data))

		msg, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("Failed to parse incoming WebSocket message",
				zap.Error(err),
				zap.Int("data_length", len(data)),
			)
			c.metrics.RecordMessageError(c.ctx, "parse_error")
			continue
		}

		c.logger.Debug("Received WebSocket message",
			zap.String("event", msg.Event),
			zap.Any("id", msg.Id),
		)

		c.handleMessage(msg)
	}
}

// handleMessage dispatches one event and queues its reply, if any.
func (c *Connection) handleMessage(msg wire.Message) {
	route, ok := c.router.Route(msg.Event)
	if !ok {
		route = unknownRoute
	}

	ctx := c.ctx
	var span o11y.Span
	if c.tracing != nil {
		ctx, span = c.tracing.StartSpan(ctx, "reverser.dispatch")
		span.SetAttributes(o11y.Label{Key: "event", Value: route})
		defer span.End()
	}

	var errorType string
	recordCompletion := c.metrics.RecordRequest(ctx, route)
	defer func() {
		recordCompletion(errorType)
	}()

	reply, err := c.router.Dispatch(ctx, msg)
	if err != nil {
		errorType = errorTypeOf(err)
		c.logger.Warn("Dropping event",
			zap.String("event", msg.Event),
			zap.Any("id", msg.Id),
			zap.String("error_type", errorType),
			zap.Error(err),
		)
		c.metrics.RecordMessageError(ctx, errorType)
		if span != nil {
			span.SetStatus(o11y.SpanStatusError, err.Error())
		}
		return
	}

	if span != nil {
		span.SetStatus(o11y.SpanStatusOK, "")
	}

	if reply == nil {
		return
	}

	if err := c.outbox.enqueue(c.ctx, *reply); err != nil {
		c.logger.Debug("Reply not queued, connection closing",
			zap.String("event", reply.Event),
			zap.Error(err),
		)
	}
}

func errorTypeOf(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrNoHandler):
		return "no_handler"
	case errors.Is(err, dispatch.ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "handler_error"
	}
}

// send writes one frame. Called from the outbox goroutine only.
func (c *Connection) send(ctx context.Context, msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		c.logger.Error("Failed to marshal WebSocket message",
			zap.String("event", msg.Event),
			zap.Error(err),
		)
		c.metrics.RecordMessageError(ctx, "marshal_error")
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.config.writeTimeout)
	defer cancel()

	err = c.conn.Write(writeCtx, websocket.MessageText, data)
	if err != nil {
		if errors.Is(writeCtx.Err(), context.DeadlineExceeded) {
			c.metrics.RecordWriteTimeout(ctx)
		}
		c.metrics.RecordMessageError(ctx, "write_error")
		c.fail("Failed to send WebSocket message", err)
		return err
	}

	c.metrics.RecordMessageSent(ctx, len(data), msg.Event)
	return nil
}

// ping sends a ping and waits for the pong. Called from the outbox goroutine only.
func (c *Connection) ping(ctx context.Context) error {
	c.logger.Debug("Sending ping to client")

	pingCtx, cancel := context.WithTimeout(ctx, c.config.writeTimeout)
	defer cancel()

	if err := c.conn.Ping(pingCtx); err != nil {
		c.metrics.RecordPongTimeout(ctx)
		c.fail("Ping failed", err)
		return err
	}

	c.metrics.RecordPingSent(ctx)
	return nil
}

// fail ends the connection after a write-side error. Cancelling the context
// unblocks the reader, which then runs cleanup.
func (c *Connection) fail(message string, err error) {
	if c.ctx.Err() != nil {
		return
	}
	c.logger.Info(message+", closing connection", zap.Error(err))
	c.cancel()
}

func (c *Connection) cleanup() {
	c.cleanupOnce.Do(func() {
		c.logger.Debug("Cleaning up WebSocket connection",
			zap.Int("pending_replies", c.outbox.pending()),
		)

		c.metrics.RecordConnectionEnd(c.ctx, time.Since(c.startTime))

		// Flush queued replies before the context goes away.
		c.outbox.close()
		c.cancel()

		if err := c.conn.Close(websocket.StatusNormalClosure, "Connection closed"); err != nil {
			// Expected when the client or shutdownClose closed first.
			c.logger.Debug("WebSocket close error (may be expected)", zap.Error(err))
		}

		c.logger.Debug("WebSocket connection cleanup completed")
	})
}

// shutdownClose closes the socket with code, which makes the reader return
// and cleanup run through the normal path.
func (c *Connection) shutdownClose(code websocket.StatusCode, reason string) {
	c.logger.Debug("Closing connection for shutdown",
		zap.Int("close_code", int(code)),
		zap.String("reason", reason),
	)

	if err := c.conn.Close(code, reason); err != nil {
		c.logger.Debug("Error closing WebSocket during shutdown", zap.Error(err))
	}
}
