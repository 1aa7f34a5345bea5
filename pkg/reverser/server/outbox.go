package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tsarna/reverser/pkg/reverser/wire"
)

// ErrOutboxClosed is returned by enqueue after the outbox has been closed.
var ErrOutboxClosed = errors.New("connection outbox is closed")

// sink is what an outbox delivers to. send and ping are only ever called from
// the outbox goroutine, so implementations need no locking of their own.
type sink interface {
	send(ctx context.Context, msg wire.Message) error
	ping(ctx context.Context) error
}

// outbox serializes everything written to one WebSocket: replies queued by
// the reader and periodic pings. Frames leave in the order they were queued.
type outbox struct {
	sink      sink
	queue     chan wire.Message
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	ticker    *time.Ticker
}

func newOutbox(s sink, queueSize int) *outbox {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &outbox{
		sink:  s,
		queue: make(chan wire.Message, queueSize),
		done:  make(chan struct{}),
	}
}

// withTicker enables pings at interval. Must be called before start.
func (o *outbox) withTicker(interval time.Duration) *outbox {
	if interval > 0 && o.ticker == nil {
		o.ticker = time.NewTicker(interval)
	}
	return o
}

func (o *outbox) start(ctx context.Context) *outbox {
	o.wg.Add(1)
	go o.run(ctx)
	return o
}

func (o *outbox) run(ctx context.Context) {
	defer o.wg.Done()

	var tickerChan <-chan time.Time
	if o.ticker != nil {
		tickerChan = o.ticker.C
	}

	for {
		select {
		case msg := <-o.queue:
			o.sink.send(ctx, msg)
		case <-tickerChan:
			o.sink.ping(ctx)
		case <-o.done:
			o.drain(ctx)
			return
		}
	}
}

// drain flushes whatever is still queued, unless the connection is already gone.
func (o *outbox) drain(ctx context.Context) {
	for {
		select {
		case msg := <-o.queue:
			if ctx.Err() == nil {
				o.sink.send(ctx, msg)
			}
		default:
			return
		}
	}
}

// enqueue waits for room in the queue rather than dropping, so a slow client
// applies backpressure to its own reader and nothing else.
func (o *outbox) enqueue(ctx context.Context, msg wire.Message) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.queue <- msg:
		return nil
	case <-o.done:
		return ErrOutboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops the ticker, flushes the queue and waits for the goroutine to exit.
func (o *outbox) close() {
	o.closeOnce.Do(func() {
		if o.ticker != nil {
			o.ticker.Stop()
		}
		close(o.done)
		o.wg.Wait()
	})
}

func (o *outbox) pending() int {
	return len(o.queue)
}
