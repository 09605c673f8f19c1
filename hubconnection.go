package hublifetime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/teivah/onecontext"
)

// hubConnection is the send path of a single connection.
// All frames for the connection pass one bounded queue and are written by one goroutine,
// so frames from concurrent broadcasts never interleave and keep their hand-off order.
type hubConnection struct {
	conn         Connection
	protocol     HubProtocol
	outbound     chan []byte
	ctx          context.Context
	cancel       context.CancelFunc
	sendTimeout  time.Duration
	slowConsumer SlowConsumerPolicy
	onAbort      func(hc *hubConnection, err error)
	stopOnce     sync.Once
	mx           sync.Mutex
	err          error
	info         StructuredLogger
	dbg          StructuredLogger
	metrics      *managerMetrics
}

func newHubConnection(parentContext context.Context, conn Connection, protocol HubProtocol,
	options *managerOptions, metrics *managerMetrics, onAbort func(hc *hubConnection, err error)) *hubConnection {
	connContext := conn.Context()
	if connContext == nil {
		connContext = context.Background()
	}
	merged, mergeCancel := onecontext.Merge(parentContext, connContext)
	ctx, cancel := context.WithCancel(merged)
	return &hubConnection{
		conn:     conn,
		protocol: protocol,
		outbound: make(chan []byte, options.outboundBufferCapacity),
		ctx:      ctx,
		cancel: func() {
			cancel()
			mergeCancel()
		},
		sendTimeout:  options.sendTimeout,
		slowConsumer: options.slowConsumer,
		onAbort:      onAbort,
		info:         log.WithPrefix(options.info, "connection", conn.ConnectionID()),
		dbg:          log.WithPrefix(options.dbg, "connection", conn.ConnectionID()),
		metrics:      metrics,
	}
}

func (c *hubConnection) Start() {
	go c.writeLoop()
}

func (c *hubConnection) ConnectionID() string {
	return c.conn.ConnectionID()
}

func (c *hubConnection) IsConnected() bool {
	return c.ctx.Err() == nil
}

// Done is closed when the send path is stopped
func (c *hubConnection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err returns the reason why the send path was stopped, or nil
func (c *hubConnection) Err() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.err
}

// TrySend hands frame off to the outbound queue if the queue has space
func (c *hubConnection) TrySend(frame []byte) bool {
	if !c.IsConnected() {
		return false
	}
	select {
	case c.outbound <- frame:
		return true
	default:
		return false
	}
}

// Send hands frame off to the outbound queue. It only blocks if the queue is full.
// With AbortSlowConsumer, it waits up to sendTimeout and aborts the connection when the time is up.
// With DropOnSlowConsumer, the frame is dropped and the connection kept.
func (c *hubConnection) Send(ctx context.Context, frame []byte) error {
	if !c.IsConnected() {
		return ErrConnectionAborted
	}
	select {
	case c.outbound <- frame:
		return nil
	default:
	}
	if c.slowConsumer == DropOnSlowConsumer {
		_ = c.dbg.Log(evt, "send", "error", ErrSlowConsumer, react, "drop message")
		return ErrSlowConsumer
	}
	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()
	select {
	case c.outbound <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionAborted
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		_ = c.info.Log(evt, "send", "error", ErrSlowConsumer, "timeout", c.sendTimeout, react, "abort connection")
		c.Abort(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

// Abort stops the send path because of err, tears down the transport if it can be aborted
// and notifies the HubLifetimeManager, which unregisters the connection.
func (c *hubConnection) Abort(err error) {
	c.stop(err, true)
}

// Close stops the send path silently. Used when the connection is unregistered.
func (c *hubConnection) Close() {
	c.stop(nil, false)
}

func (c *hubConnection) stop(err error, notify bool) {
	c.stopOnce.Do(func() {
		c.mx.Lock()
		c.err = err
		c.mx.Unlock()
		c.cancel()
		if !notify {
			return
		}
		if ac, ok := c.conn.(abortableConnection); ok {
			ac.Abort()
		}
		if errors.Is(err, ErrConnectionAborted) || errors.Is(err, ErrSlowConsumer) {
			c.metrics.aborted.Inc()
		}
		if c.onAbort != nil {
			// The manager takes registry locks, which might be held by the caller of stop
			go c.onAbort(c, err)
		}
	})
}

func (c *hubConnection) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			// transport gone, manager shut down or stopped by stop()
			c.stop(c.ctx.Err(), true)
			return
		case frame := <-c.outbound:
			if err := c.write(frame); err != nil {
				if c.IsConnected() {
					_ = c.info.Log(evt, "write", "error", err, react, "abort connection")
					c.Abort(fmt.Errorf("%w: %v", ErrConnectionAborted, err))
				}
				return
			}
		}
	}
}

func (c *hubConnection) write(frame []byte) error {
	e := make(chan error, 1)
	go func() {
		_, err := c.conn.Write(frame)
		e <- err
	}()
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case err := <-e:
		return err
	}
}
