package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"wstunnel/internal/protocol"
)

// SendQueueDepth bounds how many outbound frames a Channel will buffer
// before Send starts blocking its caller, giving the write side
// backpressure instead of unbounded memory growth.
const SendQueueDepth = 256

// ErrChannelClosed is returned by Send once the channel has shut down.
var ErrChannelClosed = errors.New("transport: channel closed")

// Handler receives frames dispatched off a Channel's read loop. It must not
// block for long; slow per-stream work belongs on the stream's own inbox.
type Handler func(protocol.Frame)

// Channel wraps one full-duplex net.Conn (a raw TCP socket or a websocket
// adapter) with frame-level read/write semantics: exactly one writer goroutine
// draining a bounded send queue, and exactly one reader goroutine dispatching
// decoded frames to a Handler. PING frames are answered inline with PONG
// without involving the Handler.
type Channel struct {
	conn    net.Conn
	handler Handler

	sendCh chan protocol.Frame
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
	closeErr error
}

// NewChannel wraps conn. handler is invoked from the read loop for every
// frame that is not a PING (PINGs are answered automatically).
func NewChannel(conn net.Conn, handler Handler) *Channel {
	return &Channel{
		conn:    conn,
		handler: handler,
		sendCh:  make(chan protocol.Frame, SendQueueDepth),
		done:    make(chan struct{}),
	}
}

// Run starts the read and write loops and blocks until the connection fails
// or ctx is cancelled. The caller typically runs this in its own goroutine.
func (c *Channel) Run(ctx context.Context) error {
	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- c.writeLoop(ctx)
	}()
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-c.done:
		}
	}()

	readErr := c.readLoop()

	c.shutdown(readErr)
	<-writeErrCh

	if readErr != nil {
		return readErr
	}
	return nil
}

// Send enqueues f for transmission. It blocks until the queue has room, ctx
// is cancelled, or the channel has closed.
func (c *Channel) Send(ctx context.Context, f protocol.Frame) error {
	select {
	case c.sendCh <- f:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the channel down and closes the underlying connection.
func (c *Channel) Close() error {
	c.shutdown(nil)
	return c.conn.Close()
}

func (c *Channel) writeLoop(ctx context.Context) error {
	for {
		select {
		case f := <-c.sendCh:
			if err := protocol.WriteFrame(c.conn, f); err != nil {
				return err
			}
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) readLoop() error {
	for {
		f, err := protocol.ReadFrame(c.conn)
		if err != nil {
			return err
		}
		if f.Command == protocol.CmdPing {
			select {
			case c.sendCh <- protocol.Pong():
			case <-c.done:
				return nil
			}
			continue
		}
		c.handler(f)
	}
}

// shutdown marks the channel closed and, the first time it's called,
// synthesizes an ERROR frame (code 0) so any stream still waiting on this
// channel observes the transport failure instead of hanging forever.
func (c *Channel) shutdown(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeErr = cause
		c.mu.Unlock()
		close(c.done)
		if cause != nil {
			log.Printf("[transport] channel failed: %v", cause)
			c.handler(protocol.ErrorReply(0, 0, fmt.Sprintf("transport failure: %v", cause)))
		}
	})
}
