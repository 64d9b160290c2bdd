// Package transport implements the persistent full-duplex byte-framed
// channel of the wire protocol on top of a websocket connection, grounded on
// the pending-request/dispatch pattern used for Claude session sockets in
// the retrieval pack's standalone websocket examples.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agentsessiond/agentsession/internal/apperror"
	"github.com/agentsessiond/agentsession/internal/logging"
	"github.com/agentsessiond/agentsession/internal/protocol"
)

// Connection wraps one websocket control connection. Writes are funneled
// through a single goroutine reading from send so concurrent senders never
// interleave frames, matching the teacher event bus's single-publisher
// discipline adapted to a socket instead of an in-process channel.
type Connection struct {
	ws   *websocket.Conn
	send chan protocol.Message

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ws:     ws,
		send:   make(chan protocol.Message, 64),
		closed: make(chan struct{}),
	}
}

// Dial opens a control connection to a workspace server's session endpoint,
// the client-side counterpart of Server.handleUpgrade. The returned
// Connection's write pump is already running; callers drive reads with Run.
func Dial(ctx context.Context, url string) (*Connection, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn := newConnection(ws)
	go conn.writePump(ctx)
	return conn, nil
}

// Run reads frames until the connection closes or ctx is done, handing each
// decoded message to handle. It blocks, so callers run it in its own
// goroutine (the conductor's event loop is the only reader of its output).
func (c *Connection) Run(ctx context.Context, handle func(protocol.Message)) {
	c.readLoop(ctx, handle)
}

// Done returns a channel closed once the connection has been closed,
// letting a caller notice disconnection without blocking on Run.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// Send enqueues a message for delivery. It never blocks the caller on
// network I/O; if the outbound queue is full the connection is considered
// unhealthy and is closed.
func (c *Connection) Send(msg protocol.Message) {
	select {
	case c.send <- msg:
	case <-c.closed:
	default:
		logging.Warn().Str("type", msg.MessageType()).Msg("connection send queue full, closing")
		c.Close()
	}
}

// Close terminates the connection. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(websocket.StatusNormalClosure, "closed")
	})
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case msg := <-c.send:
			data, err := protocol.Encode(msg)
			if err != nil {
				logging.Error().Err(err).Str("type", msg.MessageType()).Msg("encode failed")
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// readLoop reads frames until the connection closes, handing each decoded
// message to handle. Protocol-level decode errors are reported to the peer
// as an error message rather than killing the connection, per spec.md §4.1
// ("Unknown type -> reject with error").
func (c *Connection) readLoop(ctx context.Context, handle func(protocol.Message)) {
	defer c.Close()
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		msg, verr := protocol.Decode(data)
		if verr != nil {
			c.Send(errorMessage(verr))
			continue
		}
		handle(msg)
	}
}

func errorMessage(err *apperror.Error) *protocol.ErrorMessage {
	return &protocol.ErrorMessage{
		Type:      "error",
		SessionID: err.SessionID,
		Source:    string(err.Source),
		Code:      err.Code,
		Message:   err.Message,
	}
}
