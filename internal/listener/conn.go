package listener

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/pkg/ojproto"
)

// conn is one accepted client connection, generalised from the teacher's
// gateway/websocket.Client: a readPump decoding frames and dispatching
// them (one goroutine per request, so a slow handler never blocks other
// in-flight requests on the same connection) plus a writePump draining a
// buffered send channel, the same split as the teacher's
// ReadPump/WritePump pair.
type conn struct {
	id         string
	nc         net.Conn
	dispatcher *ojproto.Dispatcher
	send       chan *ojproto.Message
	log        *logger.Logger

	mu     sync.Mutex
	closed bool
}

func newConn(id string, nc net.Conn, dispatcher *ojproto.Dispatcher, log *logger.Logger) *conn {
	return &conn{
		id:         id,
		nc:         nc,
		dispatcher: dispatcher,
		send:       make(chan *ojproto.Message, 64),
		log:        log.WithFields(zap.String("conn_id", id)),
	}
}

// serve runs the read and write pumps, blocking until the connection
// closes.
func (c *conn) serve(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.readPump(ctx) }()
	go func() { defer wg.Done(); c.writePump() }()
	wg.Wait()
}

func (c *conn) readPump(ctx context.Context) {
	defer func() {
		c.closeSend()
		c.nc.Close()
	}()

	r := bufio.NewReader(c.nc)
	for {
		msg, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("connection read ended", zap.Error(err))
			}
			return
		}
		go c.handle(ctx, msg)
	}
}

func (c *conn) handle(ctx context.Context, msg *ojproto.Message) {
	resp, err := c.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		c.log.Error("handler error", zap.String("action", msg.Action), zap.Error(err))
		errMsg, _ := ojproto.NewError(msg.ID, msg.Action, ojproto.ErrorCodeInternalError, err.Error(), nil)
		c.trySend(errMsg)
		return
	}
	if resp != nil {
		c.trySend(resp)
	}
}

func (c *conn) trySend(msg *ojproto.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("connection send buffer full, dropping message", zap.String("action", msg.Action))
	}
}

func (c *conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *conn) writePump() {
	w := bufio.NewWriter(c.nc)
	for msg := range c.send {
		if err := writeFrame(w, msg); err != nil {
			c.log.Debug("connection write failed", zap.Error(err))
			return
		}
		if err := w.Flush(); err != nil {
			c.log.Debug("connection flush failed", zap.Error(err))
			return
		}
	}
}
