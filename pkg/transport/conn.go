// Package transport runs the symmetric wire protocol over a single TCP
// connection: one reader goroutine, a bounded dispatch pool for incoming
// messages and mutex-serialized writes so frames never interleave.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sdejongh/fmerge/pkg/logging"
	"github.com/sdejongh/fmerge/pkg/protocol"
	"github.com/sdejongh/fmerge/pkg/ratelimit"
)

// ErrConnectionTerminated signals that the peer connection is gone. The
// session decides whether that is expected (end of session) or fatal.
var ErrConnectionTerminated = errors.New("connection terminated")

// maxDispatchWorkers bounds the number of concurrently running message
// handlers; a full pool blocks the reader
const maxDispatchWorkers = 32

// Handler processes one received message. Handlers run on dispatch
// goroutines and may call Send.
type Handler func(msg protocol.Message)

// Conn is one live peer connection
type Conn struct {
	conn   net.Conn
	logger logging.Logger

	writeMu sync.Mutex
	limiter *ratelimit.Limiter

	closed   atomic.Bool
	sem      chan struct{}
	handlers sync.WaitGroup

	poolWarned atomic.Bool
}

// newConn wraps an established socket
func newConn(conn net.Conn, logger logging.Logger) *Conn {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Conn{
		conn:   conn,
		logger: logger,
		sem:    make(chan struct{}, maxDispatchWorkers),
	}
}

// RemoteAddr returns the peer's address
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// SetBandwidthLimit caps outgoing file transfer bandwidth. Zero or
// negative means unlimited. Must be called before Start.
func (c *Conn) SetBandwidthLimit(bytesPerSecond int64) {
	c.limiter = ratelimit.NewLimiter(bytesPerSecond)
}

// Send serializes a message and writes it to the peer. The transmit
// mutex guarantees complete frames never interleave, so Send is safe
// from any goroutine.
func (c *Conn) Send(msg protocol.Message) error {
	if c.closed.Load() {
		return ErrConnectionTerminated
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var w io.Writer = c.conn
	if msg.Type() == protocol.MsgFileTransfer {
		w = ratelimit.NewWriter(c.conn, c.limiter)
	}

	if _, err := w.Write(frame); err != nil {
		if c.closed.Load() {
			return ErrConnectionTerminated
		}
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}

	c.logger.Debug(context.Background(), "[Peer <- Local]", logging.Fields{"type": msg.Type().String()})
	return nil
}

// Start launches the reader goroutine. Each received message is decoded
// and handed to onMessage on a pooled goroutine. onDisconnect runs once
// when the connection dies, with ErrConnectionTerminated for a clean or
// peer-initiated close.
func (c *Conn) Start(onMessage Handler, onDisconnect func(error)) {
	go c.readLoop(onMessage, onDisconnect)
}

func (c *Conn) readLoop(onMessage Handler, onDisconnect func(error)) {
	ctx := context.Background()

	for {
		var headerBuf [protocol.HeaderSize]byte
		if _, err := io.ReadFull(c.conn, headerBuf[:]); err != nil {
			onDisconnect(c.readError(err))
			return
		}
		header := protocol.DecodeHeader(headerBuf)

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			onDisconnect(c.readError(err))
			return
		}

		msg, err := protocol.Decode(header.Type, payload)
		if err != nil {
			// Protocol errors skip the message; the session continues
			c.logger.Warn(ctx, "discarding malformed message", logging.Fields{
				"type":   header.Type.String(),
				"length": header.Length,
				"error":  err.Error(),
			})
			continue
		}

		c.logger.Debug(ctx, "[Peer -> Local]", logging.Fields{"type": msg.Type().String()})

		c.acquireWorker(ctx)
		c.handlers.Add(1)
		go func() {
			defer c.handlers.Done()
			defer func() { <-c.sem }()
			onMessage(msg)
		}()
	}
}

// acquireWorker takes a dispatch pool slot, warning once when the pool
// is saturated and the reader has to wait
func (c *Conn) acquireWorker(ctx context.Context) {
	select {
	case c.sem <- struct{}{}:
		return
	default:
	}

	if !c.poolWarned.Swap(true) {
		c.logger.Warn(ctx, "dispatch pool saturated, reader blocked", logging.Fields{
			"workers": maxDispatchWorkers,
		})
	}
	c.sem <- struct{}{}
}

// readError maps a read failure to the session-facing error
func (c *Conn) readError(err error) error {
	if c.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionTerminated
	}
	return err
}

// Close tears down the connection; a blocked read returns promptly
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// Drain blocks until all in-flight message handlers have returned. Must
// not be called from a handler.
func (c *Conn) Drain() {
	c.handlers.Wait()
}
