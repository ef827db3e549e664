// Copyright © 2026 Niko Carpenter <niko@nikocarpenter.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package transport

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// errNotOpen is wrapped in a SendError when sending on a transport that is no longer open.
var errNotOpen = errors.New("transport not open")

const closeGracePeriod = time.Second

// WebSocketOptions configures a WebSocket transport.
type WebSocketOptions struct {
	// WriteWait bounds every write. 0 means no deadline.
	WriteWait time.Duration
	// ReadTimeout is how long ReadLoop waits for a frame or pong before giving up.
	// It is extended whenever anything is received. 0 means no deadline.
	ReadTimeout time.Duration
	// MaxMessageSize limits inbound frames. 0 means no limit.
	MaxMessageSize int64
}

// WebSocket is a Transport backed by a gorilla websocket connection.
type WebSocket struct {
	conn      *websocket.Conn
	opts      WebSocketOptions
	writeLock sync.Mutex // gorilla allows only one concurrent writer
	state     atomic.Int32
	closeOnce sync.Once
}

// NewWebSocket wraps an already upgraded websocket connection.
// The returned transport is Open.
func NewWebSocket(conn *websocket.Conn, opts WebSocketOptions) *WebSocket {
	ws := &WebSocket{
		conn: conn,
		opts: opts,
	}
	ws.state.Store(int32(Open))

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	conn.SetPongHandler(func(string) error {
		ws.extendReadDeadline()
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		// The peer started the close handshake; echo it and stop accepting sends.
		ws.state.CompareAndSwap(int32(Open), int32(Closing))
		msg := websocket.FormatCloseMessage(code, "")
		ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		return nil
	})

	return ws
}

// State implements Transport.
func (ws *WebSocket) State() State {
	return State(ws.state.Load())
}

// Send writes data as a single text frame.
func (ws *WebSocket) Send(data []byte) error {
	if ws.State() != Open {
		return &SendError{Class: PrematureClose, Err: errNotOpen}
	}

	ws.writeLock.Lock()
	defer ws.writeLock.Unlock()

	if err := ws.conn.SetWriteDeadline(ws.deadline(ws.opts.WriteWait)); err != nil {
		return ws.sendFailed(err)
	}
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return ws.sendFailed(err)
	}
	return nil
}

// Ping sends a ping control frame; the peer's pong extends the read deadline.
func (ws *WebSocket) Ping() error {
	if ws.State() != Open {
		return &SendError{Class: PrematureClose, Err: errNotOpen}
	}
	wait := ws.opts.WriteWait
	if wait == 0 {
		wait = closeGracePeriod
	}
	if err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait)); err != nil {
		return ws.sendFailed(err)
	}
	return nil
}

// Close sends a close frame with the given reason and closes the underlying connection.
// Only the first call has any effect.
func (ws *WebSocket) Close(reason CloseReason, description string) error {
	var err error
	ws.closeOnce.Do(func() {
		ws.state.CompareAndSwap(int32(Open), int32(Closing))
		msg := websocket.FormatCloseMessage(int(reason), description)
		writeErr := ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		closeErr := ws.conn.Close()
		ws.state.Store(int32(Closed))

		switch {
		case writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent):
			err = errors.Wrap(writeErr, "Write close message")
		case closeErr != nil:
			err = errors.Wrap(closeErr, "Close connection")
		}
	})
	return err
}

// ReadLoop reads frames until the connection fails or is closed, passing each one to onFrame.
// It returns nil when the connection ended with a close handshake.
func (ws *WebSocket) ReadLoop(onFrame func([]byte)) error {
	for {
		ws.extendReadDeadline()
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			ws.state.CompareAndSwap(int32(Open), int32(Aborted))
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			if s := ws.State(); s == Closing || s == Closed {
				return nil
			}
			return errors.Wrap(err, "Read frame")
		}
		if len(data) > 0 {
			onFrame(data)
		}
	}
}

// RemoteAddr returns the peer's network address.
func (ws *WebSocket) RemoteAddr() net.Addr {
	return ws.conn.RemoteAddr()
}

func (ws *WebSocket) extendReadDeadline() {
	ws.conn.SetReadDeadline(ws.deadline(ws.opts.ReadTimeout))
}

func (ws *WebSocket) deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// sendFailed classifies a write error and marks the transport aborted if the peer is gone.
func (ws *WebSocket) sendFailed(err error) error {
	sendErr := classifyWriteError(err)
	if sendErr.Class == PrematureClose {
		ws.state.CompareAndSwap(int32(Open), int32(Aborted))
	}
	return sendErr
}

func classifyWriteError(err error) *SendError {
	switch {
	case errors.Is(err, websocket.ErrCloseSent),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		return &SendError{Class: PrematureClose, Err: err}
	}
	return &SendError{Class: Other, Err: err}
}
