// Package ws carries station sessions over gorilla WebSocket connections.
package ws

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"evcharge/backend/services/ocpp-server/internal/station"
)

// maxCloseReason is the longest close reason a control frame can carry.
const maxCloseReason = 123

// ConnOptions tunes keepalive and write deadlines.
type ConnOptions struct {
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
	ReadLimit    int64
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1024 * 1024
	}
	return o
}

type writeRequest struct {
	data []byte
	errc chan error
}

// Conn adapts a WebSocket connection to station.Transport. Writes are serialized
// through a single write pump that also sends keepalive pings.
type Conn struct {
	ws     *websocket.Conn
	opts   ConnOptions
	logger *zap.Logger

	send      chan writeRequest
	closed    chan struct{}
	closeOnce sync.Once
}

var _ station.Transport = (*Conn)(nil)

// NewConn wraps ws and starts its write pump.
func NewConn(ws *websocket.Conn, opts ConnOptions, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		ws:     ws,
		opts:   opts.withDefaults(),
		logger: logger,
		send:   make(chan writeRequest),
		closed: make(chan struct{}),
	}
	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	go c.writePump()
	return c
}

// ReadMessage returns the next data message. Any traffic from the peer extends the
// read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.closed:
			return nil, station.ErrTransportClosed
		default:
		}
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	return data, nil
}

// WriteMessage sends data as a text message and waits for the write to finish.
func (c *Conn) WriteMessage(data []byte) error {
	req := writeRequest{data: data, errc: make(chan error, 1)}
	select {
	case c.send <- req:
	case <-c.closed:
		return station.ErrTransportClosed
	}
	select {
	case err := <-req.errc:
		return err
	case <-c.closed:
		return station.ErrTransportClosed
	}
}

// Close sends a close frame with code and reason and drops the connection. Only the
// first call has an effect.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, truncateReason(reason))
		err = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
		close(c.closed)
		if cerr := c.ws.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case req := <-c.send:
			req.errc <- c.write(websocket.TextMessage, req.data)
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				// Unblocks the reader so the session tears down.
				c.logger.Debug("ping failed", zap.Error(err))
				_ = c.ws.Close()
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// truncateReason cuts reason to maxCloseReason bytes without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
