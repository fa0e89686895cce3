package transport

import (
	"sync"
	"time"

	"collab-hub/errors"

	"github.com/gorilla/websocket"
)

type ConnOptions struct {
	WriteTimeout  time.Duration
	PongWait      time.Duration
	MaxFrameBytes int64
	// OnPong runs on the reading goroutine for every pong received.
	OnPong func()
}

// Conn adapts a gorilla websocket to the hub transport. Writes are
// serialized; Read must only be called from one goroutine.
type Conn struct {
	ws        *websocket.Conn
	opts      ConnOptions
	wmu       sync.Mutex
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, opts ConnOptions) *Conn {
	c := &Conn{ws: ws, opts: opts}
	if opts.MaxFrameBytes > 0 {
		ws.SetReadLimit(opts.MaxFrameBytes)
	}
	c.extendRead()
	ws.SetPongHandler(func(string) error {
		c.extendRead()
		if opts.OnPong != nil {
			opts.OnPong()
		}
		return nil
	})
	return c
}

func (c *Conn) extendRead() {
	if c.opts.PongWait > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	}
}

func (c *Conn) deadline() time.Time {
	if c.opts.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.opts.WriteTimeout)
}

// Read returns the next data frame. Binary frames are handed over as is and
// rejected by the decoder.
func (c *Conn) Read() ([]byte, error) {
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.extendRead()
	return frame, nil
}

func (c *Conn) Write(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(c.deadline())
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) Ping() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, c.deadline())
}

// Close sends a close frame carrying the reason code, then drops the socket.
func (c *Conn) Close(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		msg := websocket.FormatCloseMessage(CloseCode(reason), closeText(reason))
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// CloseCode maps a close reason to a websocket status code.
func CloseCode(reason error) int {
	switch {
	case reason == nil:
		return websocket.CloseNormalClosure
	case errors.Is(reason, errors.ErrServerShutdown), errors.Is(reason, errors.ErrHeartbeatTimeout):
		return websocket.CloseGoingAway
	case errors.Is(reason, errors.ErrAuthRequired), errors.Is(reason, errors.ErrInvalidToken):
		return websocket.ClosePolicyViolation
	case errors.Is(reason, errors.ErrBackpressureExceeded):
		return websocket.CloseTryAgainLater
	case errors.Is(reason, errors.ErrMalformedEnvelope):
		return websocket.CloseInvalidFramePayloadData
	default:
		return websocket.CloseNormalClosure
	}
}

func closeText(reason error) string {
	if reason == nil {
		return ""
	}
	switch {
	case errors.Is(reason, errors.ErrHeartbeatTimeout):
		return errors.ErrHeartbeatTimeout.Error()
	case errors.Is(reason, errors.ErrServerShutdown):
		return errors.ErrServerShutdown.Error()
	}
	code := errors.Code(reason)
	if code == errors.CodeInternal {
		return ""
	}
	return code
}
