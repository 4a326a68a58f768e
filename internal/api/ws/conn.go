package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uibridge/cdpgate/internal/shared/id"
)

// closeGrace bounds how long a parting close frame may take.
const closeGrace = time.Second

// Conn wraps one client socket. Gorilla permits a single writer, but frames
// arrive here from flush timers and the shutdown path concurrently, so all
// writes serialize on the mutex.
type Conn struct {
	id        id.ConnID
	ws        *websocket.Conn
	writeWait time.Duration

	mu     sync.Mutex
	closed bool
}

func newConn(socket *websocket.Conn, writeWait time.Duration) *Conn {
	return &Conn{
		id:        id.NewConnID(),
		ws:        socket,
		writeWait: writeWait,
	}
}

// ID returns the connection's log/metric correlation id.
func (c *Conn) ID() id.ConnID {
	return c.id
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// WriteText writes one text frame under the write deadline.
func (c *Conn) WriteText(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a best-effort close frame, then tears the transport down.
// Idempotent; later WriteText calls fail with net.ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeGrace))
	c.mu.Unlock()

	return c.ws.Close()
}
