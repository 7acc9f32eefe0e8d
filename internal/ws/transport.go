package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeWriteTimeout bounds the close handshake write on shutdown.
const closeWriteTimeout = 5 * time.Second

// ErrTransportClosed is returned by sends on a transport that has been closed.
var ErrTransportClosed = errors.New("transport closed")

// Transport is the send/close surface of one duplex streaming connection.
// The Registry treats it as opaque: sends on a non-open transport are skipped,
// and a send error marks the connection dead.
type Transport interface {
	// Send writes a JSON-encoded event frame.
	Send(data []byte) error
	// SendText writes a bare text frame (used for heartbeat replies).
	SendText(text string) error
	// Open reports whether the transport can still accept writes.
	Open() bool
	// Close performs a best-effort close with the given websocket close code.
	// Closing an already-broken transport must not fail loudly; errors are
	// advisory only.
	Close(code int) error
}

// gorillaTransport adapts a gorilla/websocket connection to Transport.
// Gorilla permits at most one concurrent writer, so all writes serialize on
// an internal mutex.
type gorillaTransport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewGorillaTransport wraps an upgraded websocket connection.
func NewGorillaTransport(conn *websocket.Conn) Transport {
	return &gorillaTransport{conn: conn}
}

func (t *gorillaTransport) Send(data []byte) error {
	return t.write(websocket.TextMessage, data)
}

func (t *gorillaTransport) SendText(text string) error {
	return t.write(websocket.TextMessage, []byte(text))
}

func (t *gorillaTransport) write(messageType int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if err := t.conn.WriteMessage(messageType, data); err != nil {
		t.closed = true
		return err
	}
	return nil
}

func (t *gorillaTransport) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *gorillaTransport) Close(code int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	// Best-effort close handshake; the peer may already be gone.
	deadline := time.Now().Add(closeWriteTimeout)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), deadline)
	return t.conn.Close()
}
