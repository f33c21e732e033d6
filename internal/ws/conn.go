package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"roomchat-service/internal/models"
)

const writeWait = 10 * time.Second

// Close codes sent to peers.
const (
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseNormal          = websocket.CloseNormalClosure
	CloseServerShutdown  = websocket.CloseGoingAway
	// CloseTimeout is an application close code for heartbeat eviction.
	CloseTimeout = 4008
)

var errConnClosed = errors.New("connection closed")

// Transport is the subset of *websocket.Conn the hub writes through.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnInfo is the identity and request metadata of a connection, fixed at handshake.
type ConnInfo struct {
	ConnID      string
	UserID      string
	Username    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Conn is the handle of one authenticated connection. Room membership and activity live
// in the Registry and RoomIndex, not here.
type Conn struct {
	Info ConnInfo

	transport Transport
	writeMu   sync.Mutex
	closed    atomic.Bool

	// opMu serializes frame handling and disconnect cleanup for this connection.
	opMu           sync.Mutex
	gone           bool
	disconnectOnce sync.Once
}

func newConn(t Transport, info ConnInfo) *Conn {
	return &Conn{Info: info, transport: t}
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.Info.ConnID
}

// Writable reports whether the transport has not been closed.
func (c *Conn) Writable() bool {
	return !c.closed.Load()
}

// Send writes one text frame.
func (c *Conn) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return errConnClosed
	}
	if err := c.transport.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.transport.WriteMessage(websocket.TextMessage, payload)
}

// SendFrame marshals and writes frame.
func (c *Conn) SendFrame(frame models.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Ping sends a protocol-level ping.
func (c *Conn) Ping() error {
	if c.closed.Load() {
		return errConnClosed
	}
	return c.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// CloseWith sends a close frame and closes the transport. Only the first call has effect.
func (c *Conn) CloseWith(code int, reason string) error {
	if c.closed.Swap(true) {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	writeErr := c.transport.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	closeErr := c.transport.Close()
	if closeErr != nil {
		return closeErr
	}
	if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
		return writeErr
	}
	return nil
}

// abort drops the transport without a close handshake, after a failed write.
func (c *Conn) abort() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.transport.Close()
}
