package transport

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wakecast/adb-go/pkg/log"
	"github.com/wakecast/adb-go/pkg/wire"
)

// ConnConfig configures a Conn wrapper.
type ConnConfig struct {
	// IOTimeout bounds each read and write (default: DefaultIOTimeout).
	IOTimeout time.Duration

	// MaxPayload caps peer-declared payload lengths (default:
	// wire.DefaultMaxDeclaredPayload).
	MaxPayload uint32

	// Logger receives wire-layer events. Nil disables logging.
	Logger log.Logger
}

// Conn is one socket to the daemon. All message I/O runs under
// per-operation deadlines; Conn itself does no locking, the client
// serializes access.
type Conn struct {
	conn       net.Conn
	id         string
	remoteAddr string
	ioTimeout  time.Duration
	maxPayload uint32
	logger     log.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established socket. Exposed for tests that build
// connections over in-memory pipes.
func NewConn(conn net.Conn, config ConnConfig) *Conn {
	if config.IOTimeout == 0 {
		config.IOTimeout = DefaultIOTimeout
	}
	if config.MaxPayload == 0 {
		config.MaxPayload = wire.DefaultMaxDeclaredPayload
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	var remote string
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Conn{
		conn:       conn,
		id:         uuid.NewString(),
		remoteAddr: remote,
		ioTimeout:  config.IOTimeout,
		maxPayload: config.MaxPayload,
		logger:     logger,
	}
}

// ID returns the connection's unique identifier (used in log events).
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the daemon address.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Send writes one message under the ordinary I/O deadline.
func (c *Conn) Send(msg *wire.Message) error {
	return c.SendTimeout(msg, c.ioTimeout)
}

// SendTimeout writes one message under an explicit deadline.
func (c *Conn) SendTimeout(msg *wire.Message, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if err := wire.WriteMessage(c.conn, msg); err != nil {
		c.logError(err)
		return err
	}
	c.logMessage(log.DirectionOut, msg)
	return nil
}

// Receive reads one full message under the ordinary I/O deadline.
func (c *Conn) Receive() (*wire.Message, error) {
	return c.ReceiveTimeout(c.ioTimeout)
}

// ReceiveTimeout reads one full message under an explicit deadline. The
// handshake's trust-prompt step uses this with its extended bound.
func (c *Conn) ReceiveTimeout(timeout time.Duration) (*wire.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	msg, err := wire.ReadMessage(c.conn, c.maxPayload)
	if err != nil {
		c.logError(err)
		return nil, err
	}
	c.logMessage(log.DirectionIn, msg)
	return msg, nil
}

// Close closes the socket. Safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) logMessage(dir log.Direction, msg *wire.Message) {
	event := log.NewMessageEvent(c.id, dir, msg)
	event.RemoteAddr = c.remoteAddr
	c.logger.Log(event)
}

func (c *Conn) logError(err error) {
	event := log.NewErrorEvent(c.id, log.LayerWire, "", err)
	event.RemoteAddr = c.remoteAddr
	c.logger.Log(event)
}
