package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wakecast/adb-go/pkg/log"
)

// Default timeouts.
const (
	// DefaultConnectTimeout bounds the TCP dial.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultIOTimeout bounds ordinary reads and writes.
	DefaultIOTimeout = 3 * time.Second
)

// DefaultAddress is the daemon's loopback listener.
const DefaultAddress = "127.0.0.1:5555"

// Dialer establishes connections to the debug daemon.
type Dialer struct {
	// ConnectTimeout bounds the TCP dial (default: 5s).
	ConnectTimeout time.Duration

	// IOTimeout bounds each read and write on the resulting Conn
	// (default: 3s).
	IOTimeout time.Duration

	// MaxPayload is the ceiling applied to payload lengths declared by
	// the peer (default: wire.DefaultMaxDeclaredPayload).
	MaxPayload uint32

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger
}

// Dial connects to the daemon at address. The context and the
// configured ConnectTimeout both bound the attempt.
func (d *Dialer) Dial(ctx context.Context, address string) (*Conn, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	return NewConn(conn, ConnConfig{
		IOTimeout:  d.IOTimeout,
		MaxPayload: d.MaxPayload,
		Logger:     d.Logger,
	}), nil
}
