package adb

import (
	"errors"
	"net"
	"syscall"

	"github.com/wakecast/adb-go/pkg/handshake"
	"github.com/wakecast/adb-go/pkg/wire"
)

// Client errors.
var (
	// ErrNotInitialized indicates a command was issued before Init
	// loaded the key pair.
	ErrNotInitialized = errors.New("client not initialized")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("client closed")
)

// classify maps an error to a stable kind string for log events.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, handshake.ErrNotTrusted):
		return "not_trusted"
	case errors.Is(err, handshake.ErrProtocol),
		errors.Is(err, wire.ErrPayloadTooLarge),
		errors.Is(err, wire.ErrShortHeader):
		return "protocol_error"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connect_refused"
	case isTimeout(err):
		return "timeout"
	default:
		return "io_error"
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
