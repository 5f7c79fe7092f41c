package handshake

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/wakecast/adb-go/pkg/keys"
	"github.com/wakecast/adb-go/pkg/log"
	"github.com/wakecast/adb-go/pkg/transport"
	"github.com/wakecast/adb-go/pkg/wire"
)

// DefaultTrustTimeout bounds the wait for the daemon's answer after
// the public key was offered. Deliberately long: a human may need to
// accept the trust prompt on the device.
const DefaultTrustTimeout = 40 * time.Second

// Handshake errors.
var (
	// ErrNoResponse indicates the daemon closed the stream or timed
	// out before a full message arrived.
	ErrNoResponse = errors.New("no response from daemon")

	// ErrNotTrusted indicates the daemon rejected the public key or
	// the trust prompt was never accepted.
	ErrNotTrusted = errors.New("daemon does not trust this key")

	// ErrProtocol indicates an unexpected message type or shape.
	ErrProtocol = errors.New("protocol violation")
)

// Config tunes the handshake.
type Config struct {
	// TrustTimeout bounds the wait after offering the public key
	// (default: DefaultTrustTimeout).
	TrustTimeout time.Duration

	// Logger receives auth state events. Nil disables logging.
	Logger log.Logger
}

// Result holds what the daemon's CNXN reply negotiated.
type Result struct {
	// Version is the daemon's protocol version.
	Version uint32

	// MaxPayload is the largest payload the daemon accepts.
	MaxPayload uint32

	// Banner is the daemon's identity string ("device::...").
	Banner string
}

// Connect runs the connect/authenticate state machine over conn. On
// error the socket is in an undefined state and must be closed by the
// caller.
func Connect(conn *transport.Conn, keyPair *keys.KeyPair, config Config) (*Result, error) {
	trustTimeout := config.TrustTimeout
	if trustTimeout == 0 {
		trustTimeout = DefaultTrustTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	// Step 1: announce ourselves.
	if err := conn.Send(wire.NewConnect()); err != nil {
		return nil, fmt.Errorf("send CNXN: %w", err)
	}

	msg, err := conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	switch msg.Command {
	case wire.CmdConnect:
		// Trust already established, or auth not required.
		logger.Log(log.NewStateEvent(conn.ID(), log.StateEntityAuth, "", "ACCEPTED", "no auth required"))
		return connectResult(msg), nil

	case wire.CmdAuth:
		// Fall through to the challenge exchange below.

	default:
		return nil, fmt.Errorf("%w: expected CNXN or AUTH, got %s", ErrProtocol, msg.Command)
	}

	// Step 2: sign the token challenge.
	if msg.Arg0 != wire.AuthToken {
		return nil, fmt.Errorf("%w: AUTH sub-type %d, want token", ErrProtocol, msg.Arg0)
	}
	signature, err := SignToken(keyPair.Private, msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	logger.Log(log.NewStateEvent(conn.ID(), log.StateEntityAuth, "", "SIGNATURE_SENT", ""))
	if err := conn.Send(wire.NewAuth(wire.AuthSignature, signature)); err != nil {
		return nil, fmt.Errorf("send AUTH signature: %w", err)
	}

	msg, err = conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	switch msg.Command {
	case wire.CmdConnect:
		// Key already trusted; the signature alone sufficed.
		logger.Log(log.NewStateEvent(conn.ID(), log.StateEntityAuth, "SIGNATURE_SENT", "ACCEPTED", ""))
		return connectResult(msg), nil

	case wire.CmdAuth:
		// Key unknown: offer the public key and wait for a human to
		// accept the prompt on the device.

	default:
		return nil, fmt.Errorf("%w: expected CNXN or AUTH, got %s", ErrProtocol, msg.Command)
	}

	logger.Log(log.NewStateEvent(conn.ID(), log.StateEntityAuth, "SIGNATURE_SENT", "PUBKEY_SENT", "key not recognized"))
	if err := conn.Send(wire.NewAuth(wire.AuthRSAPublicKey, keyPair.PublicBlob)); err != nil {
		return nil, fmt.Errorf("send AUTH public key: %w", err)
	}

	msg, err = conn.ReceiveTimeout(trustTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: no answer to public key: %v", ErrNotTrusted, err)
	}
	if msg.Command != wire.CmdConnect {
		return nil, fmt.Errorf("%w: daemon answered %s", ErrNotTrusted, msg.Command)
	}
	logger.Log(log.NewStateEvent(conn.ID(), log.StateEntityAuth, "PUBKEY_SENT", "ACCEPTED", "trust prompt confirmed"))
	return connectResult(msg), nil
}

func connectResult(msg *wire.Message) *Result {
	return &Result{
		Version:    msg.Arg0,
		MaxPayload: msg.Arg1,
		Banner:     string(bytes.TrimRight(msg.Payload, "\x00")),
	}
}
