package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/wakecast/adb-go/pkg/log"
	"github.com/wakecast/adb-go/pkg/transport"
	"github.com/wakecast/adb-go/pkg/wire"
)

// Mux limits.
const (
	// DefaultDrainTimeout is the short read bound while draining a
	// command's own output after it was accepted.
	DefaultDrainTimeout = 500 * time.Millisecond

	// MaxFrameAttempts bounds how many frames are examined while
	// waiting for the command's OKAY, and again while draining. A
	// daemon spraying unrelated frames beyond this is misbehaving.
	MaxFrameAttempts = 16
)

// Mux errors.
var (
	// ErrNotAccepted indicates the daemon never acknowledged the OPEN.
	ErrNotAccepted = errors.New("daemon did not accept the stream")

	// ErrStreamClosed indicates the daemon closed the stream instead
	// of accepting it (unknown destination, shell unavailable).
	ErrStreamClosed = errors.New("daemon closed the stream")
)

// Config tunes a Mux.
type Config struct {
	// DrainTimeout is the short read bound during output drain
	// (default: DefaultDrainTimeout).
	DrainTimeout time.Duration

	// Logger receives stream state events. Nil disables logging.
	Logger log.Logger
}

// Mux issues commands as streams over one connection. It is not safe
// for concurrent use; the client serializes all socket access.
type Mux struct {
	conn         *transport.Conn
	drainTimeout time.Duration
	logger       log.Logger
}

// New creates a Mux over conn.
func New(conn *transport.Conn, config Config) *Mux {
	drainTimeout := config.DrainTimeout
	if drainTimeout == 0 {
		drainTimeout = DefaultDrainTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Mux{conn: conn, drainTimeout: drainTimeout, logger: logger}
}

// RunCommand opens a shell stream for commandText under localID and
// sees it through acceptance and teardown. Success means the daemon
// accepted the command (its OKAY arrived); the command's output is
// acknowledged and discarded, not captured.
func (m *Mux) RunCommand(localID uint32, commandText string) error {
	if err := m.conn.Send(wire.NewOpen(localID, "shell:"+commandText)); err != nil {
		return fmt.Errorf("send OPEN: %w", err)
	}
	m.logger.Log(log.NewStateEvent(m.conn.ID(), log.StateEntityStream, "", "OPEN_SENT", commandText))

	remoteID, err := m.awaitAccept(localID)
	if err != nil {
		return err
	}
	m.logger.Log(log.NewStateEvent(m.conn.ID(), log.StateEntityStream, "OPEN_SENT", "ACCEPTED", ""))

	// The command is accepted; drain its output best-effort. Failures
	// past this point do not fail the command.
	m.drainOutput(localID, remoteID)
	return nil
}

// awaitAccept reads frames until the OKAY for localID arrives,
// acknowledging and discarding remnants of earlier streams on the way.
func (m *Mux) awaitAccept(localID uint32) (uint32, error) {
	for attempt := 0; attempt < MaxFrameAttempts; attempt++ {
		msg, err := m.conn.Receive()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotAccepted, err)
		}

		switch msg.Command {
		case wire.CmdOkay:
			if msg.Arg1 == localID {
				// arg0 carries the daemon's stream ID.
				return msg.Arg0, nil
			}
			// An OKAY for an earlier stream needs no reply.

		case wire.CmdWrite:
			if msg.Arg1 == localID {
				// Output before OKAY would be a daemon bug; treat it
				// as stray and keep waiting for the acknowledgement.
				_ = m.conn.Send(wire.NewOkay(msg.Arg1, msg.Arg0))
				continue
			}
			m.ackStray(msg)

		case wire.CmdClose:
			if msg.Arg1 == localID {
				_ = m.conn.Send(wire.NewClose(localID, msg.Arg0))
				return 0, fmt.Errorf("%w before acceptance", ErrStreamClosed)
			}
			m.ackStray(msg)

		default:
			return 0, fmt.Errorf("%w: unexpected %s while awaiting OKAY", ErrNotAccepted, msg.Command)
		}
	}
	return 0, fmt.Errorf("%w: no OKAY within %d frames", ErrNotAccepted, MaxFrameAttempts)
}

// drainOutput acknowledges the stream's output until the daemon closes
// it or goes quiet, then ensures the stream is torn down.
func (m *Mux) drainOutput(localID, remoteID uint32) {
	for attempt := 0; attempt < MaxFrameAttempts; attempt++ {
		msg, err := m.conn.ReceiveTimeout(m.drainTimeout)
		if err != nil {
			// Quiet link: end the stream proactively.
			_ = m.conn.Send(wire.NewClose(localID, remoteID))
			m.logger.Log(log.NewStateEvent(m.conn.ID(), log.StateEntityStream, "ACCEPTED", "CLOSED", "idle"))
			return
		}

		switch msg.Command {
		case wire.CmdWrite:
			if msg.Arg0 == remoteID {
				_ = m.conn.Send(wire.NewOkay(localID, remoteID))
			} else {
				m.ackStray(msg)
			}

		case wire.CmdClose:
			if msg.Arg0 == remoteID {
				_ = m.conn.Send(wire.NewClose(localID, remoteID))
				m.logger.Log(log.NewStateEvent(m.conn.ID(), log.StateEntityStream, "ACCEPTED", "CLOSED", "daemon close"))
				return
			}
			m.ackStray(msg)

		case wire.CmdOkay:
			// Acknowledgement of a write we never made, or an earlier
			// stream's ack arriving late. Nothing to answer.

		default:
			// Anything else here is noise; stop cleanly.
			_ = m.conn.Send(wire.NewClose(localID, remoteID))
			return
		}
	}
	_ = m.conn.Send(wire.NewClose(localID, remoteID))
}

// ackStray answers a frame that belongs to a different stream so the
// daemon's flow control does not stall, then forgets it.
func (m *Mux) ackStray(msg *wire.Message) {
	switch msg.Command {
	case wire.CmdWrite:
		_ = m.conn.Send(wire.NewOkay(msg.Arg1, msg.Arg0))
	case wire.CmdClose:
		_ = m.conn.Send(wire.NewClose(msg.Arg1, msg.Arg0))
	}
}
