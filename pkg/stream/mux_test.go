package stream

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wakecast/adb-go/pkg/transport"
	"github.com/wakecast/adb-go/pkg/wire"
)

// muxPeer scripts the daemon side of a mux exchange.
type muxPeer struct {
	conn net.Conn
	done chan struct{}

	mu       sync.Mutex
	received []*wire.Message
}

func newMuxPeer(t *testing.T, script func(p *muxPeer)) *Mux {
	t.Helper()
	clientEnd, daemonEnd := net.Pipe()
	done := make(chan struct{})
	p := &muxPeer{conn: daemonEnd, done: done}
	go func() {
		defer close(done)
		defer daemonEnd.Close()
		script(p)
	}()

	conn := transport.NewConn(clientEnd, transport.ConnConfig{IOTimeout: time.Second})
	t.Cleanup(func() {
		conn.Close()
		<-done
	})
	return New(conn, Config{DrainTimeout: 100 * time.Millisecond})
}

func (p *muxPeer) read() (*wire.Message, error) {
	msg, err := wire.ReadMessage(p.conn, 0)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.received = append(p.received, msg)
	p.mu.Unlock()
	return msg, nil
}

func (p *muxPeer) write(msg *wire.Message) {
	_ = wire.WriteMessage(p.conn, msg)
}

func (p *muxPeer) recorded() []*wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*wire.Message(nil), p.received...)
}

func TestRunCommandHappyPath(t *testing.T) {
	const (
		localID  = 2
		remoteID = 100
	)

	var peer *muxPeer
	mux := newMuxPeer(t, func(p *muxPeer) {
		peer = p
		open, err := p.read()
		if err != nil {
			return
		}
		if open.Command != wire.CmdOpen {
			return
		}
		p.write(wire.NewOkay(remoteID, localID))
		p.write(&wire.Message{Command: wire.CmdWrite, Arg0: remoteID, Arg1: localID, Payload: []byte("ok\n")})
		if _, err := p.read(); err != nil { // OKAY ack for the WRTE
			return
		}
		p.write(wire.NewClose(remoteID, localID))
		p.read() // CLSE echo
	})

	require.NoError(t, mux.RunCommand(localID, "input keyevent 23"))
	<-peer.done

	msgs := peer.recorded()
	require.GreaterOrEqual(t, len(msgs), 3)
	require.Equal(t, wire.CmdOpen, msgs[0].Command)
	require.Equal(t, []byte("shell:input keyevent 23\x00"), msgs[0].Payload)
	require.Equal(t, wire.CmdOkay, msgs[1].Command)
	require.Equal(t, uint32(localID), msgs[1].Arg0)
	require.Equal(t, uint32(remoteID), msgs[1].Arg1)
	require.Equal(t, wire.CmdClose, msgs[2].Command)
}

func TestRunCommandDrainsStrayFrames(t *testing.T) {
	// Stray WRTE and CLSE for the previous stream (local_id=1) arrive
	// while the client awaits OKAY for local_id=2. They must be
	// acknowledged and the correct OKAY still matched.
	const (
		oldLocal  = 1
		oldRemote = 99
		localID   = 2
		remoteID  = 100
	)

	var peer *muxPeer
	mux := newMuxPeer(t, func(p *muxPeer) {
		peer = p
		if _, err := p.read(); err != nil { // OPEN
			return
		}
		p.write(&wire.Message{Command: wire.CmdWrite, Arg0: oldRemote, Arg1: oldLocal, Payload: []byte("late output")})
		if _, err := p.read(); err != nil { // OKAY ack for stray WRTE
			return
		}
		p.write(wire.NewClose(oldRemote, oldLocal))
		if _, err := p.read(); err != nil { // CLSE ack for stray CLSE
			return
		}
		p.write(wire.NewOkay(remoteID, localID))
		p.write(wire.NewClose(remoteID, localID))
		p.read() // CLSE echo
	})

	require.NoError(t, mux.RunCommand(localID, "am start -n com.wakecast/.Alarm"))

	msgs := peer.recorded()
	require.GreaterOrEqual(t, len(msgs), 3)

	// Stray WRTE answered with OKAY carrying the stray's id pair.
	require.Equal(t, wire.CmdOkay, msgs[1].Command)
	require.Equal(t, uint32(oldLocal), msgs[1].Arg0)
	require.Equal(t, uint32(oldRemote), msgs[1].Arg1)

	// Stray CLSE echoed with the same id pair.
	require.Equal(t, wire.CmdClose, msgs[2].Command)
	require.Equal(t, uint32(oldLocal), msgs[2].Arg0)
	require.Equal(t, uint32(oldRemote), msgs[2].Arg1)
}

func TestRunCommandIdleDrainSendsClose(t *testing.T) {
	const (
		localID  = 3
		remoteID = 7
	)

	closed := make(chan *wire.Message, 1)
	mux := newMuxPeer(t, func(p *muxPeer) {
		if _, err := p.read(); err != nil { // OPEN
			return
		}
		p.write(wire.NewOkay(remoteID, localID))
		// Send nothing more: the client must close proactively.
		msg, err := p.read()
		if err == nil {
			closed <- msg
		}
	})

	require.NoError(t, mux.RunCommand(localID, "input keyevent 3"))

	select {
	case msg := <-closed:
		require.Equal(t, wire.CmdClose, msg.Command)
		require.Equal(t, uint32(localID), msg.Arg0)
		require.Equal(t, uint32(remoteID), msg.Arg1)
	case <-time.After(2 * time.Second):
		t.Fatal("client never sent the proactive CLSE")
	}
}

func TestRunCommandRejectedStream(t *testing.T) {
	const localID = 4

	mux := newMuxPeer(t, func(p *muxPeer) {
		if _, err := p.read(); err != nil {
			return
		}
		// Daemon refuses the destination.
		p.write(wire.NewClose(0, localID))
		p.read() // CLSE echo
	})

	err := mux.RunCommand(localID, "bogus")
	require.ErrorIs(t, err, ErrStreamClosed)
}

func TestRunCommandNoResponse(t *testing.T) {
	mux := newMuxPeer(t, func(p *muxPeer) {
		// Swallow the OPEN and go silent; the client's read times out.
		p.read()
	})

	err := mux.RunCommand(5, "input keyevent 26")
	require.ErrorIs(t, err, ErrNotAccepted)
}

func TestRunCommandBoundedStrayDrain(t *testing.T) {
	// A daemon spraying unrelated frames forever must not hang the
	// client: the attempt bound cuts it off.
	mux := newMuxPeer(t, func(p *muxPeer) {
		if _, err := p.read(); err != nil {
			return
		}
		for {
			p.write(&wire.Message{Command: wire.CmdWrite, Arg0: 50, Arg1: 1, Payload: []byte("x")})
			if _, err := p.read(); err != nil {
				return
			}
		}
	})

	err := mux.RunCommand(6, "input keyevent 23")
	require.ErrorIs(t, err, ErrNotAccepted)
}
