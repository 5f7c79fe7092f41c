// Package fakedaemon provides a scripted in-process debug daemon for
// tests. It listens on a loopback TCP port, speaks the wire protocol,
// and records everything clients send so tests can assert on exact
// frame sequences.
package fakedaemon

import (
	"crypto/rand"
	"net"
	"strings"
	"sync"

	"github.com/wakecast/adb-go/pkg/wire"
)

// Behavior scripts how the daemon treats clients.
type Behavior struct {
	// RequireAuth challenges each connection with an AUTH token. Any
	// signature is accepted unless TrustAfterPubkey is also set.
	RequireAuth bool

	// TrustAfterPubkey rejects the signature and accepts the client
	// only after it offers its public key (first-contact flow).
	TrustAfterPubkey bool

	// Banner is the identity payload of the daemon's CNXN reply.
	Banner string

	// KillOnOpen drops the connection on the first OPEN for this many
	// initial sessions (-1: every session). Simulates a link dying
	// mid-command for retry-policy tests.
	KillOnOpen int

	// Output, when non-empty, is written to each accepted stream
	// before it is closed.
	Output string
}

// Daemon is a scripted daemon listening on a loopback port.
type Daemon struct {
	listener net.Listener
	behavior Behavior

	mu       sync.Mutex
	sessions int
	opens    []string
	tokens   int

	wg     sync.WaitGroup
	closed chan struct{}
}

// Start launches a daemon on an ephemeral loopback port.
func Start(behavior Behavior) (*Daemon, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if behavior.Banner == "" {
		behavior.Banner = "device::fake"
	}
	d := &Daemon{
		listener: l,
		behavior: behavior,
		closed:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.acceptLoop()
	return d, nil
}

// Addr returns the daemon's listen address.
func (d *Daemon) Addr() string {
	return d.listener.Addr().String()
}

// Close stops the daemon and waits for its sessions to finish.
func (d *Daemon) Close() {
	close(d.closed)
	d.listener.Close()
	d.wg.Wait()
}

// Sessions returns how many connections were accepted.
func (d *Daemon) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// Opens returns the OPEN destinations observed, in order, NUL
// terminators stripped.
func (d *Daemon) Opens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opens...)
}

// AuthChallenges returns how many AUTH tokens were issued.
func (d *Daemon) AuthChallenges() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.sessions++
		session := d.sessions
		d.mu.Unlock()

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer conn.Close()
			d.serve(conn, session)
		}()
	}
}

func (d *Daemon) serve(conn net.Conn, session int) {
	// Connect/authenticate.
	msg, err := wire.ReadMessage(conn, 0)
	if err != nil || msg.Command != wire.CmdConnect {
		return
	}

	if d.behavior.RequireAuth {
		if err := d.challenge(conn); err != nil {
			return
		}
		msg, err = wire.ReadMessage(conn, 0)
		if err != nil || msg.Command != wire.CmdAuth || msg.Arg0 != wire.AuthSignature {
			return
		}
		if d.behavior.TrustAfterPubkey {
			if err := d.challenge(conn); err != nil {
				return
			}
			msg, err = wire.ReadMessage(conn, 0)
			if err != nil || msg.Command != wire.CmdAuth || msg.Arg0 != wire.AuthRSAPublicKey {
				return
			}
		}
	}

	banner := &wire.Message{
		Command: wire.CmdConnect,
		Arg0:    wire.ProtocolVersion,
		Arg1:    wire.MaxPayloadSize,
		Payload: append([]byte(d.behavior.Banner), 0),
	}
	if err := wire.WriteMessage(conn, banner); err != nil {
		return
	}

	// Command streams.
	var nextRemoteID uint32 = 100
	for {
		msg, err := wire.ReadMessage(conn, 0)
		if err != nil {
			return
		}
		switch msg.Command {
		case wire.CmdOpen:
			dest := strings.TrimRight(string(msg.Payload), "\x00")
			d.mu.Lock()
			d.opens = append(d.opens, dest)
			d.mu.Unlock()

			if d.behavior.KillOnOpen == -1 || session <= d.behavior.KillOnOpen {
				return
			}

			remoteID := nextRemoteID
			nextRemoteID++
			localID := msg.Arg0
			if err := wire.WriteMessage(conn, wire.NewOkay(remoteID, localID)); err != nil {
				return
			}
			if d.behavior.Output != "" {
				write := &wire.Message{
					Command: wire.CmdWrite,
					Arg0:    remoteID,
					Arg1:    localID,
					Payload: []byte(d.behavior.Output),
				}
				if err := wire.WriteMessage(conn, write); err != nil {
					return
				}
				// Client acknowledges the output before we close.
				if ack, err := wire.ReadMessage(conn, 0); err != nil || ack.Command != wire.CmdOkay {
					return
				}
			}
			if err := wire.WriteMessage(conn, wire.NewClose(remoteID, localID)); err != nil {
				return
			}

		case wire.CmdClose, wire.CmdOkay:
			// Stream teardown echoes; nothing to answer.

		default:
			return
		}
	}
}

func (d *Daemon) challenge(conn net.Conn) error {
	token := make([]byte, wire.TokenSize)
	rand.Read(token)
	d.mu.Lock()
	d.tokens++
	d.mu.Unlock()
	return wire.WriteMessage(conn, wire.NewAuth(wire.AuthToken, token))
}
