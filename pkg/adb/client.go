package adb

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wakecast/adb-go/pkg/connection"
	"github.com/wakecast/adb-go/pkg/handshake"
	"github.com/wakecast/adb-go/pkg/keys"
	"github.com/wakecast/adb-go/pkg/log"
	"github.com/wakecast/adb-go/pkg/stream"
	"github.com/wakecast/adb-go/pkg/transport"
)

// Config configures a Client.
type Config struct {
	// Address is the daemon address (default: transport.DefaultAddress).
	Address string

	// StorageDir is the application-private directory holding the key
	// pair. Required.
	StorageDir string

	// KeyLabel identifies this installation in the daemon's trust
	// prompt (default: keys.DefaultLabel).
	KeyLabel string

	// ConnectTimeout bounds the TCP dial (default: 5s).
	ConnectTimeout time.Duration

	// IOTimeout bounds ordinary reads and writes (default: 3s).
	IOTimeout time.Duration

	// TrustTimeout bounds the wait after offering the public key
	// (default: handshake.DefaultTrustTimeout).
	TrustTimeout time.Duration

	// DrainTimeout bounds each read while draining command output
	// (default: stream.DefaultDrainTimeout).
	DrainTimeout time.Duration

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger

	// DisablePreconnect skips the best-effort background connection
	// attempt during Init.
	DisablePreconnect bool
}

// conn bundles one live connection with its negotiated parameters and
// stream ID allocator. Local IDs increase monotonically and are never
// reused while the connection is alive.
type conn struct {
	transport   *transport.Conn
	mux         *stream.Mux
	version     uint32
	maxPayload  uint32
	nextLocalID uint32
}

// Client is an authenticated persistent-connection client to the local
// debug daemon. Construct with New, then call Init before issuing
// commands. Safe for concurrent use; commands serialize behind one
// internal lock.
type Client struct {
	config Config
	logger log.Logger
	dialer *transport.Dialer

	// mu serializes all socket use: connect-if-needed plus the whole
	// command exchange.
	mu     sync.Mutex
	keys   *keys.KeyPair
	conn   *conn
	state  connection.State
	closed bool
}

// New creates a Client. No I/O happens until Init.
func New(config Config) *Client {
	if config.Address == "" {
		config.Address = transport.DefaultAddress
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Client{
		config: config,
		logger: logger,
		dialer: &transport.Dialer{
			ConnectTimeout: config.ConnectTimeout,
			IOTimeout:      config.IOTimeout,
			Logger:         logger,
		},
		state: connection.StateDisconnected,
	}
}

// Init loads or generates the key pair and, unless disabled, starts a
// best-effort background connection attempt. A failed background
// attempt is not an error; the first command simply connects again.
func (c *Client) Init() error {
	keyPair, err := keys.LoadOrGenerate(c.config.StorageDir, c.config.KeyLabel)
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}

	c.mu.Lock()
	c.keys = keyPair
	c.mu.Unlock()

	if !c.config.DisablePreconnect {
		go func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			// A foreground command may have connected (or the client
			// closed) while this goroutine waited on the lock.
			if c.conn == nil && !c.closed {
				_ = c.connectLocked()
			}
		}()
	}
	return nil
}

// SendKeyEvent injects a key event on the device. Returns false if the
// command could not be delivered.
func (c *Client) SendKeyEvent(code int) bool {
	return c.SendShellCommand("input keyevent " + strconv.Itoa(code))
}

// SendShellCommand runs a shell command on the device. Returns true
// once the daemon accepted the command; its output is not captured.
//
// On failure the stale connection is torn down, one fresh
// connect-and-retry is attempted, and a second failure returns false.
func (c *Client) SendShellCommand(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logFailure(ErrClosed)
		return false
	}
	if c.keys == nil {
		c.logFailure(ErrNotInitialized)
		return false
	}

	// First attempt, over the existing connection when one is live.
	// A connection that appears open but is dead fails here and is
	// torn down like any other failure.
	if err := c.attemptLocked(text); err == nil {
		return true
	} else {
		c.closeConnLocked(classify(err))
	}

	// Rebuild the connection and retry exactly once more.
	if err := c.attemptLocked(text); err != nil {
		c.logFailure(err)
		c.closeConnLocked(classify(err))
		return false
	}
	return true
}

// attemptLocked connects if needed and issues the command once.
// Caller holds mu.
func (c *Client) attemptLocked(text string) error {
	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return err
		}
	}
	return c.runLocked(text)
}

// Connect establishes the persistent connection eagerly. Commands do
// this on demand; Connect exists for callers that want the trust
// prompt (and its long timeout) out of the way up front.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.keys == nil {
		return ErrNotInitialized
	}
	if c.conn != nil {
		return nil
	}
	return c.connectLocked()
}

// WaitForDevice polls until the daemon accepts a connection or ctx
// expires. Delays between attempts follow an exponential backoff. Used
// by tooling against a device that is still booting; command issuance
// never polls.
func (c *Client) WaitForDevice(ctx context.Context) error {
	backoff := connection.NewBackoff()
	for {
		err := c.Connect()
		if err == nil {
			return nil
		}
		if err == ErrClosed || err == ErrNotInitialized {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for device: %w", ctx.Err())
		case <-time.After(backoff.Next()):
		}
	}
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears down the connection and rejects further commands.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.closeConnLocked("client closed")
	c.setStateLocked(connection.StateClosed, "")
	return nil
}

// runLocked issues one command over the live connection. Caller holds mu.
func (c *Client) runLocked(text string) error {
	localID := c.conn.nextLocalID
	c.conn.nextLocalID++
	return c.conn.mux.RunCommand(localID, text)
}

// connectLocked dials and authenticates a fresh connection. Caller
// holds mu.
func (c *Client) connectLocked() error {
	c.setStateLocked(connection.StateConnecting, "")

	tc, err := c.dialer.Dial(context.Background(), c.config.Address)
	if err != nil {
		c.setStateLocked(connection.StateDisconnected, classify(err))
		return err
	}

	result, err := handshake.Connect(tc, c.keys, handshake.Config{
		TrustTimeout: c.config.TrustTimeout,
		Logger:       c.logger,
	})
	if err != nil {
		tc.Close()
		c.setStateLocked(connection.StateDisconnected, classify(err))
		return err
	}

	c.conn = &conn{
		transport: tc,
		mux: stream.New(tc, stream.Config{
			DrainTimeout: c.config.DrainTimeout,
			Logger:       c.logger,
		}),
		version:     result.Version,
		maxPayload:  result.MaxPayload,
		nextLocalID: 1,
	}
	c.setStateLocked(connection.StateConnected, result.Banner)
	return nil
}

// closeConnLocked destroys and nulls the connection. Caller holds mu.
func (c *Client) closeConnLocked(reason string) {
	if c.conn == nil {
		return
	}
	c.conn.transport.Close()
	c.conn = nil
	if !c.closed {
		c.setStateLocked(connection.StateDisconnected, reason)
	}
}

func (c *Client) setStateLocked(state connection.State, reason string) {
	if state == c.state {
		return
	}
	old := c.state
	c.state = state
	connID := ""
	if c.conn != nil {
		connID = c.conn.transport.ID()
	}
	c.logger.Log(log.NewStateEvent(connID, log.StateEntityConnection, old.String(), state.String(), reason))
}

func (c *Client) logFailure(err error) {
	c.logger.Log(log.NewErrorEvent("", log.LayerClient, classify(err), err))
}
