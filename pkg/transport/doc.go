// Package transport owns the TCP socket to the debug daemon.
//
// A Dialer establishes the connection (the daemon listens on loopback
// after network debugging is enabled out-of-band) and returns a Conn
// that sends and receives wire messages under per-operation deadlines.
// There is no cancellation primitive beyond the deadline: a blocked
// read simply expires and is treated as failure by the caller.
//
// The Conn is exclusively owned by the client; no other component
// reads or writes the socket directly.
package transport
