// Package adb is the public surface of the debug daemon client.
//
// A Client owns one persistent authenticated connection to the local
// daemon and issues shell commands and key events over it. All socket
// use is serialized behind one lock: the daemon speaks one
// command-response exchange per connection, so concurrent callers
// queue rather than open parallel connections.
//
// The public command methods return plain booleans. Every failure
// (daemon not listening, timeout, trust rejected, protocol violation)
// is recovered locally as false; callers treat false as "automation
// step skipped" and continue degraded. A failed command gets exactly
// one reconnect-and-retry, never a retry loop.
package adb
