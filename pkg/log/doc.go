// Package log provides protocol event logging for the ADB client.
//
// Events are captured at three layers: raw frames at the transport
// layer, decoded messages at the wire layer, and lifecycle/state
// changes at the client layer. Applications receive events through the
// Logger interface; the package ships a CBOR file logger for captures
// that can be replayed or inspected with the adb-log tool, an slog
// adapter for console debugging, and a fan-out logger combining both.
//
// Logging never disrupts the client: implementations swallow their own
// errors, and a nil or NoopLogger disables capture entirely.
package log
