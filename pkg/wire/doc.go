// Package wire implements the ADB wire format: a fixed 24-byte
// little-endian message header followed by an optional payload.
//
// Every message carries a command (a four-character ASCII tag packed
// little-endian into a uint32), two command-specific arguments, the
// payload length, a payload checksum, and a magic field that is the
// bitwise complement of the command. The checksum is the plain sum of
// the payload bytes truncated to 32 bits.
//
// The package provides header encoding/decoding, full-message reads
// and writes over an io.Reader/io.Writer, and constructors for the
// message types the client sends.
package wire
