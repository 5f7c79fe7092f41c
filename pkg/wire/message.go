package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header layout constants.
const (
	// HeaderSize is the fixed size of a message header in bytes.
	HeaderSize = 24

	// DefaultMaxDeclaredPayload is the ceiling applied to the payload
	// length a peer declares in a header. A length above this is
	// treated as a protocol violation rather than allocated.
	DefaultMaxDeclaredPayload = 1024 * 1024
)

// Header/codec errors.
var (
	// ErrShortHeader indicates fewer than HeaderSize bytes were available.
	ErrShortHeader = errors.New("short header")

	// ErrPayloadTooLarge indicates a declared payload length above the ceiling.
	ErrPayloadTooLarge = errors.New("declared payload too large")

	// ErrBadMagic indicates the magic field does not match the command.
	ErrBadMagic = errors.New("header magic does not match command")

	// ErrBadChecksum indicates the payload checksum does not match the header.
	ErrBadChecksum = errors.New("payload checksum mismatch")
)

// Message is one header-plus-payload unit on the wire.
type Message struct {
	Command Command
	Arg0    uint32
	Arg1    uint32
	Payload []byte
}

// Header holds the decoded fields of a 24-byte message header.
type Header struct {
	Command    Command
	Arg0       uint32
	Arg1       uint32
	DataLength uint32
	Checksum   uint32
	Magic      uint32
}

// Checksum computes the payload checksum: the sum of all payload bytes
// truncated to 32 bits.
func Checksum(payload []byte) uint32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}

// EncodeHeader encodes the 24-byte header for a message with the given
// command, arguments, and payload.
func EncodeHeader(cmd Command, arg0, arg1 uint32, payload []byte) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(cmd))
	binary.LittleEndian.PutUint32(buf[4:8], arg0)
	binary.LittleEndian.PutUint32(buf[8:12], arg1)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[16:20], Checksum(payload))
	binary.LittleEndian.PutUint32(buf[20:24], cmd.Magic())
	return buf
}

// DecodeHeader decodes a 24-byte header. It rejects headers declaring a
// payload length above maxPayload (pass 0 for the default ceiling) so a
// misbehaving peer cannot force an unbounded allocation.
func DecodeHeader(buf []byte, maxPayload uint32) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(buf))
	}
	if maxPayload == 0 {
		maxPayload = DefaultMaxDeclaredPayload
	}
	h := Header{
		Command:    Command(binary.LittleEndian.Uint32(buf[0:4])),
		Arg0:       binary.LittleEndian.Uint32(buf[4:8]),
		Arg1:       binary.LittleEndian.Uint32(buf[8:12]),
		DataLength: binary.LittleEndian.Uint32(buf[12:16]),
		Checksum:   binary.LittleEndian.Uint32(buf[16:20]),
		Magic:      binary.LittleEndian.Uint32(buf[20:24]),
	}
	if h.DataLength > maxPayload {
		return Header{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.DataLength, maxPayload)
	}
	return h, nil
}

// Verify checks the header's magic field against its command and the
// checksum against the payload. The client does not verify incoming
// frames on the hot path (the daemon is on loopback), but tools and
// tests use this to validate captured traffic.
func (h Header) Verify(payload []byte) error {
	if h.Magic != h.Command.Magic() {
		return fmt.Errorf("%w: command %s magic 0x%08x", ErrBadMagic, h.Command, h.Magic)
	}
	if h.Checksum != Checksum(payload) {
		return fmt.Errorf("%w: header 0x%08x payload 0x%08x", ErrBadChecksum, h.Checksum, Checksum(payload))
	}
	return nil
}

// Encode returns the full wire representation of the message: header
// followed by payload.
func (m *Message) Encode() []byte {
	header := EncodeHeader(m.Command, m.Arg0, m.Arg1, m.Payload)
	out := make([]byte, 0, HeaderSize+len(m.Payload))
	out = append(out, header[:]...)
	out = append(out, m.Payload...)
	return out
}

// String returns a compact human-readable form for logging.
func (m *Message) String() string {
	return fmt.Sprintf("%s(%d, %d, %d bytes)", m.Command, m.Arg0, m.Arg1, len(m.Payload))
}

// NewConnect builds the client's CNXN message carrying the protocol
// version, maximum payload size, and system identity.
func NewConnect() *Message {
	return &Message{
		Command: CmdConnect,
		Arg0:    ProtocolVersion,
		Arg1:    MaxPayloadSize,
		Payload: []byte(ConnectPayload),
	}
}

// NewAuth builds an AUTH message of the given sub-type.
func NewAuth(authType uint32, data []byte) *Message {
	return &Message{Command: CmdAuth, Arg0: authType, Payload: data}
}

// NewOpen builds an OPEN message for a shell destination.
func NewOpen(localID uint32, destination string) *Message {
	payload := make([]byte, 0, len(destination)+1)
	payload = append(payload, destination...)
	payload = append(payload, 0)
	return &Message{Command: CmdOpen, Arg0: localID, Payload: payload}
}

// NewOkay builds an OKAY acknowledgement for the given stream pair.
func NewOkay(localID, remoteID uint32) *Message {
	return &Message{Command: CmdOkay, Arg0: localID, Arg1: remoteID}
}

// NewClose builds a CLSE message for the given stream pair.
func NewClose(localID, remoteID uint32) *Message {
	return &Message{Command: CmdClose, Arg0: localID, Arg1: remoteID}
}
