package wire

// Command is a four-character ASCII tag packed little-endian into a uint32.
type Command uint32

// ADB command tags. The numeric values are the ASCII bytes of the tag
// interpreted as a little-endian uint32 ("CNXN" = 'C' | 'N'<<8 | ...).
const (
	// CmdConnect establishes the connection and negotiates the
	// protocol version and maximum payload size.
	CmdConnect Command = 0x4e584e43 // CNXN

	// CmdAuth carries authentication material. arg0 selects the
	// sub-type (token, signature, or public key).
	CmdAuth Command = 0x48545541 // AUTH

	// CmdOpen opens a stream. arg0 is the sender's local stream ID,
	// the payload names the destination ("shell:<command>\0").
	CmdOpen Command = 0x4e45504f // OPEN

	// CmdOkay acknowledges an OPEN or WRTE. arg0 is the sender's
	// stream ID, arg1 the recipient's.
	CmdOkay Command = 0x59414b4f // OKAY

	// CmdClose closes a stream. Must be acknowledged with a CLSE
	// carrying the same ID pair.
	CmdClose Command = 0x45534c43 // CLSE

	// CmdWrite carries stream payload data. Must be acknowledged
	// with OKAY before the peer sends more.
	CmdWrite Command = 0x45545257 // WRTE
)

// AUTH sub-types, carried in arg0 of an AUTH message.
const (
	// AuthToken is sent by the daemon: the payload is a 20-byte
	// challenge the client must sign.
	AuthToken uint32 = 1

	// AuthSignature is sent by the client: the payload is the RSA
	// signature over the DigestInfo-prefixed token.
	AuthSignature uint32 = 2

	// AuthRSAPublicKey is sent by the client when its signature was
	// not recognized: the payload is the daemon-format public key.
	AuthRSAPublicKey uint32 = 3
)

// Protocol constants negotiated in CNXN.
const (
	// ProtocolVersion is the wire protocol version the client speaks.
	ProtocolVersion uint32 = 0x01000000

	// MaxPayloadSize is the maximum payload the client advertises it
	// can receive in a single message.
	MaxPayloadSize uint32 = 256 * 1024

	// TokenSize is the length of an AUTH token challenge.
	TokenSize = 20
)

// ConnectPayload is the system identity sent in the client's CNXN.
const ConnectPayload = "host::\x00"

// Magic returns the header magic field for the command: its bitwise
// complement.
func (c Command) Magic() uint32 {
	return uint32(c) ^ 0xffffffff
}

// IsValid reports whether c is a known command tag.
func (c Command) IsValid() bool {
	switch c {
	case CmdConnect, CmdAuth, CmdOpen, CmdOkay, CmdClose, CmdWrite:
		return true
	default:
		return false
	}
}

// String returns the four-character tag, or a hex form for unknown commands.
func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CNXN"
	case CmdAuth:
		return "AUTH"
	case CmdOpen:
		return "OPEN"
	case CmdOkay:
		return "OKAY"
	case CmdClose:
		return "CLSE"
	case CmdWrite:
		return "WRTE"
	default:
		b := [4]byte{byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24)}
		const hexdigits = "0123456789abcdef"
		out := make([]byte, 0, 10)
		out = append(out, '0', 'x')
		for i := 3; i >= 0; i-- {
			out = append(out, hexdigits[b[i]>>4], hexdigits[b[i]&0xf])
		}
		return string(out)
	}
}
