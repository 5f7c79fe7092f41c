package log

import (
	"time"

	"github.com/wakecast/adb-go/pkg/wire"
)

// MaxEventPayload is the maximum message payload included in an event.
// Larger payloads are truncated; shell output can be arbitrarily long
// and captures should stay bounded.
const MaxEventPayload = 4096

// Event is one protocol log event. CBOR encoding uses integer keys for
// compactness in capture files.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the daemon connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// RemoteAddr is the daemon address (host:port).
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (exactly one is set).
	Frame       *FrameEvent       `cbor:"6,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"7,keyasint,omitempty"` // Wire layer (decoded header)
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"` // Client layer
	Error       *ErrorEvent       `cbor:"9,keyasint,omitempty"` // Any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a message from the daemon.
	DirectionIn Direction = 0
	// DirectionOut indicates a message to the daemon.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the socket layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message layer (decoded headers).
	LayerWire Layer = 1
	// LayerClient is the client lifecycle layer.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw bytes at the transport layer.
type FrameEvent struct {
	// Size is the full frame size in bytes (header plus payload).
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates whether Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded message header at the wire layer.
type MessageEvent struct {
	// Command is the message command tag.
	Command wire.Command `cbor:"1,keyasint"`

	// Arg0 and Arg1 are the command arguments (stream IDs, auth
	// sub-type, or version/maxdata depending on the command).
	Arg0 uint32 `cbor:"2,keyasint"`
	Arg1 uint32 `cbor:"3,keyasint"`

	// PayloadSize is the full payload length.
	PayloadSize int `cbor:"4,keyasint"`

	// Payload is the payload data (may be truncated).
	Payload []byte `cbor:"5,keyasint,omitempty"`

	// Truncated indicates whether Payload was truncated.
	Truncated bool `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures connection, auth, and stream lifecycle.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityAuth indicates a handshake/auth state change.
	StateEntityAuth StateEntity = 1
	// StateEntityStream indicates a command stream state change.
	StateEntityStream StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityAuth:
		return "AUTH"
	case StateEntityStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// ErrorEvent captures an error at any layer.
type ErrorEvent struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Kind classifies the error (connect_refused, timeout,
	// not_trusted, protocol_error, ...), when known.
	Kind string `cbor:"2,keyasint,omitempty"`
}

// NewMessageEvent builds a wire-layer event for msg, truncating the
// payload to MaxEventPayload.
func NewMessageEvent(connID string, dir Direction, msg *wire.Message) Event {
	me := &MessageEvent{
		Command:     msg.Command,
		Arg0:        msg.Arg0,
		Arg1:        msg.Arg1,
		PayloadSize: len(msg.Payload),
	}
	if len(msg.Payload) > MaxEventPayload {
		me.Payload = msg.Payload[:MaxEventPayload]
		me.Truncated = true
	} else {
		me.Payload = msg.Payload
	}
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerWire,
		Message:      me,
	}
}

// NewStateEvent builds a client-layer state change event.
func NewStateEvent(connID string, entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        LayerClient,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(connID string, layer Layer, kind string, err error) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        layer,
		Error: &ErrorEvent{
			Message: err.Error(),
			Kind:    kind,
		},
	}
}
