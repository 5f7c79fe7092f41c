package wire

import (
	"errors"
	"fmt"
	"io"
)

// ReadMessage reads one full message from r: exactly HeaderSize header
// bytes, then exactly the declared payload length. Short reads are
// retried via io.ReadFull; a stream that ends mid-message yields an
// error. maxPayload bounds the declared payload length (0 selects
// DefaultMaxDeclaredPayload).
func ReadMessage(r io.Reader, maxPayload uint32) (*Message, error) {
	var headerBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended mid-header", ErrShortHeader)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	header, err := DecodeHeader(headerBuf[:], maxPayload)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Command: header.Command,
		Arg0:    header.Arg0,
		Arg1:    header.Arg1,
	}
	if header.DataLength > 0 {
		msg.Payload = make([]byte, header.DataLength)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return msg, nil
}

// WriteMessage writes the full wire representation of msg to w.
func WriteMessage(w io.Writer, msg *Message) error {
	if _, err := w.Write(msg.Encode()); err != nil {
		return fmt.Errorf("write %s: %w", msg.Command, err)
	}
	return nil
}
