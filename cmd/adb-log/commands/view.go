// Package commands implements the adb-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/wakecast/adb-go/pkg/log"
	"github.com/wakecast/adb-go/pkg/wire"
)

// ViewFilter specifies criteria for filtering events in the view
// command.
type ViewFilter struct {
	ConnectionID string
	Layer        *log.Layer
	Direction    *log.Direction
}

// ParseLayerFlag converts a -layer flag value to a log.Layer.
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "client":
		return log.LayerClient, nil
	default:
		return 0, fmt.Errorf("unknown layer %q (transport, wire, client)", s)
	}
}

// ParseDirectionFlag converts a -direction flag value to a
// log.Direction.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out)", s)
	}
}

// RunView reads the capture file and writes matching events to w in
// human-readable format.
func RunView(path string, filter ViewFilter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, log.Filter{
		ConnectionID: filter.ConnectionID,
		Layer:        filter.Layer,
		Direction:    filter.Direction,
	})
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Message != nil:
		typeLabel = event.Message.Command.String()
	case event.StateChange != nil:
		typeLabel = event.StateChange.Entity.String()
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, connID, event.Direction, event.Layer, typeLabel)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	switch msg.Command {
	case wire.CmdConnect:
		fmt.Fprintf(w, "  Version: 0x%08x  MaxPayload: %d\n", msg.Arg0, msg.Arg1)
	case wire.CmdAuth:
		fmt.Fprintf(w, "  AuthType: %s\n", authTypeName(msg.Arg0))
	default:
		fmt.Fprintf(w, "  Arg0: %d  Arg1: %d\n", msg.Arg0, msg.Arg1)
	}

	if msg.PayloadSize > 0 {
		fmt.Fprintf(w, "  Payload: %d bytes", msg.PayloadSize)
		if len(msg.Payload) > 0 {
			if printable(msg.Payload) {
				fmt.Fprintf(w, " %q", msg.Payload)
			} else {
				fmt.Fprintf(w, " %s", hex.EncodeToString(msg.Payload))
			}
		}
		if msg.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEvent) {
	fmt.Fprintf(w, "  %s\n", e.Message)
	if e.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", e.Kind)
	}
}

func authTypeName(arg0 uint32) string {
	switch arg0 {
	case wire.AuthToken:
		return "TOKEN"
	case wire.AuthSignature:
		return "SIGNATURE"
	case wire.AuthRSAPublicKey:
		return "RSAPUBLICKEY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", arg0)
	}
}

// printable reports whether data is mostly readable text worth quoting
// instead of hex-dumping.
func printable(data []byte) bool {
	for _, b := range data {
		if b == 0 || b == '\n' || b == '\t' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
