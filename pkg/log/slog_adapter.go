package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at Debug level.
// Useful for watching the client's traffic on a console during
// development.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	msg := "protocol event"
	switch {
	case event.Frame != nil:
		msg = "frame"
		attrs = append(attrs,
			slog.Int("size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		msg = "message"
		attrs = append(attrs,
			slog.String("command", event.Message.Command.String()),
			slog.Uint64("arg0", uint64(event.Message.Arg0)),
			slog.Uint64("arg1", uint64(event.Message.Arg1)),
			slog.Int("payload_size", event.Message.PayloadSize),
		)
	case event.StateChange != nil:
		msg = "state change"
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old", event.StateChange.OldState),
			slog.String("new", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		msg = "protocol error"
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Kind != "" {
			attrs = append(attrs, slog.String("kind", event.Error.Kind))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
