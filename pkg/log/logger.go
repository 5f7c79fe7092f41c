package log

// Logger is the interface applications implement to receive protocol
// log events. Pass nil or NoopLogger to disable logging.
type Logger interface {
	// Log records a protocol event. Implementations must be
	// thread-safe and must not block for long; logging runs on the
	// connection's I/O path.
	Log(event Event)
}

// NoopLogger discards all events. Usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger fans events out to several loggers, e.g. console via
// SlogAdapter plus a capture file via FileLogger.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger over the given loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every configured logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
