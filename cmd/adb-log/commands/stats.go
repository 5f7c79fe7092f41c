package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wakecast/adb-go/pkg/log"
	"github.com/wakecast/adb-go/pkg/wire"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByDirection map[log.Direction]int
	EventsByCommand   map[wire.Command]int
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByDirection: make(map[log.Direction]int),
		EventsByCommand:   make(map[wire.Command]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByDirection[event.Direction]++
	if event.Message != nil {
		s.EventsByCommand[event.Message.Command]++
	}
	if event.Error != nil {
		s.Errors++
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.RemoteAddr != "" && conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	if stats.TotalEvents == 0 {
		return
	}

	fmt.Fprintf(w, "Time range:   %s - %s (%s)\n",
		stats.TimeRange.Start.UTC().Format(time.RFC3339),
		stats.TimeRange.End.UTC().Format(time.RFC3339),
		stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
	fmt.Fprintf(w, "Errors:       %d\n", stats.Errors)

	fmt.Fprintln(w, "\nEvents by layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerClient} {
		if n := stats.EventsByLayer[layer]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", layer, n)
		}
	}

	fmt.Fprintln(w, "\nEvents by direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if n := stats.EventsByDirection[dir]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", dir, n)
		}
	}

	if len(stats.EventsByCommand) > 0 {
		fmt.Fprintln(w, "\nMessages by command:")
		commands := make([]wire.Command, 0, len(stats.EventsByCommand))
		for cmd := range stats.EventsByCommand {
			commands = append(commands, cmd)
		}
		sort.Slice(commands, func(i, j int) bool {
			return stats.EventsByCommand[commands[i]] > stats.EventsByCommand[commands[j]]
		})
		for _, cmd := range commands {
			fmt.Fprintf(w, "  %-10s %d\n", cmd, stats.EventsByCommand[cmd])
		}
	}

	fmt.Fprintf(w, "\nConnections: %d\n", len(stats.Connections))
	ids := make([]string, 0, len(stats.Connections))
	for id := range stats.Connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		conn := stats.Connections[id]
		fmt.Fprintf(w, "  %s  events=%d  duration=%s",
			shortenConnID(id), conn.Events,
			conn.LastSeen.Sub(conn.FirstSeen).Round(time.Millisecond))
		if conn.RemoteAddr != "" {
			fmt.Fprintf(w, "  addr=%s", conn.RemoteAddr)
		}
		fmt.Fprintln(w)
	}
}
