// Command adb-log is a tool for viewing and analyzing protocol capture
// files.
//
// Capture files are written by the protocol logging infrastructure when
// running adb-shell with the -protocol-log flag, or by an application
// that wires a FileLogger into its client.
//
// Usage:
//
//	adb-log <command> [flags] <file.alog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSON lines
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	adb-log view session.alog
//
//	# View only wire-layer events going to the daemon
//	adb-log view -layer wire -direction out session.alog
//
//	# Export to JSONL
//	adb-log export session.alog
//
//	# Show statistics
//	adb-log stats session.alog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wakecast/adb-go/cmd/adb-log/commands"
)

const usage = `adb-log - Protocol Capture Analyzer

Usage:
  adb-log <command> [flags] <file.alog>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSON lines
  stats    Show statistics about the capture file

Use "adb-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `adb-log view - View capture file in human-readable format

Usage:
  adb-log view [flags] <file.alog>

Flags:
`)
		fs.PrintDefaults()
	}

	layer := fs.String("layer", "", "Filter by layer (transport, wire, client)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	connID := fs.String("conn-id", "", "Filter by connection ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	path := fs.Arg(0)

	var filter commands.ViewFilter
	filter.ConnectionID = *connID

	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Layer = &l
	}

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Direction = &d
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `adb-log export - Export capture file to JSON lines

Usage:
  adb-log export [flags] <file.alog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunExport(fs.Arg(0), *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `adb-log stats - Show statistics about the capture file

Usage:
  adb-log stats <file.alog>
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunStats(fs.Arg(0), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
