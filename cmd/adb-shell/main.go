// Command adb-shell is an interactive console for a device's debug
// daemon, built on the same client the alarm application uses.
//
// Usage:
//
//	adb-shell [flags]
//
// Flags:
//
//	-config string        Path to YAML config file
//	-address string       Daemon address (overrides config)
//	-storage-dir string   Key storage directory (overrides config)
//	-protocol-log string  File path for CBOR protocol capture
//	-wait duration        Wait up to this long for the device to come up
//	-verbose              Mirror protocol events to the console
//
// Examples:
//
//	# Connect to the default loopback daemon
//	adb-shell
//
//	# Wake the TV and capture the exchange
//	adb-shell -protocol-log session.alog
//
//	# Wait for a rebooting device, then poke it
//	adb-shell -wait 2m -address 192.168.1.40:5555
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/wakecast/adb-go/pkg/adb"
	"github.com/wakecast/adb-go/pkg/config"
	"github.com/wakecast/adb-go/pkg/log"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	address     = flag.String("address", "", "Daemon address (overrides config)")
	storageDir  = flag.String("storage-dir", "", "Key storage directory (overrides config)")
	protocolLog = flag.String("protocol-log", "", "File path for CBOR protocol capture")
	wait        = flag.Duration("wait", 0, "Wait up to this long for the device to come up")
	verbose     = flag.Bool("verbose", false, "Mirror protocol events to the console")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}
	if *protocolLog != "" {
		cfg.ProtocolLog = *protocolLog
	}

	logger, cleanup, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "protocol log: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	client := adb.New(adb.Config{
		Address:        cfg.Address,
		StorageDir:     cfg.StorageDir,
		KeyLabel:       cfg.KeyLabel,
		ConnectTimeout: cfg.ConnectTimeout,
		IOTimeout:      cfg.IOTimeout,
		TrustTimeout:   cfg.TrustTimeout,
		DrainTimeout:   cfg.DrainTimeout,
		Logger:         logger,
	})
	defer client.Close()

	if err := client.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}

	if *wait > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), *wait)
		err := client.WaitForDevice(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "wait: %v\n", err)
			os.Exit(1)
		}
	}

	if err := runConsole(client, cfg.Address); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func buildLogger(cfg config.Config) (log.Logger, func(), error) {
	var loggers []log.Logger
	cleanup := func() {}

	if *verbose {
		slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		loggers = append(loggers, log.NewSlogAdapter(slogger))
	}
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		cleanup = func() { fl.Close() }
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, cleanup, nil
	case 1:
		return loggers[0], cleanup, nil
	default:
		return log.NewMultiLogger(loggers...), cleanup, nil
	}
}

func runConsole(client *adb.Client, address string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "adb> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "Connected target: %s (type 'help' for commands)\n", address)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			printHelp(rl)

		case "shell", "sh":
			if len(args) == 0 {
				fmt.Fprintln(rl.Stdout(), "usage: shell <command>")
				continue
			}
			report(rl, client.SendShellCommand(strings.Join(args, " ")))

		case "key", "k":
			if len(args) != 1 {
				fmt.Fprintln(rl.Stdout(), "usage: key <code>")
				continue
			}
			code, err := strconv.Atoi(args[0])
			if err != nil {
				fmt.Fprintf(rl.Stdout(), "bad key code: %s\n", args[0])
				continue
			}
			report(rl, client.SendKeyEvent(code))

		case "wake":
			// KEYCODE_WAKEUP
			report(rl, client.SendKeyEvent(224))

		case "sleep":
			// KEYCODE_SLEEP
			report(rl, client.SendKeyEvent(223))

		case "connect":
			if err := client.Connect(); err != nil {
				fmt.Fprintf(rl.Stdout(), "connect failed: %v\n", err)
			} else {
				fmt.Fprintln(rl.Stdout(), "connected")
			}

		case "status":
			fmt.Fprintf(rl.Stdout(), "connection: %s\n", client.State())

		case "quit", "exit", "q":
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil

		default:
			fmt.Fprintf(rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func report(rl *readline.Instance, ok bool) {
	if ok {
		fmt.Fprintln(rl.Stdout(), "ok")
	} else {
		fmt.Fprintln(rl.Stdout(), "failed")
	}
}

func printHelp(rl *readline.Instance) {
	fmt.Fprint(rl.Stdout(), `
Commands:
  shell <command>  - Run a shell command on the device
  key <code>       - Inject a key event
  wake             - Shorthand for key 224 (KEYCODE_WAKEUP)
  sleep            - Shorthand for key 223 (KEYCODE_SLEEP)
  connect          - Establish the connection now (trust prompt time)
  status           - Show connection state
  help             - Show this help
  exit             - Leave the console
`)
}
