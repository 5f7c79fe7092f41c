package adbgo_test

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/wakecast/adb-go/internal/testharness/fakedaemon"
	"github.com/wakecast/adb-go/pkg/adb"
	"github.com/wakecast/adb-go/pkg/keys"
	"github.com/wakecast/adb-go/pkg/log"
	"github.com/wakecast/adb-go/pkg/wire"
)

// TestE2E_FirstContact walks the full first-install path: no key on
// disk, daemon challenges, signature is unknown, public key is offered,
// user accepts, command runs.
func TestE2E_FirstContact(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	daemon, err := fakedaemon.Start(fakedaemon.Behavior{
		RequireAuth:      true,
		TrustAfterPubkey: true,
	})
	if err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer daemon.Close()

	storageDir := t.TempDir()
	client := adb.New(adb.Config{
		Address:           daemon.Addr(),
		StorageDir:        storageDir,
		DisablePreconnect: true,
	})
	defer client.Close()

	if err := client.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !client.SendKeyEvent(23) {
		t.Fatal("SendKeyEvent failed")
	}

	// Two challenges: one answered with a signature the daemon does not
	// know, one after the public key was accepted.
	if got := daemon.AuthChallenges(); got != 2 {
		t.Errorf("AuthChallenges mismatch: expected 2, got %d", got)
	}
	opens := daemon.Opens()
	if len(opens) != 1 || opens[0] != "shell:input keyevent 23" {
		t.Errorf("unexpected opens: %q", opens)
	}

	// The key pair must now be on disk and reloadable.
	keyPair, err := keys.LoadOrGenerate(storageDir, "")
	if err != nil {
		t.Fatalf("LoadOrGenerate after first contact: %v", err)
	}
	if len(keyPair.PublicBlob) == 0 {
		t.Error("public key blob not persisted")
	}
}

// TestE2E_ReturningClient verifies that a second client using the same
// storage directory authenticates with its signature alone and that the
// daemon is not asked to trust a new key.
func TestE2E_ReturningClient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	storageDir := t.TempDir()
	if _, err := keys.LoadOrGenerate(storageDir, ""); err != nil {
		t.Fatalf("Failed to pre-generate keys: %v", err)
	}

	daemon, err := fakedaemon.Start(fakedaemon.Behavior{
		RequireAuth:      true,
		TrustAfterPubkey: false,
	})
	if err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer daemon.Close()

	client := adb.New(adb.Config{
		Address:           daemon.Addr(),
		StorageDir:        storageDir,
		DisablePreconnect: true,
	})
	defer client.Close()

	if err := client.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !client.SendShellCommand("input keyevent 26") {
		t.Fatal("SendShellCommand failed")
	}

	if got := daemon.AuthChallenges(); got != 1 {
		t.Errorf("AuthChallenges mismatch: expected 1, got %d", got)
	}
}

// TestE2E_DaemonRestart verifies that a command issued after the daemon
// dropped the connection reconnects and succeeds transparently.
func TestE2E_DaemonRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	daemon, err := fakedaemon.Start(fakedaemon.Behavior{KillOnOpen: 1})
	if err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer daemon.Close()

	client := adb.New(adb.Config{
		Address:           daemon.Addr(),
		StorageDir:        t.TempDir(),
		DisablePreconnect: true,
	})
	defer client.Close()

	if err := client.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// First session dies on OPEN; the retry establishes a second one.
	if !client.SendKeyEvent(224) {
		t.Fatal("SendKeyEvent did not survive daemon restart")
	}
	if got := daemon.Sessions(); got != 2 {
		t.Errorf("Sessions mismatch: expected 2, got %d", got)
	}
}

// TestE2E_ProtocolCapture runs a command with a FileLogger attached and
// verifies the capture file replays the exchange.
func TestE2E_ProtocolCapture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	daemon, err := fakedaemon.Start(fakedaemon.Behavior{RequireAuth: true, TrustAfterPubkey: true})
	if err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	defer daemon.Close()

	capturePath := filepath.Join(t.TempDir(), "session.alog")
	fl, err := log.NewFileLogger(capturePath)
	if err != nil {
		t.Fatalf("Failed to create capture file: %v", err)
	}

	client := adb.New(adb.Config{
		Address:           daemon.Addr(),
		StorageDir:        t.TempDir(),
		DisablePreconnect: true,
		Logger:            fl,
	})
	if err := client.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !client.SendKeyEvent(23) {
		t.Fatal("SendKeyEvent failed")
	}
	client.Close()
	fl.Close()

	reader, err := log.NewReader(capturePath)
	if err != nil {
		t.Fatalf("Failed to open capture: %v", err)
	}
	defer reader.Close()

	var sawConnect, sawAuth, sawOpen, sawState bool
	start := time.Now().Add(-time.Minute)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read capture event: %v", err)
		}
		if event.Timestamp.Before(start) {
			t.Errorf("event timestamp not set: %v", event.Timestamp)
		}
		if event.ConnectionID == "" {
			t.Error("event missing connection ID")
		}
		if event.Message != nil {
			switch event.Message.Command {
			case wire.CmdConnect:
				sawConnect = true
			case wire.CmdAuth:
				sawAuth = true
			case wire.CmdOpen:
				sawOpen = true
			}
		}
		if event.StateChange != nil {
			sawState = true
		}
	}
	if !sawConnect || !sawAuth || !sawOpen {
		t.Errorf("capture missing wire traffic: connect=%v auth=%v open=%v", sawConnect, sawAuth, sawOpen)
	}
	if !sawState {
		t.Error("capture missing state change events")
	}
}
