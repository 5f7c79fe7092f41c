package adb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wakecast/adb-go/internal/testharness/fakedaemon"
	"github.com/wakecast/adb-go/pkg/connection"
)

// startDaemon launches a scripted daemon and a client pointed at it.
func startDaemon(t *testing.T, behavior fakedaemon.Behavior) (*fakedaemon.Daemon, *Client) {
	t.Helper()
	daemon, err := fakedaemon.Start(behavior)
	require.NoError(t, err)
	t.Cleanup(daemon.Close)

	client := New(Config{
		Address:           daemon.Addr(),
		StorageDir:        t.TempDir(),
		KeyLabel:          "unit@test",
		IOTimeout:         time.Second,
		DrainTimeout:      100 * time.Millisecond,
		TrustTimeout:      2 * time.Second,
		DisablePreconnect: true,
	})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Init())
	return daemon, client
}

func TestSendShellCommandEndToEnd(t *testing.T) {
	daemon, client := startDaemon(t, fakedaemon.Behavior{})

	require.True(t, client.SendShellCommand("input keyevent 23"))

	opens := daemon.Opens()
	require.Len(t, opens, 1)
	require.Equal(t, "shell:input keyevent 23", opens[0])
	require.Equal(t, 0, daemon.AuthChallenges())
}

func TestSendKeyEvent(t *testing.T) {
	daemon, client := startDaemon(t, fakedaemon.Behavior{})

	require.True(t, client.SendKeyEvent(26))
	require.Equal(t, []string{"shell:input keyevent 26"}, daemon.Opens())
}

func TestPersistentConnectionReused(t *testing.T) {
	daemon, client := startDaemon(t, fakedaemon.Behavior{})

	require.True(t, client.SendShellCommand("input keyevent 23"))
	require.True(t, client.SendShellCommand("input keyevent 3"))
	require.True(t, client.SendKeyEvent(26))

	require.Equal(t, 1, daemon.Sessions(), "commands must share one connection")
	require.Len(t, daemon.Opens(), 3)
}

func TestCommandWithOutputDrained(t *testing.T) {
	daemon, client := startDaemon(t, fakedaemon.Behavior{Output: "Events injected: 1\n"})

	require.True(t, client.SendShellCommand("input keyevent 23"))
	require.Len(t, daemon.Opens(), 1)
}

func TestAuthenticatedConnect(t *testing.T) {
	daemon, client := startDaemon(t, fakedaemon.Behavior{RequireAuth: true})

	require.True(t, client.SendShellCommand("input keyevent 23"))
	require.Equal(t, 1, daemon.AuthChallenges())
}

func TestFirstContactTrustFlow(t *testing.T) {
	daemon, client := startDaemon(t, fakedaemon.Behavior{
		RequireAuth:      true,
		TrustAfterPubkey: true,
	})

	require.True(t, client.SendShellCommand("input keyevent 23"))
	require.Equal(t, 2, daemon.AuthChallenges())
}

func TestRetryReconnectsExactlyOnce(t *testing.T) {
	// The first session dies on OPEN; the retry's fresh session works.
	daemon, client := startDaemon(t, fakedaemon.Behavior{KillOnOpen: 1})

	require.NoError(t, client.Connect())
	require.True(t, client.SendShellCommand("input keyevent 23"))
	require.Equal(t, 2, daemon.Sessions())
}

func TestSecondFailureGivesUp(t *testing.T) {
	// Every session dies on OPEN: one reconnect-and-retry, then false,
	// with no third attempt.
	daemon, client := startDaemon(t, fakedaemon.Behavior{KillOnOpen: -1})

	require.NoError(t, client.Connect())
	require.False(t, client.SendShellCommand("input keyevent 23"))
	require.Equal(t, 2, daemon.Sessions())
}

func TestNotInitialized(t *testing.T) {
	client := New(Config{StorageDir: t.TempDir()})
	defer client.Close()

	require.False(t, client.SendShellCommand("input keyevent 23"))
	require.False(t, client.SendKeyEvent(23))
}

func TestDaemonNotListening(t *testing.T) {
	// Point at a port with nothing behind it.
	daemon, err := fakedaemon.Start(fakedaemon.Behavior{})
	require.NoError(t, err)
	addr := daemon.Addr()
	daemon.Close()

	client := New(Config{
		Address:           addr,
		StorageDir:        t.TempDir(),
		ConnectTimeout:    time.Second,
		DisablePreconnect: true,
	})
	defer client.Close()
	require.NoError(t, client.Init())

	require.False(t, client.SendShellCommand("input keyevent 23"))
}

func TestClosedClientRejectsCommands(t *testing.T) {
	_, client := startDaemon(t, fakedaemon.Behavior{})

	require.True(t, client.SendShellCommand("input keyevent 23"))
	require.NoError(t, client.Close())
	require.False(t, client.SendShellCommand("input keyevent 23"))
	require.Equal(t, connection.StateClosed, client.State())
}

func TestPreconnect(t *testing.T) {
	daemon, err := fakedaemon.Start(fakedaemon.Behavior{})
	require.NoError(t, err)
	t.Cleanup(daemon.Close)

	client := New(Config{
		Address:    daemon.Addr(),
		StorageDir: t.TempDir(),
		IOTimeout:  time.Second,
	})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Init())

	require.Eventually(t, func() bool {
		return client.State() == connection.StateConnected
	}, 5*time.Second, 20*time.Millisecond, "background pre-connect never completed")

	// The foreground command rides the pre-connected socket.
	require.True(t, client.SendShellCommand("input keyevent 23"))
	require.Equal(t, 1, daemon.Sessions())
}

func TestWaitForDevice(t *testing.T) {
	daemon, client := startDaemon(t, fakedaemon.Behavior{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.WaitForDevice(ctx))
	require.Equal(t, connection.StateConnected, client.State())
	_ = daemon
}

func TestConcurrentCallersQueue(t *testing.T) {
	// Concurrent callers serialize behind the client lock and share
	// the single connection rather than opening parallel ones.
	daemon, client := startDaemon(t, fakedaemon.Behavior{})

	const goroutines = 4
	const perGoroutine = 5

	results := make(chan bool, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < perGoroutine; j++ {
				results <- client.SendKeyEvent(23)
			}
		}()
	}
	for i := 0; i < goroutines*perGoroutine; i++ {
		require.True(t, <-results)
	}

	require.Equal(t, 1, daemon.Sessions())
	require.Len(t, daemon.Opens(), goroutines*perGoroutine)
}

func TestWaitForDeviceContextExpires(t *testing.T) {
	daemon, err := fakedaemon.Start(fakedaemon.Behavior{})
	require.NoError(t, err)
	addr := daemon.Addr()
	daemon.Close()

	client := New(Config{
		Address:           addr,
		StorageDir:        t.TempDir(),
		ConnectTimeout:    200 * time.Millisecond,
		DisablePreconnect: true,
	})
	defer client.Close()
	require.NoError(t, client.Init())

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	require.Error(t, client.WaitForDevice(ctx))
}
