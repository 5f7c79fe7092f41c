package connection

import (
	"testing"
	"time"
)

func TestBackoffProgression(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // capped
		time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
	if b.Attempts() != len(want) {
		t.Errorf("Attempts = %d, want %d", b.Attempts(), len(want))
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial: 50 * time.Millisecond,
		Jitter:  0,
	})

	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != 50*time.Millisecond {
		t.Errorf("Next after Reset = %v, want 50ms", got)
	}
	if b.Attempts() != 1 {
		t.Errorf("Attempts after Reset+Next = %d, want 1", b.Attempts())
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial: 100 * time.Millisecond,
		Jitter:  0.25,
	})

	for i := 0; i < 50; i++ {
		got := b.Next()
		b.Reset()
		if got < 100*time.Millisecond || got > 125*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 125ms]", got)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
