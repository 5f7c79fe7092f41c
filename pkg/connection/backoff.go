package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	// InitialBackoff is the initial polling delay.
	InitialBackoff = 1 * time.Second

	// MaxBackoff is the maximum polling delay.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the factor by which the delay grows.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the delay.
	JitterFactor = 0.25
)

// Backoff calculates exponential delays with jitter. Safe for
// concurrent use.
type Backoff struct {
	mu sync.Mutex

	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempts   int
	rng        *rand.Rand
}

// BackoffConfig customizes a Backoff. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewBackoff creates a backoff calculator with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = JitterFactor
	}
	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset restores the initial delay. Call after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	span := float64(d) * b.jitter
	return d + time.Duration(b.rng.Float64()*span)
}
