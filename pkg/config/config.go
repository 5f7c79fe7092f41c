// Package config loads client configuration from a YAML file.
//
// All fields are optional; zero values take the defaults used by the
// client packages. The storage directory defaults to a wakecast
// directory under the user's config dir.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk client configuration.
type Config struct {
	// Address is the daemon address (host:port).
	Address string `yaml:"address"`

	// StorageDir holds the persisted key pair.
	StorageDir string `yaml:"storage_dir"`

	// KeyLabel identifies this installation in trust prompts.
	KeyLabel string `yaml:"key_label"`

	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IOTimeout bounds ordinary reads and writes.
	IOTimeout time.Duration `yaml:"io_timeout"`

	// TrustTimeout bounds the wait for the trust prompt.
	TrustTimeout time.Duration `yaml:"trust_timeout"`

	// DrainTimeout bounds reads while draining command output.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// ProtocolLog, when set, enables CBOR protocol capture to this file.
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Address:    "127.0.0.1:5555",
		StorageDir: defaultStorageDir(),
	}
}

// Load reads a YAML configuration file and fills unset fields from the
// defaults. A missing file yields the defaults without error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the client cannot use.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address must not be empty")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout": c.ConnectTimeout,
		"io_timeout":      c.IOTimeout,
		"trust_timeout":   c.TrustTimeout,
		"drain_timeout":   c.DrainTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func defaultStorageDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".wakecast"
	}
	return filepath.Join(base, "wakecast")
}
