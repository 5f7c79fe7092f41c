package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File name constants for key storage.
const (
	privateKeyFile = "adbkey"
	publicKeyFile  = "adbkey.pub"
)

// KeySize is the RSA key size in bits.
const KeySize = 2048

// DefaultLabel identifies this installation in the daemon's trust
// prompt and key list.
const DefaultLabel = "wakecast@tv"

// KeyPair is the client's persistent identity: the private key (never
// transmitted) and the daemon-format public key blob derived from it.
// Immutable after creation.
type KeyPair struct {
	// Private is the RSA private key used to sign auth tokens.
	Private *rsa.PrivateKey

	// PublicBlob is the formatted public key (base64 structure, label,
	// NUL) sent verbatim as the AUTH public key payload.
	PublicBlob []byte
}

// LoadOrGenerate returns the key pair persisted under dir, generating
// and persisting a new one only if no private key exists yet. The
// operation is idempotent: an existing key is never regenerated, since
// the daemon's remembered trust is keyed off key identity.
//
// A missing or unreadable public key file is recomputed from the
// private key rather than treated as fatal.
func LoadOrGenerate(dir, label string) (*KeyPair, error) {
	if label == "" {
		label = DefaultLabel
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	privPath := filepath.Join(dir, privateKeyFile)
	pubPath := filepath.Join(dir, publicKeyFile)

	data, err := os.ReadFile(privPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		return generate(privPath, pubPath, label)
	}

	priv, err := DecodeKeyPEM(data)
	if err != nil {
		// A present but unparseable private key forces regeneration;
		// the daemon will re-prompt for trust against the new key.
		return generate(privPath, pubPath, label)
	}

	// Existing installation: reuse the key, repair the blob if needed.
	blob, err := os.ReadFile(pubPath)
	if err != nil || len(blob) == 0 {
		blob, err = FormatPublicKey(&priv.PublicKey, label)
		if err != nil {
			return nil, fmt.Errorf("derive public key: %w", err)
		}
		if err := os.WriteFile(pubPath, blob, 0644); err != nil {
			return nil, fmt.Errorf("persist public key: %w", err)
		}
	}
	return &KeyPair{Private: priv, PublicBlob: blob}, nil
}

func generate(privPath, pubPath, label string) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := WriteKeyFile(privPath, priv); err != nil {
		return nil, fmt.Errorf("persist private key: %w", err)
	}
	blob, err := FormatPublicKey(&priv.PublicKey, label)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	if err := os.WriteFile(pubPath, blob, 0644); err != nil {
		return nil, fmt.Errorf("persist public key: %w", err)
	}
	return &KeyPair{Private: priv, PublicBlob: blob}, nil
}
