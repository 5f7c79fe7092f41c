package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
)

// PEM encoding/decoding errors.
var (
	ErrInvalidPEM = errors.New("invalid PEM data")
	ErrInvalidKey = errors.New("invalid private key")
)

// EncodeKeyPEM encodes an RSA private key to PKCS#1 PEM format.
func EncodeKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// DecodeKeyPEM decodes a PEM-encoded RSA private key. Both PKCS#1 and
// PKCS#8 containers are accepted; key material written by other ADB
// implementations is commonly PKCS#8.
func DecodeKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrInvalidKey
		}
		return rsaKey, nil
	default:
		return nil, ErrInvalidPEM
	}
}

// WriteKeyFile writes a private key to a PEM file with restricted permissions.
func WriteKeyFile(path string, key *rsa.PrivateKey) error {
	return os.WriteFile(path, EncodeKeyPEM(key), 0600)
}

// ReadKeyFile reads a private key from a PEM file.
func ReadKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeKeyPEM(data)
}
