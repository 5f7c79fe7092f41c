package handshake

import (
	"crypto"
	"crypto/rsa"
	"fmt"

	"github.com/wakecast/adb-go/pkg/wire"
)

// sha1DigestInfo is the ASN.1 DigestInfo prefix PKCS#1 v1.5 wraps
// around a SHA-1 hash before RSA signing.
var sha1DigestInfo = []byte{
	0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e,
	0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14,
}

// SignToken signs an auth token challenge. The token is already a
// SHA-1-sized digest, so the DigestInfo prefix is prepended manually
// and the 35-byte buffer is signed with crypto.Hash(0), i.e. PKCS#1
// v1.5 padding over the data as-is. Substituting a sign-with-SHA1
// primitive here would double-hash and the daemon would reject the
// signature.
func SignToken(key *rsa.PrivateKey, token []byte) ([]byte, error) {
	if len(token) != wire.TokenSize {
		return nil, fmt.Errorf("token is %d bytes, want %d", len(token), wire.TokenSize)
	}
	digest := make([]byte, 0, len(sha1DigestInfo)+wire.TokenSize)
	digest = append(digest, sha1DigestInfo...)
	digest = append(digest, token...)
	return rsa.SignPKCS1v15(nil, key, crypto.Hash(0), digest)
}
