package keys

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// Public key blob layout.
const (
	// ModulusSize is the modulus length in bytes for a 2048-bit key.
	ModulusSize = 256

	// ModulusWords is the modulus length in 32-bit words.
	ModulusWords = ModulusSize / 4

	// EncodedSize is the total size of the binary public key structure:
	// word count (4) + n0inv (4) + modulus (256) + rr (256) + exponent (4).
	EncodedSize = 4 + 4 + ModulusSize + ModulusSize + 4
)

// Public key encoding errors.
var (
	ErrKeySize     = errors.New("modulus is not 2048 bits")
	ErrValueTooBig = errors.New("value does not fit in the target width")
)

// EncodePublicKey builds the daemon's custom public key structure for a
// 2048-bit RSA public key:
//
//	uint32  modulus size in 32-bit words (always 64)
//	uint32  n0inv: -(n^-1) mod 2^32
//	uint8   modulus, little-endian, zero-padded to 256 bytes
//	uint8   R^2 mod n with R = 2^2048, little-endian, 256 bytes
//	uint32  exponent, little-endian
//
// The n0inv and R^2 fields precompute the daemon's Montgomery
// multiplication constants; it rejects keys without them.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	n := pub.N
	if n.BitLen() != ModulusSize*8 {
		return nil, fmt.Errorf("%w: %d bits", ErrKeySize, n.BitLen())
	}

	// n0inv = -(n^-1) mod 2^32, computed over the low word of the modulus.
	r32 := new(big.Int).Lsh(big.NewInt(1), 32)
	n0 := new(big.Int).Mod(n, r32)
	inv := new(big.Int).ModInverse(n0, r32)
	if inv == nil {
		// RSA moduli are odd, so the inverse always exists.
		return nil, fmt.Errorf("modulus low word not invertible mod 2^32")
	}
	n0inv := uint32(new(big.Int).Sub(r32, inv).Uint64())

	// rr = R^2 mod n = 2^4096 mod n.
	rr := new(big.Int).Mod(new(big.Int).Lsh(big.NewInt(1), 2*ModulusSize*8), n)

	modLE, err := toLittleEndian(n, ModulusSize)
	if err != nil {
		return nil, fmt.Errorf("encode modulus: %w", err)
	}
	rrLE, err := toLittleEndian(rr, ModulusSize)
	if err != nil {
		return nil, fmt.Errorf("encode rr: %w", err)
	}

	buf := new(bytes.Buffer)
	buf.Grow(EncodedSize)
	binary.Write(buf, binary.LittleEndian, uint32(ModulusWords))
	binary.Write(buf, binary.LittleEndian, n0inv)
	buf.Write(modLE)
	buf.Write(rrLE)
	binary.Write(buf, binary.LittleEndian, uint32(pub.E))
	return buf.Bytes(), nil
}

// FormatPublicKey produces the exact byte sequence the daemon expects as
// an AUTH public key payload: the base64 of the binary structure, a
// space, a human-readable label, and a NUL terminator.
func FormatPublicKey(pub *rsa.PublicKey, label string) ([]byte, error) {
	blob, err := EncodePublicKey(pub)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(blob)
	out := make([]byte, 0, len(encoded)+len(label)+2)
	out = append(out, encoded...)
	out = append(out, ' ')
	out = append(out, label...)
	out = append(out, 0)
	return out, nil
}

// toLittleEndian converts a non-negative big integer to a little-endian
// byte slice zero-padded to size. Any leading zero bytes in the
// big-endian form (a sign byte from foreign encoders, or fixed-width
// padding) are stripped before reversal so padding always lands on the
// high end.
func toLittleEndian(x *big.Int, size int) ([]byte, error) {
	be := x.Bytes()
	for len(be) > 0 && be[0] == 0 {
		be = be[1:]
	}
	if len(be) > size {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrValueTooBig, len(be), size)
	}
	le := make([]byte, size)
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	return le, nil
}

// fromLittleEndian converts a little-endian byte slice (with or without
// high-end zero padding) back to a big integer.
func fromLittleEndian(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
