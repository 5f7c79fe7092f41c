// Package keys manages the client's RSA identity: a 2048-bit key pair
// generated once per installation and persisted under an
// application-private directory.
//
// The daemon does not consume standard X.509/PKCS#8 key encodings.
// Instead it expects a custom 524-byte binary structure (word count,
// Montgomery n0inv, little-endian modulus, R squared mod n, exponent),
// base64-encoded and suffixed with a label. The daemon's trust decision
// is keyed off this blob, so an existing key pair is never silently
// regenerated.
package keys
