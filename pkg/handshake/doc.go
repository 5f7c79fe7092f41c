// Package handshake drives the connect and authenticate exchange with
// the debug daemon.
//
// The client opens with CNXN. A daemon that already trusts the
// client's key (or does not require auth) answers CNXN directly.
// Otherwise it challenges with an AUTH token: a 20-byte value the
// daemon has already hashed once. The client signs the
// DigestInfo-prefixed token with raw PKCS#1 v1.5 padding and no
// further hashing, because the daemon verifies against the pre-hashed
// digest rather than hashing the token itself. If the signature is not
// recognized the client offers its public key and waits out the
// extended trust timeout while a human confirms the prompt on the
// device.
package handshake
