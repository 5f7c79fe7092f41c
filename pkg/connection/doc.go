// Package connection holds connection lifecycle primitives shared by
// the client: the connection state enum and an exponential backoff
// calculator.
//
// The backoff is used only by wait-for-device polling (a device that
// is still booting, or network debugging not yet enabled). Command
// issuance never loops on it; a failed command gets exactly one
// reconnect-and-retry.
package connection
