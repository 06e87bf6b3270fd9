// Package protocol owns the ZMTP wire contract shared by the codec packages.
//
// Ownership boundary:
// - socket role codes
// - protocol error kinds
//
// Subpackages:
// - frame: single wire frame encode/decode
// - greeting: connection greeting (signature, revision, role, identity)
// - message: multipart reassembly and role prefixing
// - session: per-connection state machine
package protocol
