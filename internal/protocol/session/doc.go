// Package session owns the per-connection ZMTP state machine.
//
// Ownership boundary:
// - greeting exchange on accept/connect
// - NEW -> GREETING -> READY -> CLOSED transitions
// - receive/deliver/reply loop with role prefixing
//
// A Session is driven by one goroutine. Close may be called from any goroutine
// and unblocks pending reads and writes by closing the stream.
package session
