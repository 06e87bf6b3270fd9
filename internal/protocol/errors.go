package protocol

import "errors"

var (
	ErrHandshake           = errors.New("zmtp: handshake failed")
	ErrTruncatedFrame      = errors.New("zmtp: truncated frame")
	ErrUnexpectedDelimiter = errors.New("zmtp: unexpected delimiter")
	ErrPayloadTooLarge     = errors.New("zmtp: payload too large")
	ErrInvalidFlags        = errors.New("zmtp: invalid frame flags")
	ErrIdentityTooLong     = errors.New("zmtp: identity too long")
	ErrUnknownRole         = errors.New("zmtp: unknown socket role")
	ErrSessionClosed       = errors.New("zmtp: session closed")
)

// Kind returns a short label for the protocol error kind wrapped by err.
// Unknown errors report "io".
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrHandshake):
		return "handshake"
	case errors.Is(err, ErrTruncatedFrame):
		return "truncated_frame"
	case errors.Is(err, ErrUnexpectedDelimiter):
		return "unexpected_delimiter"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrInvalidFlags):
		return "invalid_flags"
	case errors.Is(err, ErrIdentityTooLong):
		return "identity_too_long"
	case errors.Is(err, ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "io"
	}
}
