package message

import (
	"fmt"

	"github.com/danmuck/zmtpwire/internal/protocol"
)

// Prefix is the extra leading frame a role expects on every inbound message.
type Prefix int

const (
	PrefixNone Prefix = iota
	PrefixDelimiter
	PrefixIdentity
)

func (p Prefix) String() string {
	switch p {
	case PrefixDelimiter:
		return "delimiter"
	case PrefixIdentity:
		return "identity"
	default:
		return "none"
	}
}

// prefixByRemote is keyed by the role of the peer being written to. Roles not
// listed take no prefix.
var prefixByRemote = map[protocol.Role]Prefix{
	protocol.RoleReq:    PrefixDelimiter,
	protocol.RoleRep:    PrefixDelimiter,
	protocol.RoleRouter: PrefixIdentity,
}

// PrefixFor returns the prefix rule for messages sent to a peer of role remote.
func PrefixFor(remote protocol.Role) Prefix {
	return prefixByRemote[remote]
}

// StripDelimiter removes the empty delimiter a REQ/REP peer puts in front of
// the payload. The delimiter must be present and followed by at least one part.
func StripDelimiter(msg Message) (Message, error) {
	if len(msg) < 2 {
		return nil, fmt.Errorf("%w: %d part(s), want delimiter and payload", protocol.ErrUnexpectedDelimiter, len(msg))
	}
	if len(msg[0]) != 0 {
		return nil, fmt.Errorf("%w: first part has %d bytes", protocol.ErrUnexpectedDelimiter, len(msg[0]))
	}
	return msg[1:], nil
}
