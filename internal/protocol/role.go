package protocol

import (
	"fmt"
	"strings"
)

// Role is the peer socket type announced in the greeting.
type Role uint8

const (
	RolePair   Role = 0
	RolePub    Role = 1
	RoleSub    Role = 2
	RoleReq    Role = 3
	RoleRep    Role = 4
	RoleDealer Role = 5
	RoleRouter Role = 6
	RolePull   Role = 7
	RolePush   Role = 8
)

var roleNames = [...]string{
	RolePair:   "PAIR",
	RolePub:    "PUB",
	RoleSub:    "SUB",
	RoleReq:    "REQ",
	RoleRep:    "REP",
	RoleDealer: "DEALER",
	RoleRouter: "ROUTER",
	RolePull:   "PULL",
	RolePush:   "PUSH",
}

// Valid reports whether r is one of the nine known wire codes.
func (r Role) Valid() bool {
	return int(r) < len(roleNames)
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

// RoleFromCode validates a raw role byte.
func RoleFromCode(code byte) (Role, error) {
	r := Role(code)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: code %d", ErrUnknownRole, code)
	}
	return r, nil
}

// ParseRole accepts role names case-insensitively ("rep", "ROUTER").
func ParseRole(raw string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	for code, n := range roleNames {
		if n == name {
			return Role(code), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}
