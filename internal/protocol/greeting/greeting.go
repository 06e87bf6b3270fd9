// Package greeting encodes and decodes the ZMTP connection greeting.
//
// Wire layout:
//
//	[10B signature FF 00 00 00 00 00 00 00 01 7F][1B revision 01][1B role]
//	[1B reserved 00][1B identity length][identity]
package greeting

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/zmtpwire/internal/protocol"
	"golang.org/x/sync/errgroup"
)

const (
	Revision byte = 0x01

	// PreambleLen covers signature, revision and role.
	PreambleLen = 12

	MaxIdentityLen = 0xff
)

// Signature is the fixed 10-byte greeting prefix.
var Signature = [10]byte{0xff, 0, 0, 0, 0, 0, 0, 0, 0x01, 0x7f}

// Greeting is what a peer announces before any frame is exchanged.
type Greeting struct {
	Revision byte
	Role     protocol.Role
	Identity []byte
}

// Anonymous reports whether the peer sent a zero-length identity.
func (g Greeting) Anonymous() bool {
	return len(g.Identity) == 0
}

// Encode returns the greeting bytes for role and identity.
func Encode(role protocol.Role, identity []byte) ([]byte, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: code %d", protocol.ErrUnknownRole, uint8(role))
	}
	if len(identity) > MaxIdentityLen {
		return nil, fmt.Errorf("%w: %d bytes", protocol.ErrIdentityTooLong, len(identity))
	}
	buf := make([]byte, 0, PreambleLen+2+len(identity))
	buf = append(buf, Signature[:]...)
	buf = append(buf, Revision, byte(role))
	buf = append(buf, 0x00, byte(len(identity)))
	return append(buf, identity...), nil
}

// Send writes the local greeting.
func Send(w io.Writer, role protocol.Role, identity []byte) error {
	buf, err := Encode(role, identity)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Read reads and validates a remote greeting. Every failure, including a stream
// that ends early, wraps protocol.ErrHandshake.
func Read(r io.Reader) (Greeting, error) {
	var pre [PreambleLen]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return Greeting{}, handshakeErr("preamble", err)
	}
	if !bytes.Equal(pre[:10], Signature[:]) {
		return Greeting{}, fmt.Errorf("%w: bad signature % x", protocol.ErrHandshake, pre[:10])
	}
	if pre[10] != Revision {
		return Greeting{}, fmt.Errorf("%w: unsupported revision 0x%02x", protocol.ErrHandshake, pre[10])
	}
	role, err := protocol.RoleFromCode(pre[11])
	if err != nil {
		return Greeting{}, fmt.Errorf("%w: %w", protocol.ErrHandshake, err)
	}

	// The first identity byte is reserved and ignored.
	var idHdr [2]byte
	if _, err := io.ReadFull(r, idHdr[:]); err != nil {
		return Greeting{}, handshakeErr("identity header", err)
	}
	g := Greeting{Revision: pre[10], Role: role}
	if n := int(idHdr[1]); n > 0 {
		g.Identity = make([]byte, n)
		if _, err := io.ReadFull(r, g.Identity); err != nil {
			return Greeting{}, handshakeErr("identity", err)
		}
	}
	return g, nil
}

// Exchange sends the local greeting and reads the remote one concurrently, so
// peers on an unbuffered stream may both write first. abort runs at most once,
// when either direction fails, and must unblock the other direction (usually
// by closing the stream).
func Exchange(r io.Reader, w io.Writer, abort func(), role protocol.Role, identity []byte) (Greeting, error) {
	buf, err := Encode(role, identity)
	if err != nil {
		return Greeting{}, err
	}

	var once sync.Once
	fail := func(err error) error {
		if abort != nil {
			once.Do(abort)
		}
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		if _, err := w.Write(buf); err != nil {
			return fail(fmt.Errorf("%w: send: %w", protocol.ErrHandshake, err))
		}
		return nil
	})
	var remote Greeting
	g.Go(func() error {
		var err error
		if remote, err = Read(r); err != nil {
			return fail(err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Greeting{}, err
	}
	return remote, nil
}

func handshakeErr(part string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %s: %w", protocol.ErrHandshake, part, err)
}
